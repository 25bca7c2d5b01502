package ledger

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/neonsphere/weave/internal/kvstore"
	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

// fakeClock advances by one second on every reading so timestamps are
// strictly increasing and predictable.
type fakeClock struct { // A
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { // A
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { // A
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recorder is an EventSink that keeps everything it receives.
type recorder struct { // A
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, ev Event) error { // A
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []EventType { // A
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct { // A
	t        *testing.T
	ctx      context.Context
	ledger   *SocialLedger
	verifier *cipher.KeccakVerifier
	events   *recorder
}

func quietLogger() *logrus.Logger { // A
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture { // A
	t.Helper()
	kv, err := kvstore.NewKeyValStore(kvstore.StoreConfig{
		InMemory: true,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	v := cipher.NewKeccakVerifier("weave-ledger-test")
	opts := Options{
		Verifier: v,
		Clock:    newFakeClock(),
		Logger:   quietLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	l, err := New(kv, opts)
	require.NoError(t, err)

	rec := &recorder{}
	l.Subscribe(rec)
	return &fixture{t: t, ctx: context.Background(), ledger: l, verifier: v, events: rec}
}

func wallet(b byte) common.Address { // A
	var a common.Address
	a[19] = b
	return a
}

func handle(b byte) cipher.Handle { // A
	return cipher.NewHandle(cipher.KindUint8, bytes.Repeat([]byte{b}, cipher.PayloadSize))
}

// sealed returns a handle and a proof the fixture's verifier accepts.
func (f *fixture) sealed(b byte) (cipher.Handle, cipher.Proof) { // A
	h := handle(b)
	return h, f.verifier.Seal(h)
}

func badProof() cipher.Proof { // A
	return make(cipher.Proof, 32)
}

func (f *fixture) register(w byte, name string) model.UserID { // A
	f.t.Helper()
	rep, proof := f.sealed(w)
	id, err := f.ledger.RegisterUser(f.ctx, wallet(w), name, "bio of "+name, rep, proof)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) connect(w byte, other model.UserID) model.ConnectionID { // A
	f.t.Helper()
	trust, proof := f.sealed(0x70)
	id, err := f.ledger.CreateConnection(f.ctx, wallet(w), other, trust, proof)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) interact( // A
	w byte,
	conn model.ConnectionID,
	contentHash string,
) (model.InteractionID, error) {
	typ, typeProof := f.sealed(0x11)
	sent, sentProof := f.sealed(0x22)
	return f.ledger.CreateInteraction(
		f.ctx, wallet(w), conn, typ, typeProof, sent, sentProof, contentHash,
	)
}

func (f *fixture) profile(id model.UserID) model.UserProfileView { // A
	f.t.Helper()
	p, err := f.ledger.GetUserProfile(f.ctx, id)
	require.NoError(f.t, err)
	return p
}
