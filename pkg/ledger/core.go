package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/internal/codec"
	"github.com/neonsphere/weave/internal/kvstore"
	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

// Limits bounds the plain-text fields.
type Limits struct { // A
	MaxUsernameLen    int
	MaxBioLen         int
	MaxContentHashLen int
}

// DefaultLimits are used for zero fields of Options.Limits.
var DefaultLimits = Limits{ // A
	MaxUsernameLen:    64,
	MaxBioLen:         512,
	MaxContentHashLen: 256,
}

func (l *Limits) applyDefaults() { // A
	if l.MaxUsernameLen <= 0 {
		l.MaxUsernameLen = DefaultLimits.MaxUsernameLen
	}
	if l.MaxBioLen <= 0 {
		l.MaxBioLen = DefaultLimits.MaxBioLen
	}
	if l.MaxContentHashLen <= 0 {
		l.MaxContentHashLen = DefaultLimits.MaxContentHashLen
	}
}

// core is the state shared by the three components: one store, one
// writer lock, one verifier, one event bus.
type core struct { // A
	store    *kvstore.KeyValStore
	verifier cipher.Verifier
	clock    Clock
	log      *logrus.Logger
	limits   Limits

	aggregator ReputationAggregator
	content    ContentIndex

	// writeMu serializes every mutation. publishMu is taken before
	// writeMu is released so events leave in commit order.
	writeMu   sync.Mutex
	publishMu sync.Mutex
	bus       *eventBus

	hooksMu sync.RWMutex
	hooks   []InteractionHook
}

// now returns the clock's time in UTC.
func (c *core) now() time.Time { // A
	return c.clock.Now().UTC()
}

// emitter collects events produced inside one transaction.
type emitter struct { // A
	events []Event
}

func (e *emitter) emit(ev Event) { // A
	e.events = append(e.events, ev)
}

// mutate runs fn in a serialized read-write transaction and delivers
// the events fn emitted once the transaction has committed.
func (c *core) mutate( // A
	ctx context.Context,
	fn func(txn *kvstore.Txn, em *emitter) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	em := &emitter{}
	c.writeMu.Lock()
	err := c.store.Update(func(txn *kvstore.Txn) error {
		em.events = em.events[:0]
		return fn(txn, em)
	})
	if err != nil {
		c.writeMu.Unlock()
		return err
	}
	c.publishMu.Lock()
	c.writeMu.Unlock()
	c.bus.publish(ctx, em.events)
	c.publishMu.Unlock()
	return nil
}

// read runs fn in a read-only snapshot.
func (c *core) read( // A
	ctx context.Context,
	fn func(txn *kvstore.Txn) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.View(fn)
}

// verify consults the verifier for one ciphertext argument.
func (c *core) verify( // A
	ctx context.Context,
	field string,
	h cipher.Handle,
	proof cipher.Proof,
) error {
	if err := proof.Validate(); err != nil {
		return &ProofError{Field: field, Err: ErrInvalidProof, Cause: err}
	}
	ok, err := c.verifier.Verify(ctx, h, proof)
	if err != nil {
		c.log.WithError(err).WithField("field", field).Warn("proof verifier unavailable")
		return &ProofError{Field: field, Err: ErrVerifierUnavailable, Cause: err}
	}
	if !ok {
		return &ProofError{Field: field, Err: ErrInvalidProof}
	}
	return nil
}

func (c *core) checkText(field, s string, max int, required bool) error { // A
	if required && s == "" {
		return validationErr(field, errors.New("must not be empty"))
	}
	if len(s) > max {
		return validationErr(field, fmt.Errorf("longer than %d bytes", max))
	}
	if !utf8.ValidString(s) {
		return validationErr(field, errors.New("not valid UTF-8"))
	}
	return nil
}

func checkHandle(field string, h cipher.Handle) error { // A
	if err := h.Validate(); err != nil {
		return validationErr(field, err)
	}
	return nil
}

func (c *core) loadUser(txn *kvstore.Txn, id model.UserID) (*model.User, error) { // A
	raw, err := txn.Get(userKey(id))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return codec.DecodeUser(raw)
}

func (c *core) saveUser(txn *kvstore.Txn, u *model.User) error { // A
	return txn.Set(userKey(u.ID), codec.EncodeUser(u))
}

func (c *core) loadConnection( // A
	txn *kvstore.Txn,
	id model.ConnectionID,
) (*model.Connection, error) {
	raw, err := txn.Get(connectionKey(id))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: connection %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load connection %d: %w", id, err)
	}
	return codec.DecodeConnection(raw)
}

func (c *core) saveConnection(txn *kvstore.Txn, conn *model.Connection) error { // A
	return txn.Set(connectionKey(conn.ID), codec.EncodeConnection(conn))
}

// touch advances LastSeen of u, never moving it backwards.
func (c *core) touch(txn *kvstore.Txn, id model.UserID) error { // A
	u, err := c.loadUser(txn, id)
	if err != nil {
		return err
	}
	if now := c.now(); now.After(u.LastSeen) {
		u.LastSeen = now
	}
	return c.saveUser(txn, u)
}

func (c *core) addHook(h InteractionHook) { // A
	c.hooksMu.Lock()
	c.hooks = append(c.hooks, h)
	c.hooksMu.Unlock()
}

func (c *core) runHooks(ctx context.Context, iv model.InteractionView) { // A
	c.hooksMu.RLock()
	hooks := make([]InteractionHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, iv); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"interactionID": iv.ID,
				"connectionID":  iv.ConnectionID,
			}).Warn("interaction hook failed")
		}
	}
}
