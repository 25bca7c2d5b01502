package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonsphere/weave/pkg/model"
)

func TestListByConnectionOrderStable(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	carol := f.register(0xCC, "carol")
	c1 := f.connect(0xAA, bob)
	c2 := f.connect(0xAA, carol)

	const n = 5
	var want []model.InteractionID
	for i := 0; i < n; i++ {
		id, err := f.interact(0xAA, c1, fmt.Sprintf("h%d", i))
		require.NoError(t, err)
		want = append(want, id)
		// interleave writes on another connection
		_, err = f.interact(0xCC, c2, "other")
		require.NoError(t, err)
	}

	first, err := f.ledger.Interactions().ListByConnection(f.ctx, c1)
	require.NoError(t, err)
	second, err := f.ledger.Interactions().ListByConnection(f.ctx, c1)
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeated reads return identical sequences")

	require.Len(t, first, n)
	for i, iv := range first {
		assert.Equal(t, want[i], iv.ID)
		assert.Equal(t, c1, iv.ConnectionID)
		assert.Equal(t, fmt.Sprintf("h%d", i), iv.ContentHash)
		if i > 0 {
			assert.Greater(t, iv.ID, first[i-1].ID)
		}
	}
}

func TestListByConnectionUnknown(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	_, err := f.ledger.Interactions().ListByConnection(f.ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.ledger.Interactions().GetInteraction(f.ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateInteractionReportsWhichProofFailed(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	alice := f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	trust, proof := f.sealed(1)
	conn, err := f.ledger.Graph().CreateConnection(f.ctx, alice, bob, trust, proof)
	require.NoError(t, err)

	typ, typeProof := f.sealed(2)
	sent, sentProof := f.sealed(3)
	log := f.ledger.Interactions()

	_, err = log.CreateInteraction(f.ctx, conn, typ, badProof(), sent, sentProof, "h")
	require.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, "interactionType", ProofField(err))

	_, err = log.CreateInteraction(f.ctx, conn, typ, typeProof, sent, badProof(), "h")
	require.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, "sentimentScore", ProofField(err))

	// proofs swapped between arguments do not verify either
	_, err = log.CreateInteraction(f.ctx, conn, typ, sentProof, sent, typeProof, "h")
	require.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, "interactionType", ProofField(err))

	list, err := log.ListByConnection(f.ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, list)

	id, err := log.CreateInteraction(f.ctx, conn, typ, typeProof, sent, sentProof, "h")
	require.NoError(t, err)
	assert.Equal(t, model.InteractionID(1), id, "rejected attempts do not consume ids")
}

func TestCreateInteractionValidation(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	conn := f.connect(0xAA, bob)

	_, err := f.interact(0xAA, conn, "")
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.interact(0xAA, conn, strings.Repeat("x", DefaultLimits.MaxContentHashLen+1))
	require.ErrorIs(t, err, ErrValidation)

	typ, typeProof := f.sealed(2)
	sent, sentProof := f.sealed(3)
	sent.Payload = sent.Payload[:10]
	_, err = f.ledger.CreateInteraction(f.ctx, wallet(0xAA), conn, typ, typeProof, sent, sentProof, "h")
	require.ErrorIs(t, err, ErrValidation)
}

type contentSet map[string]bool // A

func (c contentSet) Has(_ context.Context, h string) (bool, error) { // A
	if h == "broken" {
		return false, errors.New("index offline")
	}
	return c[h], nil
}

func TestCreateInteractionChecksContentIndex(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t, func(o *Options) {
		o.Content = contentSet{"known": true}
	})
	f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	conn := f.connect(0xAA, bob)

	_, err := f.interact(0xAA, conn, "unknown")
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.interact(0xAA, conn, "broken")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrValidation))

	_, err = f.interact(0xAA, conn, "known")
	require.NoError(t, err)
}

func TestInteractionHooksRunAfterCommit(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t, func(o *Options) { o.Aggregator = xorAggregator{} })
	alice := f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	conn := f.connect(0xAA, bob)

	var seen []model.InteractionView
	f.ledger.OnInteractionRecorded(func(ctx context.Context, iv model.InteractionView) error {
		seen = append(seen, iv)
		// hooks may call back into the ledger
		list, err := f.ledger.Interactions().ListByConnection(ctx, iv.ConnectionID)
		if err != nil {
			return err
		}
		if len(list) == 0 || list[len(list)-1].ID != iv.ID {
			return errors.New("interaction not visible to hook")
		}
		delta, proof := f.sealed(0x01)
		return f.ledger.Identities().ApplyReputationDelta(ctx, alice, delta, proof)
	})
	f.ledger.OnInteractionRecorded(func(context.Context, model.InteractionView) error {
		return errors.New("failing hooks are logged only")
	})

	id, err := f.interact(0xAA, conn, "h")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, id, seen[0].ID)
	assert.True(t, seen[0].Valid)
	assert.Equal(t, byte(0xAA^0x01), f.profile(alice).Reputation.Payload[0])
}
