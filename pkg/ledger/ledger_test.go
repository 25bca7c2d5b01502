package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonsphere/weave/pkg/model"
)

func TestScenarioAliceAndBob(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)

	alice := f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	require.Equal(t, model.UserID(1), alice)
	require.Equal(t, model.UserID(2), bob)

	trust, p3 := f.sealed(3)
	conn, err := f.ledger.Graph().CreateConnection(f.ctx, alice, bob, trust, p3)
	require.NoError(t, err)
	require.Equal(t, model.ConnectionID(1), conn)
	assert.Equal(t, uint32(1), f.profile(alice).ConnectionCount)
	assert.Equal(t, uint32(1), f.profile(bob).ConnectionCount)

	trust2, p4 := f.sealed(4)
	_, err = f.ledger.Graph().CreateConnection(f.ctx, bob, alice, trust2, p4)
	require.ErrorIs(t, err, ErrDuplicateConnection)

	typ, pt := f.sealed(5)
	sent, ps := f.sealed(6)
	inter, err := f.ledger.Interactions().CreateInteraction(
		f.ctx, conn, typ, pt, sent, ps, "hash123",
	)
	require.NoError(t, err)
	require.Equal(t, model.InteractionID(1), inter)

	list, err := f.ledger.Interactions().ListByConnection(f.ctx, conn)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inter, list[0].ID)
	assert.Equal(t, "hash123", list[0].ContentHash)
	assert.True(t, list[0].Valid)

	assert.Equal(t, []EventType{
		UserRegistered, UserRegistered, ConnectionCreated, InteractionCreated,
	}, f.events.types())
}

func TestScenarioSelfConnection(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	alice := f.register(0xAA, "alice")

	trust, proof := f.sealed(1)
	_, err := f.ledger.Graph().CreateConnection(f.ctx, alice, alice, trust, proof)
	require.ErrorIs(t, err, ErrSelfConnection)

	_, err = f.ledger.CreateConnection(f.ctx, wallet(0xAA), alice, trust, proof)
	require.ErrorIs(t, err, ErrSelfConnection)
	assert.Zero(t, f.profile(alice).ConnectionCount)
}

func TestScenarioRejectedProofLeavesNoUser(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	rep, _ := f.sealed(1)

	_, err := f.ledger.RegisterUser(f.ctx, wallet(0xCC), "carol", "", rep, badProof())
	require.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, "initialReputation", ProofField(err))
	assert.False(t, IsRetryable(err))

	_, err = f.ledger.Identities().Lookup(f.ctx, wallet(0xCC))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.ledger.GetUserProfile(f.ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)

	id := f.register(0xCC, "carol")
	assert.Equal(t, model.UserID(1), id, "rejected attempt must not consume an id")
	assert.Equal(t, []EventType{UserRegistered}, f.events.types())
}

func TestFacadeTouchesActingUser(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	alice := f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")

	before := f.profile(alice).LastSeen
	bobBefore := f.profile(bob).LastSeen
	conn := f.connect(0xAA, bob)
	afterConnect := f.profile(alice).LastSeen
	assert.True(t, afterConnect.After(before))
	assert.Equal(t, bobBefore, f.profile(bob).LastSeen, "only the caller is touched")

	_, err := f.interact(0xBB, conn, "h")
	require.NoError(t, err)
	assert.True(t, f.profile(bob).LastSeen.After(bobBefore))
	assert.Equal(t, afterConnect, f.profile(alice).LastSeen)
}

func TestFacadeRejectsUnregisteredCaller(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	bob := f.register(0xBB, "bob")

	trust, proof := f.sealed(1)
	_, err := f.ledger.CreateConnection(f.ctx, wallet(0x01), bob, trust, proof)
	require.ErrorIs(t, err, ErrUnknownUser)

	_, err = f.ledger.CreateConnection(f.ctx, wallet(0xBB), 99, trust, proof)
	require.ErrorIs(t, err, ErrUnknownUser)
	assert.Zero(t, f.profile(bob).ConnectionCount)
}

func TestFacadeInteractionRequiresParticipant(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	f.register(0xCC, "carol")
	conn := f.connect(0xAA, bob)

	_, err := f.interact(0xCC, conn, "h")
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.interact(0xAA, 42, "h")
	require.ErrorIs(t, err, ErrNotFound)

	list, err := f.ledger.Interactions().ListByConnection(f.ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateProfileOwnerOnly(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	alice := f.register(0xAA, "alice")

	require.NoError(t, f.ledger.UpdateProfile(f.ctx, wallet(0xAA), "alice2", "new bio"))
	p := f.profile(alice)
	assert.Equal(t, "alice2", p.Username)
	assert.Equal(t, "new bio", p.Bio)

	err := f.ledger.UpdateProfile(f.ctx, wallet(0xBB), "mallory", "")
	require.ErrorIs(t, err, ErrUnknownUser)

	err = f.ledger.UpdateProfile(f.ctx, wallet(0xAA), "", "")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "alice2", f.profile(alice).Username)
}

func TestStatsCountsEntities(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	alice := f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	carol := f.register(0xCC, "carol")
	c1 := f.connect(0xAA, bob)
	f.connect(0xAA, carol)
	for i := 0; i < 3; i++ {
		_, err := f.interact(0xAA, c1, "h")
		require.NoError(t, err)
	}
	require.NoError(t, f.ledger.Identities().Verify(f.ctx, alice))
	require.NoError(t, f.ledger.Identities().Deactivate(f.ctx, carol))
	require.NoError(t, f.ledger.Graph().DeactivateConnection(f.ctx, c1))

	s, err := f.ledger.Stats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Users:             3,
		ActiveUsers:       2,
		VerifiedUsers:     1,
		Connections:       2,
		ActiveConnections: 1,
		Interactions:      3,
	}, s)
}

func TestNewRequiresVerifierAndStore(t *testing.T) { // A
	t.Parallel()
	_, err := New(nil, Options{})
	require.Error(t, err)

	f := newFixture(t)
	_, err = New(f.ledger.c.store, Options{})
	require.Error(t, err)
}
