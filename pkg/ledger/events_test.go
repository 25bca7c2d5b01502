package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsCarryIdsAndForeignKeys(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	alice := f.register(0xAA, "alice")
	bob := f.register(0xBB, "bob")
	conn := f.connect(0xBB, alice)
	inter, err := f.interact(0xAA, conn, "h")
	require.NoError(t, err)

	f.events.mu.Lock()
	evs := append([]Event(nil), f.events.events...)
	f.events.mu.Unlock()
	require.Len(t, evs, 4)

	assert.Equal(t, alice, evs[0].UserID)
	require.NotNil(t, evs[0].Wallet)
	assert.Equal(t, wallet(0xAA), *evs[0].Wallet)
	assert.Equal(t, bob, evs[1].UserID)

	assert.Equal(t, conn, evs[2].ConnectionID)
	assert.Equal(t, alice, evs[2].UserA)
	assert.Equal(t, bob, evs[2].UserB)

	assert.Equal(t, inter, evs[3].InteractionID)
	assert.Equal(t, conn, evs[3].ConnectionID)

	for i, ev := range evs {
		assert.Equal(t, uint64(i+1), ev.Sequence)
		assert.False(t, ev.At.IsZero())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	extra := &recorder{}
	cancel := f.ledger.Subscribe(extra)

	f.register(0xAA, "alice")
	cancel()
	cancel()
	f.register(0xBB, "bob")

	assert.Equal(t, []EventType{UserRegistered}, extra.types())
	assert.Len(t, f.events.types(), 2)
}

func TestFailingSinkDoesNotRollBack(t *testing.T) { // A
	t.Parallel()
	f := newFixture(t)
	f.ledger.Subscribe(EventSinkFunc(func(context.Context, Event) error {
		return errors.New("sink down")
	}))

	id := f.register(0xAA, "alice")
	assert.Equal(t, "alice", f.profile(id).Username)
	assert.Equal(t, []EventType{UserRegistered}, f.events.types())
}

func TestEventJSON(t *testing.T) { // A
	t.Parallel()
	w := wallet(0xAA)
	b, err := json.Marshal(Event{Type: ConnectionCreated, ConnectionID: 3, UserA: 1, UserB: 2})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"ConnectionCreated"`)
	assert.NotContains(t, string(b), "wallet")

	b, err = json.Marshal(Event{Type: UserRegistered, UserID: 1, Wallet: &w})
	require.NoError(t, err)
	var back Event
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, UserRegistered, back.Type)
	assert.Equal(t, w, *back.Wallet)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"Nope"}`), &back))
	assert.Equal(t, "Unknown", EventType(0).String())
}
