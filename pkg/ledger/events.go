package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/pkg/model"
)

// EventType names a committed ledger change.
type EventType uint8 // A

const ( // A
	UserRegistered EventType = iota + 1
	ConnectionCreated
	InteractionCreated
	UserDeactivated
	UserVerified
	ConnectionDeactivated
	ProfileUpdated
	ReputationUpdated
)

var eventNames = map[EventType]string{ // A
	UserRegistered:        "UserRegistered",
	ConnectionCreated:     "ConnectionCreated",
	InteractionCreated:    "InteractionCreated",
	UserDeactivated:       "UserDeactivated",
	UserVerified:          "UserVerified",
	ConnectionDeactivated: "ConnectionDeactivated",
	ProfileUpdated:        "ProfileUpdated",
	ReputationUpdated:     "ReputationUpdated",
}

// String returns the event name.
func (t EventType) String() string { // A
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "Unknown"
}

// MarshalText encodes the event name.
func (t EventType) MarshalText() ([]byte, error) { // A
	return []byte(t.String()), nil
}

// UnmarshalText decodes an event name.
func (t *EventType) UnmarshalText(b []byte) error { // A
	for k, v := range eventNames {
		if v == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", b)
}

// Event carries the id of the entity a change created or touched plus
// its primary foreign keys. Fields that do not apply are zero.
type Event struct { // A
	Type          EventType           `json:"type"`
	Sequence      uint64              `json:"sequence"`
	UserID        model.UserID        `json:"userId,omitempty"`
	Wallet        *common.Address     `json:"wallet,omitempty"`
	ConnectionID  model.ConnectionID  `json:"connectionId,omitempty"`
	InteractionID model.InteractionID `json:"interactionId,omitempty"`
	UserA         model.UserID        `json:"userA,omitempty"`
	UserB         model.UserID        `json:"userB,omitempty"`
	At            time.Time           `json:"at"`
}

// EventSink receives committed events in commit order. Publish runs
// while later commits wait for delivery, so sinks must return promptly
// and must not call mutating ledger methods.
type EventSink interface { // A
	Publish(ctx context.Context, ev Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event) error // A

// Publish calls f.
func (f EventSinkFunc) Publish(ctx context.Context, ev Event) error { // A
	return f(ctx, ev)
}

type subscription struct { // A
	id   uint64
	sink EventSink
}

// eventBus fans committed events out to subscribed sinks. A failing
// sink is logged and does not affect the others.
type eventBus struct { // A
	log *logrus.Logger

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	seq    uint64
}

func newEventBus(log *logrus.Logger) *eventBus { // A
	return &eventBus{log: log}
}

func (b *eventBus) subscribe(sink EventSink) func() { // A
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, sink: sink})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// publish delivers events in order. Callers serialize publish calls.
func (b *eventBus) publish(ctx context.Context, events []Event) { // A
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, ev := range events {
		b.seq++
		ev.Sequence = b.seq
		for _, s := range subs {
			if err := s.sink.Publish(ctx, ev); err != nil {
				b.log.WithError(err).WithFields(logrus.Fields{
					"event":    ev.Type.String(),
					"sequence": ev.Sequence,
				}).Warn("event sink failed")
			}
		}
	}
}
