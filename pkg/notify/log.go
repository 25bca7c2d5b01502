package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/pkg/ledger"
)

// LogSink writes every event to a logrus logger at Info level.
type LogSink struct {
	Log *logrus.Logger
}

func (s LogSink) Publish(_ context.Context, ev ledger.Event) error {
	fields := logrus.Fields{
		"event":    ev.Type.String(),
		"sequence": ev.Sequence,
	}
	if ev.UserID != 0 {
		fields["userID"] = ev.UserID
	}
	if ev.Wallet != nil {
		fields["wallet"] = ev.Wallet.Hex()
	}
	if ev.ConnectionID != 0 {
		fields["connectionID"] = ev.ConnectionID
	}
	if ev.InteractionID != 0 {
		fields["interactionID"] = ev.InteractionID
	}
	if ev.UserA != 0 {
		fields["userA"] = ev.UserA
		fields["userB"] = ev.UserB
	}
	s.Log.WithFields(fields).Info("ledger event")
	return nil
}
