package ledger

import (
	"context"

	"github.com/neonsphere/weave/internal/codec"
	"github.com/neonsphere/weave/internal/kvstore"
)

// Stats summarizes the ledger at one point in time.
type Stats struct { // A
	Users             int `json:"users"`
	ActiveUsers       int `json:"activeUsers"`
	VerifiedUsers     int `json:"verifiedUsers"`
	Connections       int `json:"connections"`
	ActiveConnections int `json:"activeConnections"`
	Interactions      int `json:"interactions"`
}

// Stats counts entities on a single snapshot.
func (l *SocialLedger) Stats(ctx context.Context) (Stats, error) { // A
	var s Stats
	err := l.c.read(ctx, func(txn *kvstore.Txn) error {
		err := txn.Iterate(prefixUser, func(_, v []byte) error {
			u, err := codec.DecodeUser(v)
			if err != nil {
				return err
			}
			s.Users++
			if u.IsActive {
				s.ActiveUsers++
			}
			if u.IsVerified {
				s.VerifiedUsers++
			}
			return nil
		})
		if err != nil {
			return err
		}
		err = txn.Iterate(prefixConnection, func(_, v []byte) error {
			c, err := codec.DecodeConnection(v)
			if err != nil {
				return err
			}
			s.Connections++
			if c.IsActive {
				s.ActiveConnections++
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.Interactions, err = txn.CountPrefix(prefixInteraction)
		return err
	})
	return s, err
}
