package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/internal/kvstore"
	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

// ConnectionGraph owns connections. Each unordered pair of users is
// connected at most once; the relationship is symmetric.
type ConnectionGraph struct { // A
	c *core
}

// CreateConnection connects two distinct active users. Both users'
// connection counts are incremented in the same transaction as the
// insert.
func (g *ConnectionGraph) CreateConnection( // A
	ctx context.Context,
	userA model.UserID,
	userB model.UserID,
	trustLevel cipher.Handle,
	proof cipher.Proof,
) (model.ConnectionID, error) {
	var id model.ConnectionID
	err := g.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		var err error
		id, err = g.create(ctx, txn, em, userA, userB, trustLevel, proof)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// endpoint loads a connection endpoint, translating absence into
// ErrUnknownUser.
func (g *ConnectionGraph) endpoint( // A
	txn *kvstore.Txn,
	id model.UserID,
) (*model.User, error) {
	u, err := g.c.loadUser(txn, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUser, id)
	}
	return u, err
}

func (g *ConnectionGraph) create( // A
	ctx context.Context,
	txn *kvstore.Txn,
	em *emitter,
	a model.UserID,
	b model.UserID,
	trust cipher.Handle,
	proof cipher.Proof,
) (model.ConnectionID, error) {
	if a == b {
		return 0, fmt.Errorf("%w: user %d", ErrSelfConnection, a)
	}
	pair := model.NewPair(a, b)

	low, err := g.endpoint(txn, pair.Low)
	if err != nil {
		return 0, err
	}
	high, err := g.endpoint(txn, pair.High)
	if err != nil {
		return 0, err
	}
	for _, u := range []*model.User{low, high} {
		if !u.IsActive {
			return 0, fmt.Errorf("%w: %d", ErrInactiveUser, u.ID)
		}
	}
	exists, err := txn.Has(pairKey(pair))
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf(
			"%w: users %d and %d",
			ErrDuplicateConnection, pair.Low, pair.High,
		)
	}
	if err := checkHandle("trustLevel", trust); err != nil {
		return 0, err
	}

	if err := g.c.verify(ctx, "trustLevel", trust, proof); err != nil {
		return 0, err
	}

	seq, err := txn.NextSequence(seqConnection)
	if err != nil {
		return 0, fmt.Errorf("allocate connection id: %w", err)
	}
	now := g.c.now()
	conn := &model.Connection{
		ID:         model.ConnectionID(seq),
		UserA:      pair.Low,
		UserB:      pair.High,
		TrustLevel: trust.Clone(),
		IsActive:   true,
		CreatedAt:  now,
	}
	if err := g.c.saveConnection(txn, conn); err != nil {
		return 0, err
	}
	if err := txn.Set(pairKey(pair), encodeID(seq)); err != nil {
		return 0, err
	}
	for _, u := range []*model.User{low, high} {
		if err := txn.Set(adjacencyKey(u.ID, conn.ID), []byte{}); err != nil {
			return 0, err
		}
		u.ConnectionCount++
		if err := g.c.saveUser(txn, u); err != nil {
			return 0, err
		}
	}

	em.emit(Event{
		Type:         ConnectionCreated,
		ConnectionID: conn.ID,
		UserA:        conn.UserA,
		UserB:        conn.UserB,
		At:           now,
	})
	g.c.log.WithFields(logrus.Fields{
		"connectionID": conn.ID,
		"userA":        conn.UserA,
		"userB":        conn.UserB,
	}).Debug("connection created")
	return conn.ID, nil
}

// GetConnection returns the read projection of a connection.
func (g *ConnectionGraph) GetConnection( // A
	ctx context.Context,
	id model.ConnectionID,
) (model.ConnectionView, error) {
	var view model.ConnectionView
	err := g.c.read(ctx, func(txn *kvstore.Txn) error {
		conn, err := g.c.loadConnection(txn, id)
		if err != nil {
			return err
		}
		view = conn.View()
		return nil
	})
	return view, err
}

// FindConnection looks up the connection between a and b in either
// order. The boolean is false when none exists.
func (g *ConnectionGraph) FindConnection( // A
	ctx context.Context,
	a model.UserID,
	b model.UserID,
) (model.ConnectionID, bool, error) {
	var (
		id    model.ConnectionID
		found bool
	)
	err := g.c.read(ctx, func(txn *kvstore.Txn) error {
		var err error
		id, found, err = g.find(txn, a, b)
		return err
	})
	return id, found, err
}

func (g *ConnectionGraph) find( // A
	txn *kvstore.Txn,
	a model.UserID,
	b model.UserID,
) (model.ConnectionID, bool, error) {
	raw, err := txn.Get(pairKey(model.NewPair(a, b)))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return model.ConnectionID(trailingID(raw)), true, nil
}

// ConnectionsOf lists the connections a user is part of, oldest first.
func (g *ConnectionGraph) ConnectionsOf( // A
	ctx context.Context,
	user model.UserID,
) ([]model.ConnectionView, error) {
	var out []model.ConnectionView
	err := g.c.read(ctx, func(txn *kvstore.Txn) error {
		if _, err := g.c.loadUser(txn, user); err != nil {
			return err
		}
		return txn.IterateKeys(adjacencyPrefix(user), func(k []byte) error {
			conn, err := g.c.loadConnection(txn, model.ConnectionID(trailingID(k)))
			if err != nil {
				return err
			}
			out = append(out, conn.View())
			return nil
		})
	})
	return out, err
}

// DeactivateConnection marks a connection inactive. Its interactions
// stay readable but are reported as no longer valid, and no new ones
// can be recorded. Calling it again is a no-op.
func (g *ConnectionGraph) DeactivateConnection( // A
	ctx context.Context,
	id model.ConnectionID,
) error {
	return g.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		conn, err := g.c.loadConnection(txn, id)
		if err != nil {
			return err
		}
		if !conn.IsActive {
			return nil
		}
		conn.IsActive = false
		if err := g.c.saveConnection(txn, conn); err != nil {
			return err
		}
		em.emit(Event{
			Type:         ConnectionDeactivated,
			ConnectionID: conn.ID,
			UserA:        conn.UserA,
			UserB:        conn.UserB,
			At:           g.c.now(),
		})
		return nil
	})
}
