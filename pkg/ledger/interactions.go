package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/internal/codec"
	"github.com/neonsphere/weave/internal/kvstore"
	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

// InteractionLog is the append-only record of interactions per
// connection. Records are never updated or removed.
type InteractionLog struct { // A
	c *core
}

// CreateInteraction appends an interaction to an active connection.
// Each ciphertext is verified on its own; a rejection names the
// argument it concerns (see ProofField).
func (l *InteractionLog) CreateInteraction( // A
	ctx context.Context,
	connID model.ConnectionID,
	interactionType cipher.Handle,
	typeProof cipher.Proof,
	sentimentScore cipher.Handle,
	sentimentProof cipher.Proof,
	contentHash string,
) (model.InteractionID, error) {
	var rec *model.Interaction
	err := l.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		conn, err := l.c.loadConnection(txn, connID)
		if err != nil {
			return err
		}
		rec, err = l.create(
			ctx, txn, em, conn,
			interactionType, typeProof,
			sentimentScore, sentimentProof,
			contentHash,
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	l.c.runHooks(ctx, rec.View(true))
	return rec.ID, nil
}

func (l *InteractionLog) create( // A
	ctx context.Context,
	txn *kvstore.Txn,
	em *emitter,
	conn *model.Connection,
	typ cipher.Handle,
	typeProof cipher.Proof,
	sentiment cipher.Handle,
	sentimentProof cipher.Proof,
	contentHash string,
) (*model.Interaction, error) {
	if !conn.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrInactiveConnection, conn.ID)
	}
	if err := l.c.checkText(
		"contentHash", contentHash, l.c.limits.MaxContentHashLen, true,
	); err != nil {
		return nil, err
	}
	if err := checkHandle("interactionType", typ); err != nil {
		return nil, err
	}
	if err := checkHandle("sentimentScore", sentiment); err != nil {
		return nil, err
	}
	if l.c.content != nil {
		ok, err := l.c.content.Has(ctx, contentHash)
		if err != nil {
			return nil, fmt.Errorf("look up content %q: %w", contentHash, err)
		}
		if !ok {
			return nil, validationErr(
				"contentHash", fmt.Errorf("unknown content %q", contentHash),
			)
		}
	}

	if err := l.c.verify(ctx, "interactionType", typ, typeProof); err != nil {
		return nil, err
	}
	if err := l.c.verify(ctx, "sentimentScore", sentiment, sentimentProof); err != nil {
		return nil, err
	}

	seq, err := txn.NextSequence(seqInteraction)
	if err != nil {
		return nil, fmt.Errorf("allocate interaction id: %w", err)
	}
	rec := &model.Interaction{
		ID:              model.InteractionID(seq),
		ConnectionID:    conn.ID,
		InteractionType: typ.Clone(),
		SentimentScore:  sentiment.Clone(),
		ContentHash:     contentHash,
		CreatedAt:       l.c.now(),
	}
	if err := txn.Set(interactionKey(rec.ID), codec.EncodeInteraction(rec)); err != nil {
		return nil, err
	}
	if err := txn.Set(connLogKey(conn.ID, rec.ID), []byte{}); err != nil {
		return nil, err
	}

	em.emit(Event{
		Type:          InteractionCreated,
		InteractionID: rec.ID,
		ConnectionID:  conn.ID,
		UserA:         conn.UserA,
		UserB:         conn.UserB,
		At:            rec.CreatedAt,
	})
	l.c.log.WithFields(logrus.Fields{
		"interactionID": rec.ID,
		"connectionID":  conn.ID,
	}).Debug("interaction recorded")
	return rec, nil
}

// ListByConnection returns every interaction of a connection in
// creation order. Each call reads the current history afresh.
func (l *InteractionLog) ListByConnection( // A
	ctx context.Context,
	connID model.ConnectionID,
) ([]model.InteractionView, error) {
	out := []model.InteractionView{}
	err := l.c.read(ctx, func(txn *kvstore.Txn) error {
		conn, err := l.c.loadConnection(txn, connID)
		if err != nil {
			return err
		}
		return txn.IterateKeys(connLogPrefix(connID), func(k []byte) error {
			rec, err := l.load(txn, model.InteractionID(trailingID(k)))
			if err != nil {
				return err
			}
			out = append(out, rec.View(conn.IsActive))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetInteraction returns a single interaction.
func (l *InteractionLog) GetInteraction( // A
	ctx context.Context,
	id model.InteractionID,
) (model.InteractionView, error) {
	var view model.InteractionView
	err := l.c.read(ctx, func(txn *kvstore.Txn) error {
		rec, err := l.load(txn, id)
		if err != nil {
			return err
		}
		conn, err := l.c.loadConnection(txn, rec.ConnectionID)
		if err != nil {
			return err
		}
		view = rec.View(conn.IsActive)
		return nil
	})
	return view, err
}

func (l *InteractionLog) load( // A
	txn *kvstore.Txn,
	id model.InteractionID,
) (*model.Interaction, error) {
	raw, err := txn.Get(interactionKey(id))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: interaction %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load interaction %d: %w", id, err)
	}
	return codec.DecodeInteraction(raw)
}
