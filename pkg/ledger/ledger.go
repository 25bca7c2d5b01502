// Package ledger is the encrypted social-graph ledger: users, the
// connections between them and the interactions recorded on those
// connections. Encrypted values stay opaque; the ledger only stores
// them after an external verifier has accepted their proofs.
//
// Every mutation runs under one writer lock inside one store
// transaction, so uniqueness checks and the inserts they guard are
// atomic. Reads run on store snapshots and never see partial writes.
//
// Example:
//
//	kv, _ := kvstore.NewKeyValStore(kvstore.StoreConfig{InMemory: true})
//	l, _ := ledger.New(kv, ledger.Options{Verifier: verifier})
//	id, err := l.RegisterUser(ctx, wallet, "alice", "", rep, proof)
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/internal/kvstore"
	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

// Options configures a SocialLedger. Verifier is required.
type Options struct { // A
	Verifier cipher.Verifier
	// Clock defaults to the wall clock.
	Clock Clock
	// Logger defaults to logrus.New().
	Logger *logrus.Logger
	Limits Limits
	// Aggregator enables ApplyReputationDelta.
	Aggregator ReputationAggregator
	// Content, when set, makes interactions reject content hashes it
	// does not know.
	Content ContentIndex
}

// SocialLedger is the façade applications integrate against. Calls
// issued on behalf of a wallet resolve that wallet first and record the
// caller's activity in the same transaction.
type SocialLedger struct { // A
	c            *core
	identities   *IdentityRegistry
	graph        *ConnectionGraph
	interactions *InteractionLog
}

// New builds a ledger on an open store.
func New(store *kvstore.KeyValStore, opts Options) (*SocialLedger, error) { // A
	if store == nil {
		return nil, errors.New("ledger: nil store")
	}
	if opts.Verifier == nil {
		return nil, errors.New("ledger: a proof verifier is required")
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	opts.Limits.applyDefaults()

	c := &core{
		store:      store,
		verifier:   opts.Verifier,
		clock:      opts.Clock,
		log:        opts.Logger,
		limits:     opts.Limits,
		aggregator: opts.Aggregator,
		content:    opts.Content,
		bus:        newEventBus(opts.Logger),
	}
	return &SocialLedger{
		c:            c,
		identities:   &IdentityRegistry{c: c},
		graph:        &ConnectionGraph{c: c},
		interactions: &InteractionLog{c: c},
	}, nil
}

// Identities returns the identity registry.
func (l *SocialLedger) Identities() *IdentityRegistry { return l.identities } // A

// Graph returns the connection graph.
func (l *SocialLedger) Graph() *ConnectionGraph { return l.graph } // A

// Interactions returns the interaction log.
func (l *SocialLedger) Interactions() *InteractionLog { return l.interactions } // A

// Subscribe registers sink for committed events and returns a function
// that removes it.
func (l *SocialLedger) Subscribe(sink EventSink) func() { // A
	return l.c.bus.subscribe(sink)
}

// OnInteractionRecorded registers a hook run after every committed
// interaction.
func (l *SocialLedger) OnInteractionRecorded(h InteractionHook) { // A
	l.c.addHook(h)
}

// Exclusive runs fn while no ledger mutation can start or commit.
// Reads keep working. fn must not call mutating ledger methods.
func (l *SocialLedger) Exclusive( // A
	ctx context.Context,
	fn func() error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.c.writeMu.Lock()
	defer l.c.writeMu.Unlock()
	return fn()
}

// RegisterUser registers wallet with an encrypted initial reputation.
func (l *SocialLedger) RegisterUser( // A
	ctx context.Context,
	wallet common.Address,
	username string,
	bio string,
	initialReputation cipher.Handle,
	proof cipher.Proof,
) (model.UserID, error) {
	return l.identities.Register(ctx, wallet, username, bio, initialReputation, proof)
}

// CreateConnection connects the user owning wallet with otherUser.
func (l *SocialLedger) CreateConnection( // A
	ctx context.Context,
	wallet common.Address,
	otherUser model.UserID,
	trustLevel cipher.Handle,
	proof cipher.Proof,
) (model.ConnectionID, error) {
	var id model.ConnectionID
	err := l.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		actor, err := l.identities.actor(txn, wallet)
		if err != nil {
			return err
		}
		id, err = l.graph.create(ctx, txn, em, actor.ID, otherUser, trustLevel, proof)
		if err != nil {
			return err
		}
		return l.c.touch(txn, actor.ID)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateInteraction records an interaction on a connection the user
// owning wallet is part of.
func (l *SocialLedger) CreateInteraction( // A
	ctx context.Context,
	wallet common.Address,
	connID model.ConnectionID,
	interactionType cipher.Handle,
	typeProof cipher.Proof,
	sentimentScore cipher.Handle,
	sentimentProof cipher.Proof,
	contentHash string,
) (model.InteractionID, error) {
	var rec *model.Interaction
	err := l.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		actor, err := l.identities.actor(txn, wallet)
		if err != nil {
			return err
		}
		conn, err := l.c.loadConnection(txn, connID)
		if err != nil {
			return err
		}
		if !conn.Involves(actor.ID) {
			return fmt.Errorf(
				"%w: user %d on connection %d",
				ErrNotParticipant, actor.ID, conn.ID,
			)
		}
		rec, err = l.interactions.create(
			ctx, txn, em, conn,
			interactionType, typeProof,
			sentimentScore, sentimentProof,
			contentHash,
		)
		if err != nil {
			return err
		}
		return l.c.touch(txn, actor.ID)
	})
	if err != nil {
		return 0, err
	}
	l.c.runHooks(ctx, rec.View(true))
	return rec.ID, nil
}

// GetUserProfile returns the profile of a user.
func (l *SocialLedger) GetUserProfile( // A
	ctx context.Context,
	id model.UserID,
) (model.UserProfileView, error) {
	return l.identities.GetProfile(ctx, id)
}

// UpdateProfile edits the username and bio of the user owning wallet.
func (l *SocialLedger) UpdateProfile( // A
	ctx context.Context,
	wallet common.Address,
	username string,
	bio string,
) error {
	return l.identities.UpdateProfile(ctx, wallet, username, bio)
}
