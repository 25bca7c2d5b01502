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

// IdentityRegistry owns users. A wallet registers at most once for the
// lifetime of the ledger and users are never removed.
type IdentityRegistry struct { // A
	c *core
}

// Register creates a user for wallet. The initial reputation must carry
// a proof the verifier accepts. Nothing is stored when any check fails.
func (r *IdentityRegistry) Register( // A
	ctx context.Context,
	wallet common.Address,
	username string,
	bio string,
	initialReputation cipher.Handle,
	proof cipher.Proof,
) (model.UserID, error) {
	var id model.UserID
	err := r.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		var err error
		id, err = r.register(ctx, txn, em, wallet, username, bio, initialReputation, proof)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *IdentityRegistry) register( // A
	ctx context.Context,
	txn *kvstore.Txn,
	em *emitter,
	wallet common.Address,
	username string,
	bio string,
	rep cipher.Handle,
	proof cipher.Proof,
) (model.UserID, error) {
	if wallet == (common.Address{}) {
		return 0, validationErr("wallet", model.ErrInvalidWallet)
	}
	// a registered wallet is reported as such whatever else is wrong
	taken, err := txn.Has(walletKey(wallet))
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateWallet, wallet.Hex())
	}

	if err := r.validateProfile(username, bio); err != nil {
		return 0, err
	}
	if err := checkHandle("initialReputation", rep); err != nil {
		return 0, err
	}

	if err := r.c.verify(ctx, "initialReputation", rep, proof); err != nil {
		return 0, err
	}

	seq, err := txn.NextSequence(seqUser)
	if err != nil {
		return 0, fmt.Errorf("allocate user id: %w", err)
	}
	now := r.c.now()
	u := &model.User{
		ID:         model.UserID(seq),
		Wallet:     wallet,
		Username:   username,
		Bio:        bio,
		Reputation: rep.Clone(),
		IsActive:   true,
		CreatedAt:  now,
		LastSeen:   now,
	}
	if err := r.c.saveUser(txn, u); err != nil {
		return 0, err
	}
	if err := txn.Set(walletKey(wallet), encodeID(seq)); err != nil {
		return 0, err
	}

	w := wallet
	em.emit(Event{Type: UserRegistered, UserID: u.ID, Wallet: &w, At: now})
	r.c.log.WithFields(logrus.Fields{
		"userID": u.ID,
		"wallet": wallet.Hex(),
	}).Debug("user registered")
	return u.ID, nil
}

func (r *IdentityRegistry) validateProfile(username, bio string) error { // A
	if err := r.c.checkText("username", username, r.c.limits.MaxUsernameLen, true); err != nil {
		return err
	}
	return r.c.checkText("bio", bio, r.c.limits.MaxBioLen, false)
}

// GetProfile returns the read projection of a user. The reputation is
// returned as the stored ciphertext handle.
func (r *IdentityRegistry) GetProfile( // A
	ctx context.Context,
	id model.UserID,
) (model.UserProfileView, error) {
	var view model.UserProfileView
	err := r.c.read(ctx, func(txn *kvstore.Txn) error {
		u, err := r.c.loadUser(txn, id)
		if err != nil {
			return err
		}
		view = u.View()
		return nil
	})
	return view, err
}

// Lookup resolves a wallet to its user id.
func (r *IdentityRegistry) Lookup( // A
	ctx context.Context,
	wallet common.Address,
) (model.UserID, error) {
	var id model.UserID
	err := r.c.read(ctx, func(txn *kvstore.Txn) error {
		u, err := r.byWallet(txn, wallet)
		if err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	return id, err
}

func (r *IdentityRegistry) byWallet( // A
	txn *kvstore.Txn,
	wallet common.Address,
) (*model.User, error) {
	raw, err := txn.Get(walletKey(wallet))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, wallet.Hex())
	}
	if err != nil {
		return nil, err
	}
	if len(raw) != 8 {
		return nil, fmt.Errorf("corrupt wallet index for %s", wallet.Hex())
	}
	return r.c.loadUser(txn, model.UserID(trailingID(raw)))
}

// actor resolves the wallet issuing a call. Unregistered wallets are
// reported as ErrUnknownUser.
func (r *IdentityRegistry) actor( // A
	txn *kvstore.Txn,
	wallet common.Address,
) (*model.User, error) {
	u, err := r.byWallet(txn, wallet)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: wallet %s", ErrUnknownUser, wallet.Hex())
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrInactiveUser, u.ID)
	}
	return u, nil
}

// Touch records activity of the user.
func (r *IdentityRegistry) Touch(ctx context.Context, id model.UserID) error { // A
	return r.c.mutate(ctx, func(txn *kvstore.Txn, _ *emitter) error {
		return r.c.touch(txn, id)
	})
}

// Deactivate soft-deletes a user. Calling it again is a no-op.
func (r *IdentityRegistry) Deactivate(ctx context.Context, id model.UserID) error { // A
	return r.transition(ctx, id, UserDeactivated, func(u *model.User) bool {
		if !u.IsActive {
			return false
		}
		u.IsActive = false
		return true
	})
}

// Verify marks a user as verified. Calling it again is a no-op.
func (r *IdentityRegistry) Verify(ctx context.Context, id model.UserID) error { // A
	return r.transition(ctx, id, UserVerified, func(u *model.User) bool {
		if u.IsVerified {
			return false
		}
		u.IsVerified = true
		return true
	})
}

// transition applies an administrative flag change. change reports
// whether anything changed; unchanged users are neither written nor
// announced.
func (r *IdentityRegistry) transition( // A
	ctx context.Context,
	id model.UserID,
	evType EventType,
	change func(u *model.User) bool,
) error {
	return r.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		u, err := r.c.loadUser(txn, id)
		if err != nil {
			return err
		}
		if !change(u) {
			return nil
		}
		if err := r.c.saveUser(txn, u); err != nil {
			return err
		}
		em.emit(Event{Type: evType, UserID: u.ID, At: r.c.now()})
		r.c.log.WithFields(logrus.Fields{
			"userID": u.ID,
			"event":  evType.String(),
		}).Info("user state changed")
		return nil
	})
}

// UpdateProfile replaces username and bio of the user owning wallet.
func (r *IdentityRegistry) UpdateProfile( // A
	ctx context.Context,
	wallet common.Address,
	username string,
	bio string,
) error {
	if err := r.validateProfile(username, bio); err != nil {
		return err
	}
	return r.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		u, err := r.actor(txn, wallet)
		if err != nil {
			return err
		}
		u.Username = username
		u.Bio = bio
		now := r.c.now()
		if now.After(u.LastSeen) {
			u.LastSeen = now
		}
		if err := r.c.saveUser(txn, u); err != nil {
			return err
		}
		em.emit(Event{Type: ProfileUpdated, UserID: u.ID, At: now})
		return nil
	})
}

// ApplyReputationDelta folds an encrypted delta into a user's
// reputation through the configured aggregator. The delta must carry a
// proof the verifier accepts.
func (r *IdentityRegistry) ApplyReputationDelta( // A
	ctx context.Context,
	id model.UserID,
	delta cipher.Handle,
	proof cipher.Proof,
) error {
	if r.c.aggregator == nil {
		return ErrNoAggregator
	}
	if err := checkHandle("reputationDelta", delta); err != nil {
		return err
	}
	return r.c.mutate(ctx, func(txn *kvstore.Txn, em *emitter) error {
		u, err := r.c.loadUser(txn, id)
		if err != nil {
			return err
		}
		if err := r.c.verify(ctx, "reputationDelta", delta, proof); err != nil {
			return err
		}
		next, err := r.c.aggregator.Aggregate(ctx, u.Reputation.Clone(), delta.Clone())
		if err != nil {
			return fmt.Errorf("aggregate reputation of user %d: %w", id, err)
		}
		if err := next.Validate(); err != nil {
			return fmt.Errorf("aggregate reputation of user %d: %w", id, err)
		}
		u.Reputation = next.Clone()
		if err := r.c.saveUser(txn, u); err != nil {
			return err
		}
		em.emit(Event{Type: ReputationUpdated, UserID: u.ID, At: r.c.now()})
		return nil
	})
}
