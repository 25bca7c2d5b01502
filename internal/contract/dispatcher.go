// Package contract decodes ABI-encoded calls against the social ledger.
// The mutating methods keep the on-chain contract's signatures.
// getUserProfile differs: it returns the reputation ciphertext handle as
// bytes and the connection count as uint32 where the contract declares
// two uint8 values.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/ledger"
	"github.com/neonsphere/weave/pkg/model"
)

var (
	ErrShortCalldata = errors.New("contract: calldata shorter than a selector")
	ErrUnknownMethod = errors.New("contract: unknown method")
	ErrBadArguments  = errors.New("contract: bad arguments")
)

// Dispatcher routes calldata to a SocialLedger.
type Dispatcher struct {
	abi    abi.ABI
	ledger *ledger.SocialLedger
	log    *logrus.Logger
}

// ABI returns the parsed method table the dispatcher serves.
func ABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse contract abi: %w", err)
	}
	return parsed, nil
}

func NewDispatcher(l *ledger.SocialLedger, log *logrus.Logger) (*Dispatcher, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}
	return &Dispatcher{abi: parsed, ledger: l, log: log}, nil
}

// ABI returns the parsed method table, for building calldata.
func (d *Dispatcher) ABI() abi.ABI { return d.abi }

// Call executes calldata on behalf of sender and returns the
// ABI-encoded outputs.
func (d *Dispatcher) Call(
	ctx context.Context,
	sender common.Address,
	calldata []byte,
) ([]byte, error) {
	if len(calldata) < 4 {
		return nil, ErrShortCalldata
	}
	method, err := d.abi.MethodById(calldata[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrUnknownMethod, calldata[:4])
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadArguments, method.Name, err)
	}
	d.log.WithFields(logrus.Fields{
		"method": method.Name,
		"sender": sender.Hex(),
	}).Debug("dispatching call")

	var out []interface{}
	switch method.Name {
	case "registerUser":
		out, err = d.registerUser(ctx, sender, args)
	case "createConnection":
		out, err = d.createConnection(ctx, sender, args)
	case "createInteraction":
		out, err = d.createInteraction(ctx, sender, args)
	case "updateProfile":
		out, err = d.updateProfile(ctx, sender, args)
	case "getUserProfile":
		out, err = d.getUserProfile(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method.Name)
	}
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (d *Dispatcher) registerUser(ctx context.Context, sender common.Address, args []interface{}) ([]interface{}, error) {
	username, bio := args[0].(string), args[1].(string)
	rep := DecodeHandle(args[2].([]byte), cipher.KindUint8)
	id, err := d.ledger.RegisterUser(ctx, sender, username, bio, rep, cipher.Proof(args[3].([]byte)))
	if err != nil {
		return nil, err
	}
	return []interface{}{new(big.Int).SetUint64(uint64(id))}, nil
}

// createConnection takes the counterpart's wallet, as the contract does.
func (d *Dispatcher) createConnection(ctx context.Context, sender common.Address, args []interface{}) ([]interface{}, error) {
	wallet := args[0].(common.Address)
	other, err := d.ledger.Identities().Lookup(ctx, wallet)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("%w: wallet %s", ledger.ErrUnknownUser, wallet.Hex())
	}
	if err != nil {
		return nil, err
	}
	trust := DecodeHandle(args[1].([]byte), cipher.KindUint8)
	id, err := d.ledger.CreateConnection(ctx, sender, other, trust, cipher.Proof(args[2].([]byte)))
	if err != nil {
		return nil, err
	}
	return []interface{}{new(big.Int).SetUint64(uint64(id))}, nil
}

func (d *Dispatcher) createInteraction(ctx context.Context, sender common.Address, args []interface{}) ([]interface{}, error) {
	connID, err := toID(args[0].(*big.Int))
	if err != nil {
		return nil, fmt.Errorf("%w: connection %w", ledger.ErrNotFound, err)
	}
	typ := DecodeHandle(args[1].([]byte), cipher.KindUint8)
	sentiment := DecodeHandle(args[2].([]byte), cipher.KindUint8)
	id, err := d.ledger.CreateInteraction(
		ctx, sender, model.ConnectionID(connID),
		typ, cipher.Proof(args[4].([]byte)),
		sentiment, cipher.Proof(args[5].([]byte)),
		args[3].(string),
	)
	if err != nil {
		return nil, err
	}
	return []interface{}{new(big.Int).SetUint64(uint64(id))}, nil
}

func (d *Dispatcher) updateProfile(ctx context.Context, sender common.Address, args []interface{}) ([]interface{}, error) {
	return nil, d.ledger.UpdateProfile(ctx, sender, args[0].(string), args[1].(string))
}

func (d *Dispatcher) getUserProfile(ctx context.Context, args []interface{}) ([]interface{}, error) {
	id, err := toID(args[0].(*big.Int))
	if err != nil {
		return nil, fmt.Errorf("%w: user %w", ledger.ErrNotFound, err)
	}
	p, err := d.ledger.GetUserProfile(ctx, model.UserID(id))
	if err != nil {
		return nil, err
	}
	return []interface{}{
		p.Username,
		p.Bio,
		EncodeHandle(p.Reputation),
		p.ConnectionCount,
		p.IsActive,
		p.IsVerified,
		p.Wallet,
		big.NewInt(p.CreatedAt.Unix()),
		big.NewInt(p.LastSeen.Unix()),
	}, nil
}

// toID narrows an ABI uint256 to a ledger id.
func toID(b *big.Int) (uint64, error) {
	u, overflow := uint256.FromBig(b)
	if overflow || !u.IsUint64() {
		return 0, fmt.Errorf("id %s out of range", b)
	}
	return u.Uint64(), nil
}

// DecodeHandle reads a handle from ABI bytes. A payload one byte longer
// than PayloadSize carries its kind in the first byte; anything else
// takes kind def and is left for the ledger to validate.
func DecodeHandle(b []byte, def cipher.Kind) cipher.Handle {
	if len(b) == cipher.PayloadSize+1 {
		return cipher.NewHandle(cipher.Kind(b[0]), b[1:])
	}
	return cipher.NewHandle(def, b)
}

// EncodeHandle writes h as a kind byte followed by its payload.
func EncodeHandle(h cipher.Handle) []byte {
	out := make([]byte, 0, 1+len(h.Payload))
	out = append(out, byte(h.Kind))
	return append(out, h.Payload...)
}
