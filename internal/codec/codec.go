// Package codec encodes ledger records in the protobuf wire format. The
// field numbers below are the persisted schema; never renumber them.
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

var ErrCorrupt = errors.New("codec: corrupt record")

const (
	handleKind    protowire.Number = 1
	handlePayload protowire.Number = 2
)

const (
	userID              protowire.Number = 1
	userWallet          protowire.Number = 2
	userUsername        protowire.Number = 3
	userBio             protowire.Number = 4
	userReputation      protowire.Number = 5
	userConnectionCount protowire.Number = 6
	userIsActive        protowire.Number = 7
	userIsVerified      protowire.Number = 8
	userCreatedAt       protowire.Number = 9
	userLastSeen        protowire.Number = 10
)

const (
	connID         protowire.Number = 1
	connUserA      protowire.Number = 2
	connUserB      protowire.Number = 3
	connTrustLevel protowire.Number = 4
	connIsActive   protowire.Number = 5
	connCreatedAt  protowire.Number = 6
)

const (
	interID          protowire.Number = 1
	interConnection  protowire.Number = 2
	interType        protowire.Number = 3
	interSentiment   protowire.Number = 4
	interContentHash protowire.Number = 5
	interCreatedAt   protowire.Number = 6
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(t.UnixNano()))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendHandle(b []byte, num protowire.Number, h cipher.Handle) []byte {
	var inner []byte
	inner = appendVarint(inner, handleKind, uint64(h.Kind))
	inner = appendBytes(inner, handlePayload, h.Payload)
	return appendBytes(b, num, inner)
}

func decodeTime(v uint64) time.Time {
	return time.Unix(0, protowire.DecodeZigZag(v)).UTC()
}

// field is one decoded top-level field. Only the member matching typ
// is set.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

// walk decodes every field of b and hands it to fn. Unknown wire types
// are skipped so older binaries can read records from newer ones.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrCorrupt, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeHandle(b []byte) (cipher.Handle, error) {
	var h cipher.Handle
	err := walk(b, func(f field) error {
		switch f.num {
		case handleKind:
			h.Kind = cipher.Kind(f.varint)
		case handlePayload:
			h.Payload = append([]byte(nil), f.bytes...)
		}
		return nil
	})
	return h, err
}

func EncodeUser(u *model.User) []byte {
	var b []byte
	b = appendVarint(b, userID, uint64(u.ID))
	b = appendBytes(b, userWallet, u.Wallet.Bytes())
	b = appendString(b, userUsername, u.Username)
	b = appendString(b, userBio, u.Bio)
	b = appendHandle(b, userReputation, u.Reputation)
	b = appendVarint(b, userConnectionCount, uint64(u.ConnectionCount))
	b = appendBool(b, userIsActive, u.IsActive)
	b = appendBool(b, userIsVerified, u.IsVerified)
	b = appendTime(b, userCreatedAt, u.CreatedAt)
	b = appendTime(b, userLastSeen, u.LastSeen)
	return b
}

func DecodeUser(b []byte) (*model.User, error) {
	u := &model.User{}
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case userID:
			u.ID = model.UserID(f.varint)
		case userWallet:
			if len(f.bytes) != common.AddressLength {
				return fmt.Errorf("%w: wallet is %d bytes", ErrCorrupt, len(f.bytes))
			}
			u.Wallet = common.BytesToAddress(f.bytes)
		case userUsername:
			u.Username = string(f.bytes)
		case userBio:
			u.Bio = string(f.bytes)
		case userReputation:
			u.Reputation, err = decodeHandle(f.bytes)
		case userConnectionCount:
			u.ConnectionCount = uint32(f.varint)
		case userIsActive:
			u.IsActive = protowire.DecodeBool(f.varint)
		case userIsVerified:
			u.IsVerified = protowire.DecodeBool(f.varint)
		case userCreatedAt:
			u.CreatedAt = decodeTime(f.varint)
		case userLastSeen:
			u.LastSeen = decodeTime(f.varint)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("decode user: %w: missing id", ErrCorrupt)
	}
	return u, nil
}

func EncodeConnection(c *model.Connection) []byte {
	var b []byte
	b = appendVarint(b, connID, uint64(c.ID))
	b = appendVarint(b, connUserA, uint64(c.UserA))
	b = appendVarint(b, connUserB, uint64(c.UserB))
	b = appendHandle(b, connTrustLevel, c.TrustLevel)
	b = appendBool(b, connIsActive, c.IsActive)
	b = appendTime(b, connCreatedAt, c.CreatedAt)
	return b
}

func DecodeConnection(b []byte) (*model.Connection, error) {
	c := &model.Connection{}
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case connID:
			c.ID = model.ConnectionID(f.varint)
		case connUserA:
			c.UserA = model.UserID(f.varint)
		case connUserB:
			c.UserB = model.UserID(f.varint)
		case connTrustLevel:
			c.TrustLevel, err = decodeHandle(f.bytes)
		case connIsActive:
			c.IsActive = protowire.DecodeBool(f.varint)
		case connCreatedAt:
			c.CreatedAt = decodeTime(f.varint)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decode connection: %w", err)
	}
	if c.ID == 0 {
		return nil, fmt.Errorf("decode connection: %w: missing id", ErrCorrupt)
	}
	return c, nil
}

func EncodeInteraction(i *model.Interaction) []byte {
	var b []byte
	b = appendVarint(b, interID, uint64(i.ID))
	b = appendVarint(b, interConnection, uint64(i.ConnectionID))
	b = appendHandle(b, interType, i.InteractionType)
	b = appendHandle(b, interSentiment, i.SentimentScore)
	b = appendString(b, interContentHash, i.ContentHash)
	b = appendTime(b, interCreatedAt, i.CreatedAt)
	return b
}

func DecodeInteraction(b []byte) (*model.Interaction, error) {
	i := &model.Interaction{}
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case interID:
			i.ID = model.InteractionID(f.varint)
		case interConnection:
			i.ConnectionID = model.ConnectionID(f.varint)
		case interType:
			i.InteractionType, err = decodeHandle(f.bytes)
		case interSentiment:
			i.SentimentScore, err = decodeHandle(f.bytes)
		case interContentHash:
			i.ContentHash = string(f.bytes)
		case interCreatedAt:
			i.CreatedAt = decodeTime(f.varint)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decode interaction: %w", err)
	}
	if i.ID == 0 {
		return nil, fmt.Errorf("decode interaction: %w: missing id", ErrCorrupt)
	}
	return i, nil
}
