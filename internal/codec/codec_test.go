package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

func handle(b byte) cipher.Handle {
	return cipher.NewHandle(cipher.KindUint8, bytes.Repeat([]byte{b}, cipher.PayloadSize))
}

func TestUserRecordPreservesEveryField(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	in := &model.User{
		ID:              42,
		Wallet:          common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Username:        "alice",
		Bio:             "bio1",
		Reputation:      handle(9),
		ConnectionCount: 3,
		IsActive:        true,
		IsVerified:      true,
		CreatedAt:       created,
		LastSeen:        created.Add(time.Hour),
	}

	out, err := DecodeUser(EncodeUser(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInteractionRecordKeepsHandlesDistinct(t *testing.T) {
	in := &model.Interaction{
		ID:              7,
		ConnectionID:    1,
		InteractionType: handle(1),
		SentimentScore:  handle(2),
		ContentHash:     "hash123",
		CreatedAt:       time.Unix(0, 12345).UTC(),
	}
	out, err := DecodeInteraction(EncodeInteraction(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.False(t, out.InteractionType.Equal(out.SentimentScore))
}

func TestConnectionRecordSkipsUnknownFields(t *testing.T) {
	in := &model.Connection{
		ID:         5,
		UserA:      1,
		UserB:      2,
		TrustLevel: handle(4),
		CreatedAt:  time.Unix(100, 0).UTC(),
	}
	b := EncodeConnection(in)
	b = protowire.AppendTag(b, 99, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 0xdeadbeef)
	b = appendString(b, 100, "future field")

	out, err := DecodeConnection(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.False(t, out.IsActive)
}

func TestDecodeRejectsCorruptRecords(t *testing.T) {
	_, err := DecodeUser([]byte{0xff})
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeConnection(nil)
	require.ErrorIs(t, err, ErrCorrupt, "record without id")

	var b []byte
	b = appendVarint(b, userID, 1)
	b = appendBytes(b, userWallet, []byte{1, 2, 3})
	_, err = DecodeUser(b)
	require.ErrorIs(t, err, ErrCorrupt)

	truncated := EncodeInteraction(&model.Interaction{ID: 1, ContentHash: "abc"})
	_, err = DecodeInteraction(truncated[:len(truncated)-1])
	require.ErrorIs(t, err, ErrCorrupt)
}
