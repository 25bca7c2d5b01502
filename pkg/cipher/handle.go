// Package cipher holds the opaque encrypted values the ledger stores and the
// verifier capability used to check their input proofs. Nothing in this
// package decrypts or computes on a ciphertext.
package cipher

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// PayloadSize is the fixed length of every ciphertext payload.
const PayloadSize = 32 // A

// MaxProofSize bounds the proof attached to a ciphertext.
const MaxProofSize = 4096 // A

// ErrMalformed is returned for handles or proofs that fail the
// structural checks done before any verifier is consulted.
var ErrMalformed = errors.New("cipher: malformed ciphertext") // A

// Kind tags the plaintext type a ciphertext encrypts.
type Kind uint8 // A

const ( // A
	KindInvalid Kind = iota
	KindBool
	KindUint8
	KindUint16
	KindUint32
)

// String returns the textual kind name.
func (k Kind) String() string { // A
	switch k {
	case KindBool:
		return "ebool"
	case KindUint8:
		return "euint8"
	case KindUint16:
		return "euint16"
	case KindUint32:
		return "euint32"
	default:
		return "invalid"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) { // A
	for k := KindBool; k <= KindUint32; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: unknown kind %q", ErrMalformed, s)
}

// Handle is an encrypted value. The payload is opaque; only its kind
// and length are ever inspected.
type Handle struct { // A
	Kind    Kind
	Payload []byte
}

// NewHandle copies payload into a Handle of the given kind.
func NewHandle(kind Kind, payload []byte) Handle { // A
	return Handle{Kind: kind, Payload: bytes.Clone(payload)}
}

// Validate checks the kind tag and the payload length.
func (h Handle) Validate() error { // A
	if h.Kind == KindInvalid || h.Kind > KindUint32 {
		return fmt.Errorf("%w: invalid kind %d", ErrMalformed, h.Kind)
	}
	if len(h.Payload) != PayloadSize {
		return fmt.Errorf(
			"%w: payload is %d bytes, want %d",
			ErrMalformed, len(h.Payload), PayloadSize,
		)
	}
	return nil
}

// IsZero reports whether the handle carries no value at all.
func (h Handle) IsZero() bool { // A
	return h.Kind == KindInvalid && len(h.Payload) == 0
}

// Equal compares kind and payload.
func (h Handle) Equal(o Handle) bool { // A
	return h.Kind == o.Kind && bytes.Equal(h.Payload, o.Payload)
}

// Clone returns a deep copy.
func (h Handle) Clone() Handle { // A
	return NewHandle(h.Kind, h.Payload)
}

// String renders the handle as kind:hex for logs.
func (h Handle) String() string { // A
	return h.Kind.String() + ":" + hex.EncodeToString(h.Payload)
}

// Proof is the validity proof attached to a ciphertext.
type Proof []byte // A

// Validate rejects empty and oversized proofs.
func (p Proof) Validate() error { // A
	if len(p) == 0 {
		return fmt.Errorf("%w: empty proof", ErrMalformed)
	}
	if len(p) > MaxProofSize {
		return fmt.Errorf(
			"%w: proof is %d bytes, max %d",
			ErrMalformed, len(p), MaxProofSize,
		)
	}
	return nil
}
