package cipher

import (
	"bytes"
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnavailable is returned by verifiers that could not reach a
// decision. Callers may retry.
var ErrUnavailable = errors.New("cipher: verifier unavailable") // A

// Verifier checks that a proof attests to the well-formedness of a
// ciphertext. A false result is a rejection; a non-nil error means no
// decision was reached. Implementations must be deterministic for the
// same inputs and free of side effects.
type Verifier interface { // A
	Verify(ctx context.Context, h Handle, proof Proof) (bool, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, h Handle, proof Proof) (bool, error) // A

// Verify calls f.
func (f VerifierFunc) Verify( // A
	ctx context.Context,
	h Handle,
	proof Proof,
) (bool, error) {
	return f(ctx, h, proof)
}

// KeccakVerifier accepts a proof iff it equals
// keccak256(domain || kind || payload). Used on development networks and
// in tests where no FHE coprocessor is available.
type KeccakVerifier struct { // A
	Domain []byte
}

// NewKeccakVerifier returns a verifier bound to the given domain string.
func NewKeccakVerifier(domain string) *KeccakVerifier { // A
	return &KeccakVerifier{Domain: []byte(domain)}
}

// Seal produces the proof KeccakVerifier accepts for h.
func (kv *KeccakVerifier) Seal(h Handle) Proof { // A
	return crypto.Keccak256(kv.Domain, []byte{byte(h.Kind)}, h.Payload)
}

// Verify implements Verifier.
func (kv *KeccakVerifier) Verify( // A
	ctx context.Context,
	h Handle,
	proof Proof,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	if h.Validate() != nil || proof.Validate() != nil {
		return false, nil
	}
	return bytes.Equal(kv.Seal(h), proof), nil
}
