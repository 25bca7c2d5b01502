package ledger

import (
	"errors"
	"fmt"
)

// Errors returned by ledger operations. Match them with errors.Is; the
// returned errors wrap them with call-site detail.
var ( // A
	ErrNotFound            = errors.New("ledger: not found")
	ErrDuplicateWallet     = errors.New("ledger: wallet already registered")
	ErrDuplicateConnection = errors.New("ledger: connection already exists")
	ErrSelfConnection      = errors.New("ledger: cannot connect a user to itself")
	ErrUnknownUser         = errors.New("ledger: unknown user")
	ErrInactiveUser        = errors.New("ledger: user is inactive")
	ErrInactiveConnection  = errors.New("ledger: connection is inactive")
	ErrNotParticipant      = errors.New("ledger: user is not part of the connection")
	ErrInvalidProof        = errors.New("ledger: invalid proof")
	ErrVerifierUnavailable = errors.New("ledger: proof verifier unavailable")
	ErrValidation          = errors.New("ledger: validation failed")
	ErrNoAggregator        = errors.New("ledger: no reputation aggregator configured")
)

// ProofError reports which ciphertext argument failed verification.
// It matches ErrInvalidProof or ErrVerifierUnavailable.
type ProofError struct { // A
	Field string
	Err   error
	Cause error
}

func (e *ProofError) Error() string { // A
	if e.Cause != nil {
		return fmt.Sprintf("%v for %s: %v", e.Err, e.Field, e.Cause)
	}
	return fmt.Sprintf("%v for %s", e.Err, e.Field)
}

// Unwrap exposes both the sentinel and the verifier's own error.
func (e *ProofError) Unwrap() []error { // A
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// IsRetryable reports whether err is transient. Only an unavailable
// verifier qualifies; every other failure is final for its arguments.
func IsRetryable(err error) bool { // A
	return errors.Is(err, ErrVerifierUnavailable)
}

// ProofField returns the argument name carried by a *ProofError in err's
// chain, or "" if there is none.
func ProofField(err error) string { // A
	var pe *ProofError
	if errors.As(err, &pe) {
		return pe.Field
	}
	return ""
}

func validationErr(field string, err error) error { // A
	return fmt.Errorf("%w: %s: %w", ErrValidation, field, err)
}
