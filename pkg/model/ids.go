// Package model defines the entities the social ledger persists and the
// read-only views it hands out.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// UserID identifies a registered user. Zero is never assigned.
type UserID uint64

// ConnectionID identifies a connection. Zero is never assigned.
type ConnectionID uint64

// InteractionID identifies an interaction. Zero is never assigned.
type InteractionID uint64

func (id UserID) String() string        { return strconv.FormatUint(uint64(id), 10) }
func (id ConnectionID) String() string  { return strconv.FormatUint(uint64(id), 10) }
func (id InteractionID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ErrInvalidWallet is returned by ParseWallet.
var ErrInvalidWallet = errors.New("model: invalid wallet address")

// ParseWallet parses a 0x-prefixed hex account address. The zero
// address is rejected because it cannot sign transactions.
func ParseWallet(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidWallet, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidWallet)
	}
	return addr, nil
}

// Pair is an unordered pair of users stored in canonical order, the
// smaller id first. The order carries no meaning beyond lookup.
type Pair struct {
	Low  UserID
	High UserID
}

// NewPair canonicalizes {a, b}.
func NewPair(a, b UserID) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}
