package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neonsphere/weave/pkg/cipher"
)

// User is a registered identity. Users are soft-deactivated, never
// removed, so connections and interactions keep resolving.
type User struct {
	ID              UserID
	Wallet          common.Address
	Username        string
	Bio             string
	Reputation      cipher.Handle
	ConnectionCount uint32
	IsActive        bool
	IsVerified      bool
	CreatedAt       time.Time
	LastSeen        time.Time
}

// UserProfileView is the read projection returned by profile lookups.
// Reputation is the stored handle as is; decryption is the client's
// business.
type UserProfileView struct {
	ID              UserID
	Username        string
	Bio             string
	Reputation      cipher.Handle
	ConnectionCount uint32
	IsActive        bool
	IsVerified      bool
	Wallet          common.Address
	CreatedAt       time.Time
	LastSeen        time.Time
}

// View returns a detached copy of u.
func (u *User) View() UserProfileView {
	return UserProfileView{
		ID:              u.ID,
		Username:        u.Username,
		Bio:             u.Bio,
		Reputation:      u.Reputation.Clone(),
		ConnectionCount: u.ConnectionCount,
		IsActive:        u.IsActive,
		IsVerified:      u.IsVerified,
		Wallet:          u.Wallet,
		CreatedAt:       u.CreatedAt,
		LastSeen:        u.LastSeen,
	}
}

// Connection is a symmetric relationship between two distinct users.
type Connection struct {
	ID         ConnectionID
	UserA      UserID
	UserB      UserID
	TrustLevel cipher.Handle
	IsActive   bool
	CreatedAt  time.Time
}

// Pair returns the canonical pair of the connection's endpoints.
func (c *Connection) Pair() Pair {
	return NewPair(c.UserA, c.UserB)
}

// Involves reports whether u is one of the endpoints.
func (c *Connection) Involves(u UserID) bool {
	return c.UserA == u || c.UserB == u
}

// Other returns the endpoint that is not u. The result is undefined
// when u is not an endpoint.
func (c *Connection) Other(u UserID) UserID {
	if c.UserA == u {
		return c.UserB
	}
	return c.UserA
}

// ConnectionView is the read projection of a Connection.
type ConnectionView struct {
	ID         ConnectionID
	UserA      UserID
	UserB      UserID
	TrustLevel cipher.Handle
	IsActive   bool
	CreatedAt  time.Time
}

// View returns a detached copy of c.
func (c *Connection) View() ConnectionView {
	return ConnectionView{
		ID:         c.ID,
		UserA:      c.UserA,
		UserB:      c.UserB,
		TrustLevel: c.TrustLevel.Clone(),
		IsActive:   c.IsActive,
		CreatedAt:  c.CreatedAt,
	}
}

// Interaction is an immutable event recorded on a connection.
type Interaction struct {
	ID              InteractionID
	ConnectionID    ConnectionID
	InteractionType cipher.Handle
	SentimentScore  cipher.Handle
	ContentHash     string
	CreatedAt       time.Time
}

// InteractionView is the read projection of an Interaction. Valid is
// false once the owning connection has been deactivated; the record
// itself is unchanged.
type InteractionView struct {
	ID              InteractionID
	ConnectionID    ConnectionID
	InteractionType cipher.Handle
	SentimentScore  cipher.Handle
	ContentHash     string
	CreatedAt       time.Time
	Valid           bool
}

// View returns a detached copy of i flagged with valid.
func (i *Interaction) View(valid bool) InteractionView {
	return InteractionView{
		ID:              i.ID,
		ConnectionID:    i.ConnectionID,
		InteractionType: i.InteractionType.Clone(),
		SentimentScore:  i.SentimentScore.Clone(),
		ContentHash:     i.ContentHash,
		CreatedAt:       i.CreatedAt,
		Valid:           valid,
	}
}
