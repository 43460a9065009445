package sessions

import (
	"context"
	"errors"
	"time"
)

// Session is the persisted half of an issued credential. The signed token
// is the bearer artifact; this row is the revocation and audit source of
// truth. A session is valid only when the token signature verifies AND
// the row is unrevoked and unexpired.
type Session struct {
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
	RevokedAt  *time.Time
	JTI        string
	UserAgent  string
	IP         string
	Label      string
	UserID     int64
}

// Revoked reports whether the session has been revoked server-side
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// Sentinel errors for session validation
var (
	// ErrSessionNotFound is returned when no row exists for a jti
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked is returned when the row was revoked, even if the
	// presented token is still cryptographically valid
	ErrSessionRevoked = errors.New("session revoked")

	// ErrSessionExpired is returned when the row has passed its expiry
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidToken is returned when the bearer token fails signature or
	// claim validation
	ErrInvalidToken = errors.New("invalid session token")
)

// Store defines the interface for session persistence. Revoked sessions
// are retained for audit until explicitly deleted.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	GetByJTI(ctx context.Context, jti string) (*Session, error)
	ListByUser(ctx context.Context, userID int64) ([]*Session, error)
	Revoke(ctx context.Context, jti string, at time.Time) error
	TouchLastSeen(ctx context.Context, jti string, at time.Time) error

	// DeleteExpired removes sessions whose expiry is older than the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) error
}
