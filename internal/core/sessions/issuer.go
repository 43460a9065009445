package sessions

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"Fetcharr/internal/core/identity"
)

const tokenIssuer = "fetcharr"

// MinSigningSecretLength is the minimum session-signing secret size in bytes
const MinSigningSecretLength = 32

// Claims is the payload of a Fetcharr session token.
type Claims struct {
	jwt.RegisteredClaims
	Username string   `json:"username"`
	Groups   []string `json:"groups,omitempty"`
}

// DeviceMetadata describes the client a session was issued to.
type DeviceMetadata struct {
	UserAgent string
	IP        string
}

// Issuer mints signed session tokens and persists the matching session
// rows. Token and row share a jti.
type Issuer struct {
	store  Store
	secret []byte
}

// NewIssuer creates a session issuer. secret signs tokens with HS256 and
// must be at least MinSigningSecretLength bytes.
func NewIssuer(secret []byte, store Store) (*Issuer, error) {
	if len(secret) < MinSigningSecretLength {
		return nil, fmt.Errorf("session signing secret must be at least %d bytes", MinSigningSecretLength)
	}
	return &Issuer{secret: secret, store: store}, nil
}

// Issue mints a token for the user and persists the session row.
func (i *Issuer) Issue(ctx context.Context, user *identity.User, ttl time.Duration, meta DeviceMetadata) (string, *Session, error) {
	now := time.Now().UTC()
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: user.Username,
		Groups:   user.Groups,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	sess := &Session{
		JTI:        jti,
		UserID:     user.ID,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		LastSeenAt: now,
		UserAgent:  meta.UserAgent,
		IP:         meta.IP,
		Label:      SummarizeDevice(meta.UserAgent),
	}
	if err := i.store.Create(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("persist session: %w", err)
	}

	return token, sess, nil
}

// Validate checks a bearer token's signature and claims, then requires
// the matching row to be live. Server-side revocation is effective even
// against a still-valid token.
func (i *Issuer) Validate(ctx context.Context, token string) (*Session, *Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil || !parsed.Valid {
		return nil, nil, ErrInvalidToken
	}

	sess, err := i.store.GetByJTI(ctx, claims.ID)
	if err != nil {
		return nil, nil, ErrSessionNotFound
	}
	if sess.Revoked() {
		return nil, nil, ErrSessionRevoked
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, nil, ErrSessionExpired
	}

	// Best effort; a failed touch never fails the request.
	_ = i.store.TouchLastSeen(ctx, sess.JTI, time.Now().UTC())

	return sess, claims, nil
}

// UserID extracts the owning user id from validated claims.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}
