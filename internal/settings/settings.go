// Package settings exposes the small set of admin-tunable values the auth
// pipeline consumes: the session TTL and the default active OIDC
// provider. Values live in a key-value table with in-code defaults.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// Setting keys
const (
	KeySessionTTL          = "auth.session_ttl_seconds"
	KeyDefaultOIDCProvider = "auth.default_oidc_provider"
)

// DefaultSessionTTL applies when no override is stored
const DefaultSessionTTL = 30 * 24 * time.Hour

// ErrNotFound is returned by repositories when a key has no stored value
var ErrNotFound = errors.New("setting not found")

// Repository persists settings as strings keyed by name.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Service reads settings with defaults. Lookup failures fall back to the
// default and are logged; settings never break a login.
type Service struct {
	repo Repository
}

// NewService creates a settings service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL(ctx context.Context) time.Duration {
	raw, err := s.repo.Get(ctx, KeySessionTTL)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("failed to read session ttl setting", "error", err)
		}
		return DefaultSessionTTL
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		slog.Warn("invalid session ttl setting", "value", raw)
		return DefaultSessionTTL
	}
	return time.Duration(secs) * time.Second
}

// DefaultOIDCProvider returns the id of the currently active default OIDC
// provider, or empty when none is configured.
func (s *Service) DefaultOIDCProvider(ctx context.Context) string {
	raw, err := s.repo.Get(ctx, KeyDefaultOIDCProvider)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("failed to read default provider setting", "error", err)
		}
		return ""
	}
	return raw
}

// SetSessionTTL stores a new session lifetime.
func (s *Service) SetSessionTTL(ctx context.Context, ttl time.Duration) error {
	return s.repo.Set(ctx, KeySessionTTL, strconv.FormatInt(int64(ttl.Seconds()), 10))
}

// SetDefaultOIDCProvider stores the default provider id.
func (s *Service) SetDefaultOIDCProvider(ctx context.Context, providerID string) error {
	return s.repo.Set(ctx, KeyDefaultOIDCProvider, providerID)
}
