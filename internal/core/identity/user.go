package identity

import "time"

// User is a local Fetcharr account. A user has at most one OIDC subject
// and zero-or-more OAuth2 provider links (one per provider).
type User struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Username    string
	Email       string // empty when the account has no email on record
	OIDCSubject string // empty when no OIDC provider is linked
	Groups      []string
	Links       []ProviderLink
	ID          int64
	Banned      bool
}

// ProviderLink ties a local user to one external OAuth2 identity.
// (provider, ProviderUserID) is globally unique: an external identity
// maps to at most one local account.
type ProviderLink struct {
	Provider       string
	ProviderUserID string
	ProviderEmail  string
	ProviderLogin  string
	UserID         int64
}

// VerifiedIdentity is what the callback pipeline learned about the caller
// from a cryptographically verified token (plus optional userinfo merge).
// It is derived per request and never persisted as-is.
type VerifiedIdentity struct {
	Subject  string
	Email    string
	Username string
	Groups   []string
	Claims   map[string]any
}

// Default group assigned to auto-created accounts when the provider
// synced no usable groups.
const DefaultGroup = "users"

// Groups that grant elevated privilege locally. They are never granted
// from an external group claim alone.
var privilegedGroups = map[string]struct{}{
	"admin":          {},
	"administrators": {},
	"owner":          {},
}

// FilterSyncedGroups strips privileged group names from a provider-synced
// group list. Returns the remaining groups in their original order.
func FilterSyncedGroups(groups []string) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if _, privileged := privilegedGroups[g]; privileged {
			continue
		}
		out = append(out, g)
	}
	return out
}
