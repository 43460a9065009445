package oidc

import (
	"errors"
	"fmt"
)

// ProviderKind tags the authentication protocol a configured provider
// speaks. Callback handlers match exhaustively on the kind so adding a
// new one is a compile-time decision point.
type ProviderKind string

const (
	// KindOIDC is a standards-compliant OpenID Connect provider
	KindOIDC ProviderKind = "oidc"

	// KindWebSDK marks proprietary widget-based flows (e.g. vendor
	// JavaScript SDKs) that cannot complete a generic code exchange.
	// Callbacks for such providers fail fast instead of attempting one.
	KindWebSDK ProviderKind = "web-sdk"
)

// ErrUnsupportedVariant is returned when a callback arrives for a
// provider kind the generic pipeline cannot serve.
var ErrUnsupportedVariant = errors.New("provider uses an unsupported sign-in variant")

// Provider is the configuration of one OIDC identity provider.
//
// Endpoint fields are optional; anything unset is filled from the
// issuer's discovery document. When no explicit endpoints are set, an
// issuer URL is mandatory.
type Provider struct {
	ID           string
	Name         string
	Kind         ProviderKind
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// Explicit endpoint overrides; discovery fills the gaps.
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserinfoEndpoint      string
	JWKSURI               string
	LogoutEndpoint        string

	// Dotted claim paths, e.g. "preferred_username" or "resource.roles"
	UsernameClaim string
	EmailClaim    string
	GroupsClaim   string

	AllowAutoCreate bool
	MatchByEmail    bool
	MatchByUsername bool
	SyncGroups      bool
	Enabled         bool
}

// Validate checks that the provider is complete enough to run a login.
func (p *Provider) Validate() error {
	if p.ClientID == "" {
		return fmt.Errorf("provider %q: client id is required", p.ID)
	}
	if p.Kind == KindOIDC && p.ClientSecret == "" {
		return fmt.Errorf("provider %q: client secret is required", p.ID)
	}
	needsDiscovery := p.AuthorizationEndpoint == "" || p.TokenEndpoint == "" || p.JWKSURI == ""
	if needsDiscovery && p.Issuer == "" {
		return fmt.Errorf("provider %q: issuer is required when endpoints are not set explicitly", p.ID)
	}
	return nil
}

// Endpoints are the resolved URLs used for one login attempt: explicit
// configuration merged over the discovery document.
type Endpoints struct {
	Authorization string
	Token         string
	Userinfo      string
	JWKS          string
}

// ResolveEndpoints merges explicit provider endpoints over a discovery
// document. doc may be nil when every endpoint is configured explicitly.
func (p *Provider) ResolveEndpoints(doc *DiscoveryDocument) (Endpoints, error) {
	ep := Endpoints{
		Authorization: p.AuthorizationEndpoint,
		Token:         p.TokenEndpoint,
		Userinfo:      p.UserinfoEndpoint,
		JWKS:          p.JWKSURI,
	}
	if doc != nil {
		if ep.Authorization == "" {
			ep.Authorization = doc.AuthorizationEndpoint
		}
		if ep.Token == "" {
			ep.Token = doc.TokenEndpoint
		}
		if ep.Userinfo == "" {
			ep.Userinfo = doc.UserinfoEndpoint
		}
		if ep.JWKS == "" {
			ep.JWKS = doc.JWKSURI
		}
	}
	if ep.Authorization == "" || ep.Token == "" || ep.JWKS == "" {
		return Endpoints{}, fmt.Errorf("provider %q: incomplete endpoints after discovery", p.ID)
	}
	return ep, nil
}

// NeedsDiscovery reports whether any required endpoint must come from the
// issuer's discovery document.
func (p *Provider) NeedsDiscovery() bool {
	return p.AuthorizationEndpoint == "" || p.TokenEndpoint == "" || p.JWKSURI == ""
}
