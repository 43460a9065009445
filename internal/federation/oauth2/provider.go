// Package oauth2 implements the plain-OAuth2 provider family (Google,
// GitHub): static per-deployment client credentials, PKCE-bound code
// exchange, and a provider-specific identity fetch. There is no discovery
// and no ID token; identity comes from an API call authenticated with the
// obtained access token.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	xoauth2 "golang.org/x/oauth2"
)

// Provider names understood by FetchIdentity
const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// Provider is one configured OAuth2 identity provider.
type Provider struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	IdentityURL  string
	RedirectURI  string
	Scopes       []string
	Enabled      bool
}

// RemoteIdentity is the normalized result of a provider identity fetch.
type RemoteIdentity struct {
	ID    string
	Email string
	Login string
}

// GitHub returns a GitHub provider with the deployment's client
// credentials filled in.
func GitHub(clientID, clientSecret, redirectURI string) *Provider {
	return &Provider{
		Name:         ProviderGitHub,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      "https://github.com/login/oauth/authorize",
		TokenURL:     "https://github.com/login/oauth/access_token",
		IdentityURL:  "https://api.github.com/user",
		RedirectURI:  redirectURI,
		Scopes:       []string{"read:user", "user:email"},
		Enabled:      clientID != "" && clientSecret != "",
	}
}

// Google returns a Google provider with the deployment's client
// credentials filled in.
func Google(clientID, clientSecret, redirectURI string) *Provider {
	return &Provider{
		Name:         ProviderGoogle,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		IdentityURL:  "https://openidconnect.googleapis.com/v1/userinfo",
		RedirectURI:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Enabled:      clientID != "" && clientSecret != "",
	}
}

func (p *Provider) config() *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Scopes:       p.Scopes,
		Endpoint: xoauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// AuthCodeURL builds the authorization redirect with a PKCE challenge.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.config().AuthCodeURL(state, xoauth2.S256ChallengeOption(verifier))
}

// Exchange redeems the authorization code. The PKCE verifier must be the
// one cached when the flow started. A slow provider times out and fails
// the attempt; it never hangs the handler.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*xoauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	tok, err := p.config().Exchange(ctx, code, xoauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange with %s failed: %w", p.Name, err)
	}
	return tok, nil
}

// FetchIdentity retrieves the caller's identity from the provider's API
// using the obtained access token.
func (p *Provider) FetchIdentity(ctx context.Context, tok *xoauth2.Token) (*RemoteIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.IdentityURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch identity from %s: %w", p.Name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s identity endpoint returned status %d", p.Name, resp.StatusCode)
	}

	const maxResponseSize = 1 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}

	switch p.Name {
	case ProviderGitHub:
		return parseGitHubIdentity(body)
	case ProviderGoogle:
		return parseGoogleIdentity(body)
	default:
		return nil, fmt.Errorf("no identity mapping for provider %q", p.Name)
	}
}

func parseGitHubIdentity(body []byte) (*RemoteIdentity, error) {
	var profile struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode github profile: %w", err)
	}
	if profile.ID == 0 {
		return nil, fmt.Errorf("github profile has no id")
	}
	return &RemoteIdentity{
		ID:    fmt.Sprintf("%d", profile.ID),
		Email: profile.Email,
		Login: profile.Login,
	}, nil
}

func parseGoogleIdentity(body []byte) (*RemoteIdentity, error) {
	var profile struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode google profile: %w", err)
	}
	if profile.Sub == "" {
		return nil, fmt.Errorf("google profile has no subject")
	}
	return &RemoteIdentity{
		ID:    profile.Sub,
		Email: profile.Email,
		Login: profile.Email,
	}, nil
}
