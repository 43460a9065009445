package auth

import (
	"errors"
	"fmt"
	"sort"

	oauth2p "Fetcharr/internal/federation/oauth2"
	"Fetcharr/internal/federation/oidc"
)

// Registry lookup failures
var (
	ErrProviderNotFound = errors.New("provider not configured")
	ErrProviderDisabled = errors.New("provider is disabled")
)

// Registry holds the deployment's configured identity providers. It is
// populated once at startup and read-only afterwards.
type Registry struct {
	oidcProviders   map[string]*oidc.Provider
	oauth2Providers map[string]*oauth2p.Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		oidcProviders:   make(map[string]*oidc.Provider),
		oauth2Providers: make(map[string]*oauth2p.Provider),
	}
}

// RegisterOIDC validates and adds an OIDC provider.
func (reg *Registry) RegisterOIDC(p *oidc.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("oidc provider has no id")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	reg.oidcProviders[p.ID] = p
	return nil
}

// RegisterOAuth2 adds an OAuth2 provider. Providers built without client
// credentials register fine but stay disabled.
func (reg *Registry) RegisterOAuth2(p *oauth2p.Provider) error {
	if p.Name == "" {
		return fmt.Errorf("oauth2 provider has no name")
	}
	reg.oauth2Providers[p.Name] = p
	return nil
}

// OIDC returns the enabled OIDC provider with the given id.
func (reg *Registry) OIDC(id string) (*oidc.Provider, error) {
	p, ok := reg.oidcProviders[id]
	if !ok {
		return nil, fmt.Errorf("%w: oidc provider %q", ErrProviderNotFound, id)
	}
	if !p.Enabled {
		return nil, fmt.Errorf("%w: oidc provider %q", ErrProviderDisabled, id)
	}
	return p, nil
}

// OAuth2 returns the enabled OAuth2 provider with the given name.
func (reg *Registry) OAuth2(name string) (*oauth2p.Provider, error) {
	p, ok := reg.oauth2Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: oauth2 provider %q", ErrProviderNotFound, name)
	}
	if !p.Enabled {
		return nil, fmt.Errorf("%w: oauth2 provider %q", ErrProviderDisabled, name)
	}
	return p, nil
}

// OIDCProviderIDs lists the registered OIDC provider ids, sorted.
func (reg *Registry) OIDCProviderIDs() []string {
	ids := make([]string, 0, len(reg.oidcProviders))
	for id := range reg.oidcProviders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OAuth2ProviderNames lists the enabled OAuth2 provider names, sorted.
func (reg *Registry) OAuth2ProviderNames() []string {
	names := make([]string, 0, len(reg.oauth2Providers))
	for name, p := range reg.oauth2Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
