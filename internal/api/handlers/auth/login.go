package auth

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	xoauth2 "golang.org/x/oauth2"

	"Fetcharr/internal/api/middleware"
	"Fetcharr/internal/federation/oidc"
	"Fetcharr/internal/federation/state"
)

// HandleOIDCLogin starts an OIDC login: pick the provider, resolve its
// endpoints, stash state/nonce/PKCE in signed cookies, and send the
// browser to the provider's authorization endpoint.
// GET /auth/oidc/login?provider=...&redirect=...&popup=true
func (h *Handler) HandleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.resolveOIDCProvider(ctx, r.URL.Query().Get("provider"))
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	if p.Kind != oidc.KindOIDC {
		h.failLogin(w, r, fmt.Errorf("%w: provider %q kind %q", oidc.ErrUnsupportedVariant, p.ID, p.Kind))
		return
	}

	var doc *oidc.DiscoveryDocument
	if p.NeedsDiscovery() {
		doc, err = h.discovery.Get(ctx, p.Issuer)
		if err != nil {
			h.failLogin(w, r, err)
			return
		}
	}
	ep, err := p.ResolveEndpoints(doc)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	stateToken, err := randomToken()
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	nonce, err := randomToken()
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	verifier := xoauth2.GenerateVerifier()

	st := state.State{
		State:          stateToken,
		Nonce:          nonce,
		CodeVerifier:   verifier,
		ProviderID:     p.ID,
		RedirectTarget: SafeRedirectTarget(r.URL.Query().Get("redirect")),
		Popup:          r.URL.Query().Get("popup") == "true",
	}
	if err := h.states.Issue(w, r, st); err != nil {
		h.failLogin(w, r, err)
		return
	}

	http.Redirect(w, r, oidc.AuthCodeURL(p, ep, stateToken, nonce, verifier), http.StatusSeeOther)
}

// HandleOAuth2Login starts an OAuth2 sign-in with a provider the user has
// previously linked.
// GET /auth/oauth2/{provider}/login?redirect=...&popup=true
func (h *Handler) HandleOAuth2Login(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.OAuth2(chi.URLParam(r, "provider"))
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	stateToken, err := randomToken()
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	verifier := xoauth2.GenerateVerifier()

	st := state.State{
		State:          stateToken,
		CodeVerifier:   verifier,
		ProviderID:     p.Name,
		RedirectTarget: SafeRedirectTarget(r.URL.Query().Get("redirect")),
		Mode:           state.ModeLogin,
		Popup:          r.URL.Query().Get("popup") == "true",
	}
	if err := h.states.Issue(w, r, st); err != nil {
		h.failLogin(w, r, err)
		return
	}

	http.Redirect(w, r, p.AuthCodeURL(stateToken, verifier), http.StatusSeeOther)
}

// HandleOAuth2Link starts linking an OAuth2 identity to the signed-in
// user. Requires an authenticated session; the user id is pinned into
// the state cookie and re-checked on callback.
// GET /auth/oauth2/{provider}/link?return=...
func (h *Handler) HandleOAuth2Link(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.AuthenticatedUserID(r.Context())
	returnPath := r.URL.Query().Get("return")
	if returnPath == "" {
		returnPath = linkSettingsPath
	}
	returnPath = SafeRedirectTarget(returnPath)

	p, err := h.registry.OAuth2(chi.URLParam(r, "provider"))
	if err != nil {
		h.failLink(w, r, returnPath, err)
		return
	}

	stateToken, err := randomToken()
	if err != nil {
		h.failLink(w, r, returnPath, err)
		return
	}
	verifier := xoauth2.GenerateVerifier()

	st := state.State{
		State:          stateToken,
		CodeVerifier:   verifier,
		ProviderID:     p.Name,
		Mode:           state.ModeLink,
		LinkUserID:     callerID,
		LinkReturnPath: returnPath,
	}
	if err := h.states.Issue(w, r, st); err != nil {
		h.failLink(w, r, returnPath, err)
		return
	}

	http.Redirect(w, r, p.AuthCodeURL(stateToken, verifier), http.StatusSeeOther)
}
