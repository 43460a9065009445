package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"Fetcharr/internal/api/middleware"
	"Fetcharr/internal/audit"
	"Fetcharr/internal/core/identity"
	"Fetcharr/internal/federation/oidc"
)

// HandleOIDCCallback completes an OIDC login: validate state, exchange
// the code, verify the ID token against the provider's JWKS, check the
// nonce, resolve the local account, and issue a session. Every failure
// takes the same exit: cookies cleared, flash set, redirect to login.
// GET /auth/oidc/callback?code=...&state=...
func (h *Handler) HandleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.failLogin(w, r, fmt.Errorf("provider returned error %q: %s",
			errParam, r.URL.Query().Get("error_description")))
		return
	}

	st, err := h.states.Consume(w, r)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	p, err := h.resolveOIDCProvider(ctx, st.ProviderID)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	// Proprietary widget flows cannot complete a generic code exchange.
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

	tok, err := oidc.ExchangeCode(ctx, p, ep, r.URL.Query().Get("code"), st.CodeVerifier)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	rawIDToken, ok := oidc.IDTokenFromResponse(tok)
	if !ok {
		h.failLogin(w, r, fmt.Errorf("token response from provider %q has no id_token", p.ID))
		return
	}

	claims, err := h.verifier.Verify(ctx, rawIDToken, ep.JWKS, oidc.VerifyParams{
		Issuer:   p.Issuer,
		Audience: p.ClientID,
	})
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	// The token must echo the nonce minted when this attempt started.
	if nonce, _ := oidc.StringClaim(claims, "nonce"); st.Nonce != "" && nonce != st.Nonce {
		h.failLogin(w, r, fmt.Errorf("nonce mismatch on provider %q", p.ID))
		return
	}

	// Sparse ID tokens are supplemented from userinfo; a failed fetch is
	// tolerated and the ID token stands alone.
	if ep.Userinfo != "" {
		if info, uerr := oidc.FetchUserinfo(ctx, ep.Userinfo, tok.AccessToken); uerr != nil {
			slog.Debug("userinfo fetch failed", "provider", p.ID, "error", uerr)
		} else {
			claims = oidc.MergeClaims(claims, info)
		}
	}

	ident, err := extractIdentity(p, claims)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	user, err := h.resolver.ResolveOIDC(ctx, ident, identity.OIDCResolveOptions{
		AllowAutoCreate: p.AllowAutoCreate,
		MatchByEmail:    p.MatchByEmail,
		MatchByUsername: p.MatchByUsername,
		SyncGroups:      p.SyncGroups,
	})
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	if err := h.issueSession(w, r, user); err != nil {
		h.failLogin(w, r, err)
		return
	}

	h.audit.Record(audit.EventLogin, user.ID, p.ID, middleware.ClientIP(r))
	slog.Info("oidc login completed", "provider", p.ID, "user_id", user.ID)
	h.completeLogin(w, r, st)
}

// extractIdentity maps the merged claim set onto a verified identity
// using the provider's claim selectors. Selector defaults follow the
// standard OIDC profile claims.
func extractIdentity(p *oidc.Provider, claims map[string]any) (identity.VerifiedIdentity, error) {
	sub, ok := oidc.StringClaim(claims, "sub")
	if !ok {
		return identity.VerifiedIdentity{}, fmt.Errorf("id token from provider %q has no subject", p.ID)
	}

	usernameClaim := p.UsernameClaim
	if usernameClaim == "" {
		usernameClaim = "preferred_username"
	}
	emailClaim := p.EmailClaim
	if emailClaim == "" {
		emailClaim = "email"
	}

	username, _ := oidc.StringClaim(claims, usernameClaim)
	email, _ := oidc.StringClaim(claims, emailClaim)

	var groups []string
	if p.GroupsClaim != "" {
		groups = oidc.StringListClaim(claims, p.GroupsClaim)
	}

	return identity.VerifiedIdentity{
		Subject:  sub,
		Email:    email,
		Username: username,
		Groups:   groups,
		Claims:   claims,
	}, nil
}
