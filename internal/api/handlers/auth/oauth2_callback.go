package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"Fetcharr/internal/api/middleware"
	"Fetcharr/internal/audit"
	"Fetcharr/internal/core/identity"
	"Fetcharr/internal/federation/state"
)

// HandleOAuth2Callback completes an OAuth2 flow. Unlike OIDC there is no
// ID token; identity comes from the provider's API authenticated with
// the exchanged access token. The stored mode decides whether the
// identity signs a user in or gets linked to the signed-in caller.
// GET /auth/oauth2/callback?code=...&state=...
func (h *Handler) HandleOAuth2Callback(w http.ResponseWriter, r *http.Request) {
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

	linkMode := st.Mode == state.ModeLink

	p, err := h.registry.OAuth2(st.ProviderID)
	if err != nil {
		h.failOAuth2(w, r, st, err)
		return
	}

	tok, err := p.Exchange(ctx, r.URL.Query().Get("code"), st.CodeVerifier)
	if err != nil {
		h.failOAuth2(w, r, st, err)
		return
	}

	remote, err := p.FetchIdentity(ctx, tok)
	if err != nil {
		h.failOAuth2(w, r, st, err)
		return
	}
	ident := identity.VerifiedIdentity{
		Subject:  remote.ID,
		Email:    remote.Email,
		Username: remote.Login,
	}

	ip := middleware.ClientIP(r)

	if linkMode {
		callerID := middleware.AuthenticatedUserID(ctx)
		user, err := h.resolver.LinkOAuth2(ctx, p.Name, ident, callerID, st.LinkUserID)
		if err != nil {
			h.failOAuth2(w, r, st, err)
			return
		}

		h.audit.Record(audit.EventLinkCreated, user.ID, p.Name, ip)
		slog.Info("oauth2 account linked", "provider", p.Name, "user_id", user.ID)
		h.flash.SetSuccess(w, r, fmt.Sprintf("Linked your %s account.", p.Name))
		http.Redirect(w, r, SafeRedirectTarget(st.LinkReturnPath), http.StatusSeeOther)
		return
	}

	user, err := h.resolver.ResolveOAuth2Login(ctx, p.Name, ident)
	if err != nil {
		h.failOAuth2(w, r, st, err)
		return
	}

	if err := h.issueSession(w, r, user); err != nil {
		h.failOAuth2(w, r, st, err)
		return
	}

	h.audit.Record(audit.EventLogin, user.ID, p.Name, ip)
	slog.Info("oauth2 login completed", "provider", p.Name, "user_id", user.ID)
	h.completeLogin(w, r, st)
}

// failOAuth2 routes the failure to the right page for the stored mode.
func (h *Handler) failOAuth2(w http.ResponseWriter, r *http.Request, st *state.State, err error) {
	if st.Mode == state.ModeLink {
		h.failLink(w, r, st.LinkReturnPath, err)
		return
	}
	h.failLogin(w, r, err)
}
