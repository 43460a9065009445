// Package auth implements the federated sign-in surface: login and link
// initiation, the OIDC and OAuth2 callbacks, logout, and session
// management. Callback responses are redirects, never JSON; failure
// detail travels to the UI in a one-shot flash cookie.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"Fetcharr/internal/api/middleware"
	"Fetcharr/internal/audit"
	"Fetcharr/internal/core/identity"
	"Fetcharr/internal/core/sessions"
	"Fetcharr/internal/federation/oidc"
	"Fetcharr/internal/federation/state"
	"Fetcharr/internal/settings"
)

const (
	loginPath        = "/login"
	linkSettingsPath = "/settings/linked-accounts"
)

// Handler carries every dependency the auth endpoints share.
type Handler struct {
	registry  *Registry
	states    *state.Store
	discovery *oidc.DiscoveryCache
	verifier  *oidc.Verifier
	resolver  *identity.Resolver
	issuer    *sessions.Issuer

	sessionStore sessions.Store
	users        identity.UserRepository
	audit        *audit.Recorder
	settings     *settings.Service
	flash        *flashStore
}

// Config collects the handler's dependencies.
type Config struct {
	Registry     *Registry
	States       *state.Store
	Discovery    *oidc.DiscoveryCache
	Verifier     *oidc.Verifier
	Resolver     *identity.Resolver
	Issuer       *sessions.Issuer
	SessionStore sessions.Store
	Users        identity.UserRepository
	Audit        *audit.Recorder
	Settings     *settings.Service

	// FlashSecret signs the flash cookies.
	FlashSecret []byte
}

// NewHandler creates the auth handler.
func NewHandler(cfg Config) (*Handler, error) {
	flash, err := newFlashStore(cfg.FlashSecret)
	if err != nil {
		return nil, err
	}
	return &Handler{
		registry:     cfg.Registry,
		states:       cfg.States,
		discovery:    cfg.Discovery,
		verifier:     cfg.Verifier,
		resolver:     cfg.Resolver,
		issuer:       cfg.Issuer,
		sessionStore: cfg.SessionStore,
		users:        cfg.Users,
		audit:        cfg.Audit,
		settings:     cfg.Settings,
		flash:        flash,
	}, nil
}

// errRateLimited marks a throttled sign-in attempt so it takes the same
// uniform failure exit as every other login failure.
var errRateLimited = errors.New("too many attempts")

// HandleRateLimited is the limiter rejection installed on the login and
// callback routes: clear the flow cookies, flash a message, back to the
// login page.
func (h *Handler) HandleRateLimited(w http.ResponseWriter, r *http.Request) {
	h.failLogin(w, r, errRateLimited)
}

// failLogin is the single failure action for login-mode flows: clear the
// flow cookies, leave a human-readable flash, send the browser back to
// the login page. Internal detail stays in the server log.
func (h *Handler) failLogin(w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn("login attempt failed", "path", r.URL.Path, "error", err)
	h.states.Clear(w)
	h.flash.SetError(w, r, failureMessage(err))
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// failLink mirrors failLogin for link-mode flows; the browser goes back
// to the linked-accounts settings page instead.
func (h *Handler) failLink(w http.ResponseWriter, r *http.Request, returnPath string, err error) {
	slog.Warn("account link attempt failed", "path", r.URL.Path, "error", err)
	h.states.Clear(w)
	h.flash.SetError(w, r, failureMessage(err))
	if returnPath == "" {
		returnPath = linkSettingsPath
	}
	http.Redirect(w, r, SafeRedirectTarget(returnPath), http.StatusSeeOther)
}

// failureMessage maps internal failures to the short, non-sensitive
// message shown to the user.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, errRateLimited):
		return "Too many attempts. Please wait a minute and try again."
	case errors.Is(err, state.ErrStateMismatch):
		return "Sign-in attempt expired or was already used. Please try again."
	case errors.Is(err, oidc.ErrUnsupportedVariant):
		return "This sign-in method is not wired yet."
	case errors.Is(err, identity.ErrNoAccount):
		return "No account matches this identity. Ask an administrator for access."
	case errors.Is(err, identity.ErrMissingUsername):
		return "The identity provider did not supply a usable username."
	case errors.Is(err, identity.ErrAccountConflict):
		return "This identity is already bound to a different account."
	case errors.Is(err, identity.ErrAlreadyLinked):
		return "That account is already linked to another user."
	case errors.Is(err, identity.ErrBanned):
		return "This account has been suspended."
	case errors.Is(err, identity.ErrNotLinked):
		return "No account is linked to that provider. Sign in first, then link it."
	case errors.Is(err, identity.ErrInvalidLinkSession):
		return "Link session is invalid. Sign in again and retry."
	case errors.Is(err, ErrProviderNotFound), errors.Is(err, ErrProviderDisabled):
		return "Sign-in is not configured for this provider."
	default:
		return "Sign-in failed. Please try again."
	}
}

// resolveOIDCProvider picks the provider for an attempt: the explicit id
// wins, otherwise the currently active default.
func (h *Handler) resolveOIDCProvider(ctx context.Context, providerID string) (*oidc.Provider, error) {
	if providerID == "" {
		providerID = h.settings.DefaultOIDCProvider(ctx)
	}
	if providerID == "" {
		return nil, fmt.Errorf("%w: no provider requested and no default configured", ErrProviderNotFound)
	}
	return h.registry.OIDC(providerID)
}

// issueSession mints the bearer token, persists the row, and sets the
// session cookie.
func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, user *identity.User) error {
	ttl := h.settings.SessionTTL(r.Context())
	token, _, err := h.issuer.Issue(r.Context(), user, ttl, sessions.DeviceMetadata{
		UserAgent: r.UserAgent(),
		IP:        middleware.ClientIP(r),
	})
	if err != nil {
		return fmt.Errorf("issue session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// completeLogin finishes a successful attempt: popup mode lands on the
// internal completion page carrying the destination, normal mode goes
// straight there.
func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request, st *state.State) {
	target := SafeRedirectTarget(st.RedirectTarget)
	if st.Popup {
		http.Redirect(w, r, CompletionRedirect(target), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// randomToken returns a URL-safe random value for state and nonce.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return r.Header.Get("X-Forwarded-Proto") == "https"
}
