package web

import (
	"log/slog"
	"net/http"

	"Fetcharr/internal/api/handlers/auth"
)

// Handlers provides HTTP handlers for the Fetcharr web pages.
type Handlers struct {
	templates *Templates
	registry  *auth.Registry
}

// NewHandlers creates a new Handlers instance with the provided dependencies.
func NewHandlers(templates *Templates, registry *auth.Registry) *Handlers {
	return &Handlers{
		templates: templates,
		registry:  registry,
	}
}

// providerView is one sign-in button on the login page.
type providerView struct {
	ID   string
	Name string
}

// LoginPageData holds data for the login page template.
type LoginPageData struct {
	OIDCProviders   []providerView
	OAuth2Providers []string
	Redirect        string
}

// LoginHandler renders the sign-in page with one button per configured
// provider. Flash messages from a failed attempt are loaded client-side.
// GET /login
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	data := LoginPageData{
		OAuth2Providers: h.registry.OAuth2ProviderNames(),
		Redirect:        auth.SafeRedirectTarget(r.URL.Query().Get("redirect")),
	}
	for _, id := range h.registry.OIDCProviderIDs() {
		p, err := h.registry.OIDC(id)
		if err != nil {
			continue // disabled providers get no button
		}
		name := p.Name
		if name == "" {
			name = p.ID
		}
		data.OIDCProviders = append(data.OIDCProviders, providerView{ID: p.ID, Name: name})
	}

	if err := h.templates.Render(w, "login.html", data); err != nil {
		slog.Error("failed to render login page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// LoginCompletePageData holds data for the completion page template.
type LoginCompletePageData struct {
	Redirect string
}

// LoginCompleteHandler renders the page a finished popup login lands on.
// It notifies the opener window and closes, or redirects when the flow
// ran in the main window.
// GET /login/complete?redirect=...
func (h *Handlers) LoginCompleteHandler(w http.ResponseWriter, r *http.Request) {
	data := LoginCompletePageData{
		Redirect: auth.SafeRedirectTarget(r.URL.Query().Get("redirect")),
	}

	if err := h.templates.Render(w, "login_complete.html", data); err != nil {
		slog.Error("failed to render login completion page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
