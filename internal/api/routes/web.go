package routes

import (
	"github.com/go-chi/chi/v5"

	"Fetcharr/internal/api/handlers/auth"
	"Fetcharr/internal/web"
)

// RegisterWebRoutes registers the server-rendered pages: the sign-in page
// and the popup completion page.
func RegisterWebRoutes(r chi.Router, registry *auth.Registry) error {
	templates, err := web.NewTemplates()
	if err != nil {
		return err
	}
	handlers := web.NewHandlers(templates, registry)

	r.Get("/login", handlers.LoginHandler)
	r.Get(auth.CompletionPath, handlers.LoginCompleteHandler)
	return nil
}
