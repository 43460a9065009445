package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"Fetcharr/internal/api/handlers/auth"
	"Fetcharr/internal/api/middleware"
)

// RegisterAuthRoutes registers the sign-in, callback, and session
// management endpoints with dedicated rate limiting. Auth endpoints get
// stricter limits than the global one to blunt credential stuffing and
// state exhaustion.
func RegisterAuthRoutes(r chi.Router, h *auth.Handler, sessionAuth *middleware.SessionAuth, allowedOrigins []string) {
	// Login and callback endpoints: 10 req/min per IP. This boundary is
	// redirect-only, so throttled requests take the handlers' uniform
	// failure exit instead of a bare 429.
	loginLimiter := middleware.NewRateLimiter(10, 1*time.Minute)
	throttled := func(action string) func(http.Handler) http.Handler {
		return loginLimiter.MiddlewareWithRejection(action, h.HandleRateLimited)
	}

	// Session management: 30 req/min per IP
	manageLimiter := middleware.NewRateLimiter(30, 1*time.Minute)

	// Flow initiation
	r.With(throttled("oidc_login")).Get("/auth/oidc/login", h.HandleOIDCLogin)
	r.With(throttled("oauth2_login")).Get("/auth/oauth2/{provider}/login", h.HandleOAuth2Login)
	r.With(throttled("oauth2_link"), sessionAuth.RequireAuth).
		Get("/auth/oauth2/{provider}/link", h.HandleOAuth2Link)

	// Callbacks complete the flows. The rate limiter runs before any
	// provider I/O; CORS covers cross-origin redirects back from the
	// provider. Link-mode callbacks need the caller's identity, login-mode
	// ones must still work without one, hence OptionalAuth.
	r.With(
		corsMiddleware(allowedOrigins),
		throttled("oidc_callback"),
		sessionAuth.OptionalAuth,
	).Get("/auth/oidc/callback", h.HandleOIDCCallback)

	r.With(
		corsMiddleware(allowedOrigins),
		throttled("oauth2_callback"),
		sessionAuth.OptionalAuth,
	).Get("/auth/oauth2/callback", h.HandleOAuth2Callback)

	// Session lifecycle
	r.With(manageLimiter.Middleware("logout"), sessionAuth.OptionalAuth).Post("/auth/logout", h.HandleLogout)
	r.With(manageLimiter.Middleware("sessions"), sessionAuth.RequireAuth).Get("/auth/sessions", h.HandleListSessions)
	r.With(manageLimiter.Middleware("sessions"), sessionAuth.RequireAuth).Delete("/auth/sessions/{jti}", h.HandleRevokeSession)
	r.With(manageLimiter.Middleware("links"), sessionAuth.RequireAuth).Delete("/auth/links/{provider}", h.HandleUnlinkProvider)

	// One-shot UI messages left by the redirect flows
	r.Get("/auth/flash", h.HandleFlash)
}

// corsMiddleware creates a CORS middleware for the callback endpoints
// with specific allowed origins.
func corsMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	})
}
