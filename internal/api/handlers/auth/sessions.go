package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"Fetcharr/internal/api/handlers"
	"Fetcharr/internal/api/middleware"
	"Fetcharr/internal/audit"
	"Fetcharr/internal/core/identity"
	"Fetcharr/internal/core/sessions"
)

type sessionView struct {
	JTI        string    `json:"jti"`
	Label      string    `json:"label"`
	IP         string    `json:"ip,omitempty"`
	Current    bool      `json:"current"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// HandleListSessions lists the caller's device sessions.
// GET /auth/sessions
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.AuthenticatedUserID(r.Context())
	current := middleware.SessionFromContext(r.Context())

	rows, err := h.sessionStore.ListByUser(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list sessions", "user_id", userID, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "internal", "Failed to list sessions")
		return
	}

	views := make([]sessionView, 0, len(rows))
	for _, s := range rows {
		if s.Revoked() || time.Now().After(s.ExpiresAt) {
			continue
		}
		views = append(views, sessionView{
			JTI:        s.JTI,
			Label:      s.Label,
			IP:         s.IP,
			Current:    current != nil && current.JTI == s.JTI,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		slog.Warn("failed to encode sessions response", "error", err)
	}
}

// HandleRevokeSession revokes one of the caller's sessions by jti. A
// revoked session defeats its still-valid bearer token immediately.
// DELETE /auth/sessions/{jti}
func (h *Handler) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.AuthenticatedUserID(r.Context())
	jti := chi.URLParam(r, "jti")

	target, err := h.sessionStore.GetByJTI(r.Context(), jti)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			handlers.WriteError(w, http.StatusNotFound, "not_found", "Session not found")
			return
		}
		slog.Error("failed to load session", "jti", jti, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "internal", "Failed to revoke session")
		return
	}
	// Only the owner can revoke; don't leak other users' jtis.
	if target.UserID != userID {
		handlers.WriteError(w, http.StatusNotFound, "not_found", "Session not found")
		return
	}

	if err := h.sessionStore.Revoke(r.Context(), jti, time.Now().UTC()); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			handlers.WriteError(w, http.StatusNotFound, "not_found", "Session already revoked")
			return
		}
		slog.Error("failed to revoke session", "jti", jti, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "internal", "Failed to revoke session")
		return
	}

	h.audit.Record(audit.EventSessionRevoked, userID, "", middleware.ClientIP(r))
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlinkProvider removes the caller's link to an OAuth2 provider.
// DELETE /auth/links/{provider}
func (h *Handler) HandleUnlinkProvider(w http.ResponseWriter, r *http.Request) {
	userID := middleware.AuthenticatedUserID(r.Context())
	provider := chi.URLParam(r, "provider")

	if err := h.users.DeleteLink(r.Context(), userID, provider); err != nil {
		if errors.Is(err, identity.ErrNotLinked) {
			handlers.WriteError(w, http.StatusNotFound, "not_found", "No such linked account")
			return
		}
		slog.Error("failed to remove provider link", "user_id", userID, "provider", provider, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "internal", "Failed to remove linked account")
		return
	}

	h.audit.Record(audit.EventLinkRemoved, userID, provider, middleware.ClientIP(r))
	w.WriteHeader(http.StatusNoContent)
}
