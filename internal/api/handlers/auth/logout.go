package auth

import (
	"log/slog"
	"net/http"
	"time"

	"Fetcharr/internal/api/middleware"
	"Fetcharr/internal/audit"
)

// HandleLogout revokes the caller's session row and clears the session
// cookie. Revocation failure still clears the cookie; the row expires on
// its own schedule.
// POST /auth/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.sessionStore.Revoke(r.Context(), sess.JTI, time.Now().UTC()); err != nil {
			slog.Warn("failed to revoke session on logout", "jti", sess.JTI, "error", err)
		}
		h.audit.Record(audit.EventLogout, sess.UserID, "", middleware.ClientIP(r))
	}

	clearSessionCookie(w)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}
