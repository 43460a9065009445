package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
)

// One-shot flash cookies. The UI reads them once via GET /auth/flash and
// they are gone; MaxAge keeps an unread flash from lingering.
const (
	flashErrorCookie   = "fetcharr_error"
	flashSuccessCookie = "fetcharr_success"

	flashMaxAge = 60 // seconds

	// MinFlashSecretLength is the minimum flash-signing secret size in bytes
	MinFlashSecretLength = 32
)

type flashStore struct {
	store *sessions.CookieStore
}

func newFlashStore(secret []byte) (*flashStore, error) {
	if len(secret) < MinFlashSecretLength {
		return nil, fmt.Errorf("flash cookie secret must be at least %d bytes", MinFlashSecretLength)
	}
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &flashStore{store: store}, nil
}

// SetError leaves a one-shot error message for the UI.
func (f *flashStore) SetError(w http.ResponseWriter, r *http.Request, msg string) {
	f.set(w, r, flashErrorCookie, msg)
}

// SetSuccess leaves a one-shot success message for the UI.
func (f *flashStore) SetSuccess(w http.ResponseWriter, r *http.Request, msg string) {
	f.set(w, r, flashSuccessCookie, msg)
}

func (f *flashStore) set(w http.ResponseWriter, r *http.Request, name, msg string) {
	sess, err := f.store.Get(r, name)
	if err != nil {
		// A stale or tampered cookie decodes to a fresh session; Get only
		// hard-fails on store misconfiguration.
		sess, _ = f.store.New(r, name)
	}
	if sess == nil {
		slog.Warn("failed to create flash session", "cookie", name)
		return
	}
	sess.AddFlash(msg)
	if err := sess.Save(r, w); err != nil {
		slog.Warn("failed to save flash cookie", "cookie", name, "error", err)
	}
}

// pop reads and clears the flashes of one cookie.
func (f *flashStore) pop(w http.ResponseWriter, r *http.Request, name string) []string {
	sess, err := f.store.Get(r, name)
	if err != nil || sess.IsNew {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		slog.Warn("failed to clear flash cookie", "cookie", name, "error", err)
	}
	msgs := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			msgs = append(msgs, s)
		}
	}
	return msgs
}

// HandleFlash pops the pending flash messages.
// GET /auth/flash
func (h *Handler) HandleFlash(w http.ResponseWriter, r *http.Request) {
	resp := map[string][]string{
		"error":   h.flash.pop(w, r, flashErrorCookie),
		"success": h.flash.pop(w, r, flashSuccessCookie),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode flash response", "error", err)
	}
}
