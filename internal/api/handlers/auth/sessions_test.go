package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fetcharr/internal/api/middleware"
	"Fetcharr/internal/core/identity"
	"Fetcharr/internal/core/sessions"
)

func seedSession(f *fixture, jti string, userID int64, expiresAt time.Time) *sessions.Session {
	s := &sessions.Session{
		JTI:       jti,
		UserID:    userID,
		Label:     "Firefox on Linux",
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	f.sessions.rows[jti] = s
	return s
}

func withJTIParam(r *http.Request, jti string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jti", jti)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleListSessions(t *testing.T) {
	f := newFixture(t)
	current := seedSession(f, "jti-current", 7, time.Now().Add(time.Hour))
	seedSession(f, "jti-other", 7, time.Now().Add(time.Hour))
	seedSession(f, "jti-expired", 7, time.Now().Add(-time.Hour))
	revoked := seedSession(f, "jti-revoked", 7, time.Now().Add(time.Hour))
	now := time.Now()
	revoked.RevokedAt = &now
	seedSession(f, "jti-foreign", 9, time.Now().Add(time.Hour))

	r := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	r = r.WithContext(middleware.WithTestSession(r.Context(), current))
	w := httptest.NewRecorder()
	f.handler.HandleListSessions(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var views []sessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2, "expired, revoked, and foreign sessions are hidden")

	byJTI := map[string]sessionView{}
	for _, v := range views {
		byJTI[v.JTI] = v
	}
	assert.True(t, byJTI["jti-current"].Current)
	assert.False(t, byJTI["jti-other"].Current)
	assert.Equal(t, "Firefox on Linux", byJTI["jti-other"].Label)
}

func TestHandleRevokeSession(t *testing.T) {
	t.Run("owner revokes own session", func(t *testing.T) {
		f := newFixture(t)
		seedSession(f, "jti-1", 7, time.Now().Add(time.Hour))

		r := withJTIParam(httptest.NewRequest(http.MethodDelete, "/auth/sessions/jti-1", nil), "jti-1")
		r = r.WithContext(middleware.WithTestUser(r.Context(), 7))
		w := httptest.NewRecorder()
		f.handler.HandleRevokeSession(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, f.sessions.rows["jti-1"].Revoked())
	})

	t.Run("unknown jti is 404", func(t *testing.T) {
		f := newFixture(t)

		r := withJTIParam(httptest.NewRequest(http.MethodDelete, "/auth/sessions/nope", nil), "nope")
		r = r.WithContext(middleware.WithTestUser(r.Context(), 7))
		w := httptest.NewRecorder()
		f.handler.HandleRevokeSession(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("another user's session looks like 404", func(t *testing.T) {
		f := newFixture(t)
		seedSession(f, "jti-1", 9, time.Now().Add(time.Hour))

		r := withJTIParam(httptest.NewRequest(http.MethodDelete, "/auth/sessions/jti-1", nil), "jti-1")
		r = r.WithContext(middleware.WithTestUser(r.Context(), 7))
		w := httptest.NewRecorder()
		f.handler.HandleRevokeSession(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, f.sessions.rows["jti-1"].Revoked())
	})
}

func TestHandleLogout(t *testing.T) {
	t.Run("signed-in caller", func(t *testing.T) {
		f := newFixture(t)
		sess := seedSession(f, "jti-1", 7, time.Now().Add(time.Hour))

		r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		r = r.WithContext(middleware.WithTestSession(r.Context(), sess))
		w := httptest.NewRecorder()
		f.handler.HandleLogout(w, r)
		resp := w.Result()

		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
		assert.True(t, f.sessions.rows["jti-1"].Revoked())

		cleared := responseCookie(resp, middleware.SessionCookieName)
		require.NotNil(t, cleared)
		assert.Equal(t, -1, cleared.MaxAge)
		assert.Empty(t, cleared.Value)
	})

	t.Run("anonymous caller still lands on login", func(t *testing.T) {
		f := newFixture(t)

		r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		w := httptest.NewRecorder()
		f.handler.HandleLogout(w, r)
		resp := w.Result()

		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
		require.NotNil(t, responseCookie(resp, middleware.SessionCookieName))
	})
}

func TestHandleUnlinkProvider(t *testing.T) {
	t.Run("removes existing link", func(t *testing.T) {
		f := newFixture(t)
		user := f.users.add(&identity.User{Username: "alice"})
		f.users.links["github\x00583231"] = &identity.ProviderLink{
			Provider: "github", ProviderUserID: "583231", UserID: user.ID,
		}

		r := withProviderParam(httptest.NewRequest(http.MethodDelete, "/auth/links/github", nil), "github")
		r = r.WithContext(middleware.WithTestUser(r.Context(), user.ID))
		w := httptest.NewRecorder()
		f.handler.HandleUnlinkProvider(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, f.users.links)
	})

	t.Run("nothing linked is 404", func(t *testing.T) {
		f := newFixture(t)
		user := f.users.add(&identity.User{Username: "alice"})

		r := withProviderParam(httptest.NewRequest(http.MethodDelete, "/auth/links/github", nil), "github")
		r = r.WithContext(middleware.WithTestUser(r.Context(), user.ID))
		w := httptest.NewRecorder()
		f.handler.HandleUnlinkProvider(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
