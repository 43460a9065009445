package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fetcharr/internal/core/identity"
	"Fetcharr/internal/core/sessions"
)

func createSessionUser(t *testing.T, db *sql.DB) *identity.User {
	t.Helper()
	username := testUsername("sess-user")
	user, err := NewUserRepository(db).Create(context.Background(), &identity.User{Username: username})
	require.NoError(t, err)
	t.Cleanup(func() { cleanupUser(t, db, username) })
	return user
}

func newTestSession(userID int64, expiresAt time.Time) *sessions.Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &sessions.Session{
		JTI:        uuid.NewString(),
		UserID:     userID,
		ExpiresAt:  expiresAt.UTC().Truncate(time.Microsecond),
		UserAgent:  "Mozilla/5.0 test",
		IP:         "203.0.113.7",
		Label:      "Firefox on Linux",
		LastSeenAt: now,
		CreatedAt:  now,
	}
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSessionStore(db)
	ctx := context.Background()

	user := createSessionUser(t, db)
	sess := newTestSession(user.ID, time.Now().Add(time.Hour))
	require.NoError(t, store.Create(ctx, sess))

	got, err := store.GetByJTI(ctx, sess.JTI)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, got.UserID)
	assert.Equal(t, "Firefox on Linux", got.Label)
	assert.Equal(t, "203.0.113.7", got.IP)
	assert.Nil(t, got.RevokedAt)

	_, err = store.GetByJTI(ctx, uuid.NewString())
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestSessionStore_ListByUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSessionStore(db)
	ctx := context.Background()

	user := createSessionUser(t, db)
	first := newTestSession(user.ID, time.Now().Add(time.Hour))
	first.CreatedAt = first.CreatedAt.Add(-time.Minute)
	second := newTestSession(user.ID, time.Now().Add(time.Hour))
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	rows, err := store.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.JTI, rows[0].JTI, "newest first")
	assert.Equal(t, first.JTI, rows[1].JTI)
}

func TestSessionStore_Revoke(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSessionStore(db)
	ctx := context.Background()

	user := createSessionUser(t, db)
	sess := newTestSession(user.ID, time.Now().Add(time.Hour))
	require.NoError(t, store.Create(ctx, sess))

	require.NoError(t, store.Revoke(ctx, sess.JTI, time.Now().UTC()))

	got, err := store.GetByJTI(ctx, sess.JTI)
	require.NoError(t, err)
	assert.True(t, got.Revoked())

	// Revoking twice finds no unrevoked row.
	assert.ErrorIs(t, store.Revoke(ctx, sess.JTI, time.Now().UTC()), sessions.ErrSessionNotFound)
	assert.ErrorIs(t, store.Revoke(ctx, uuid.NewString(), time.Now().UTC()), sessions.ErrSessionNotFound)
}

func TestSessionStore_TouchLastSeen(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSessionStore(db)
	ctx := context.Background()

	user := createSessionUser(t, db)
	sess := newTestSession(user.ID, time.Now().Add(time.Hour))
	require.NoError(t, store.Create(ctx, sess))

	later := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Microsecond)
	require.NoError(t, store.TouchLastSeen(ctx, sess.JTI, later))

	got, err := store.GetByJTI(ctx, sess.JTI)
	require.NoError(t, err)
	assert.True(t, got.LastSeenAt.After(sess.LastSeenAt))
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSessionStore(db)
	ctx := context.Background()

	user := createSessionUser(t, db)
	expired := newTestSession(user.ID, time.Now().Add(-48*time.Hour))
	live := newTestSession(user.ID, time.Now().Add(time.Hour))
	require.NoError(t, store.Create(ctx, expired))
	require.NoError(t, store.Create(ctx, live))

	require.NoError(t, store.DeleteExpired(ctx, time.Now().Add(-24*time.Hour)))

	_, err := store.GetByJTI(ctx, expired.JTI)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
	_, err = store.GetByJTI(ctx, live.JTI)
	assert.NoError(t, err)
}
