package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"Fetcharr/internal/core/sessions"
)

type postgresSessionRepo struct {
	db *sql.DB
}

// NewSessionStore creates a new PostgreSQL-backed session store
func NewSessionStore(db *sql.DB) sessions.Store {
	return &postgresSessionRepo{db: db}
}

// Create inserts a new session row
func (r *postgresSessionRepo) Create(ctx context.Context, sess *sessions.Session) error {
	query := `
		INSERT INTO sessions (jti, user_id, expires_at, user_agent, ip, label, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		sess.JTI, sess.UserID, sess.ExpiresAt, sess.UserAgent, sess.IP,
		sess.Label, sess.LastSeenAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByJTI retrieves a session by token id
func (r *postgresSessionRepo) GetByJTI(ctx context.Context, jti string) (*sessions.Session, error) {
	query := `
		SELECT jti, user_id, expires_at, revoked_at, COALESCE(user_agent, ''),
		       COALESCE(ip, ''), COALESCE(label, ''), last_seen_at, created_at
		FROM sessions WHERE jti = $1`

	sess := &sessions.Session{}
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, jti).Scan(
		&sess.JTI, &sess.UserID, &sess.ExpiresAt, &revokedAt,
		&sess.UserAgent, &sess.IP, &sess.Label, &sess.LastSeenAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if revokedAt.Valid {
		sess.RevokedAt = &revokedAt.Time
	}
	return sess, nil
}

// ListByUser returns a user's sessions, newest first. Revoked sessions
// are included for audit until deleted.
func (r *postgresSessionRepo) ListByUser(ctx context.Context, userID int64) ([]*sessions.Session, error) {
	query := `
		SELECT jti, user_id, expires_at, revoked_at, COALESCE(user_agent, ''),
		       COALESCE(ip, ''), COALESCE(label, ''), last_seen_at, created_at
		FROM sessions WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*sessions.Session
	for rows.Next() {
		sess := &sessions.Session{}
		var revokedAt sql.NullTime
		if err := rows.Scan(
			&sess.JTI, &sess.UserID, &sess.ExpiresAt, &revokedAt,
			&sess.UserAgent, &sess.IP, &sess.Label, &sess.LastSeenAt, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if revokedAt.Valid {
			sess.RevokedAt = &revokedAt.Time
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// Revoke marks a session as revoked; the row is retained for audit
func (r *postgresSessionRepo) Revoke(ctx context.Context, jti string, at time.Time) error {
	query := `UPDATE sessions SET revoked_at = $2 WHERE jti = $1 AND revoked_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, jti, at)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

// TouchLastSeen updates the last-seen timestamp
func (r *postgresSessionRepo) TouchLastSeen(ctx context.Context, jti string, at time.Time) error {
	query := `UPDATE sessions SET last_seen_at = $2 WHERE jti = $1`
	if _, err := r.db.ExecContext(ctx, query, jti, at); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry predates the cutoff
func (r *postgresSessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) error {
	query := `DELETE FROM sessions WHERE expires_at < $1`
	if _, err := r.db.ExecContext(ctx, query, cutoff); err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}
