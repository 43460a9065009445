package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"Fetcharr/internal/core/identity"
)

type postgresUserRepo struct {
	db *sql.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sql.DB) identity.UserRepository {
	return &postgresUserRepo{db: db}
}

const userColumns = `id, username, COALESCE(email, ''), COALESCE(oidc_subject, ''), groups, banned, created_at, updated_at`

// Create inserts a new user. Uniqueness of username and oidc_subject is
// enforced by the schema; concurrent callbacks for the same subject race
// on the constraint, not on application locks.
func (r *postgresUserRepo) Create(ctx context.Context, user *identity.User) (*identity.User, error) {
	query := `
		INSERT INTO users (username, email, oidc_subject, groups)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
		RETURNING ` + userColumns

	created, err := r.scanUser(r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.OIDCSubject, pq.Array(user.Groups)))
	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return nil, identity.ErrUsernameTaken
		}
		if isUniqueViolation(err, "users_oidc_subject_key") {
			return nil, identity.ErrAccountConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

// GetByID retrieves a user by primary key
func (r *postgresUserRepo) GetByID(ctx context.Context, id int64) (*identity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByOIDCSubject retrieves the user linked to an OIDC subject
func (r *postgresUserRepo) GetByOIDCSubject(ctx context.Context, sub string) (*identity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE oidc_subject = $1`, sub)
}

// GetByEmail retrieves a user by email
func (r *postgresUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByUsername retrieves a user by username
func (r *postgresUserRepo) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByLink retrieves the user owning an external OAuth2 identity
func (r *postgresUserRepo) GetByLink(ctx context.Context, provider, providerUserID string) (*identity.User, error) {
	query := `
		SELECT u.id, u.username, COALESCE(u.email, ''), COALESCE(u.oidc_subject, ''),
		       u.groups, u.banned, u.created_at, u.updated_at
		FROM users u
		JOIN user_links l ON l.user_id = u.id
		WHERE l.provider = $1 AND l.provider_user_id = $2`
	return r.getOne(ctx, query, provider, providerUserID)
}

// SetOIDCSubject backfills the OIDC subject on an existing user
func (r *postgresUserRepo) SetOIDCSubject(ctx context.Context, userID int64, sub string) error {
	query := `UPDATE users SET oidc_subject = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, sub); err != nil {
		if isUniqueViolation(err, "users_oidc_subject_key") {
			return identity.ErrAccountConflict
		}
		return fmt.Errorf("failed to set oidc subject: %w", err)
	}
	return nil
}

// SetEmail backfills the email on an existing user
func (r *postgresUserRepo) SetEmail(ctx context.Context, userID int64, email string) error {
	query := `UPDATE users SET email = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, email); err != nil {
		return fmt.Errorf("failed to set email: %w", err)
	}
	return nil
}

// SetGroups replaces a user's group list
func (r *postgresUserRepo) SetGroups(ctx context.Context, userID int64, groups []string) error {
	query := `UPDATE users SET groups = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, pq.Array(groups)); err != nil {
		return fmt.Errorf("failed to set groups: %w", err)
	}
	return nil
}

// UpsertLink inserts or updates a provider link keyed by
// (provider, provider_user_id)
func (r *postgresUserRepo) UpsertLink(ctx context.Context, link *identity.ProviderLink) error {
	query := `
		INSERT INTO user_links (provider, provider_user_id, provider_email, provider_login, user_id)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		ON CONFLICT (provider, provider_user_id) DO UPDATE SET
			provider_email = EXCLUDED.provider_email,
			provider_login = EXCLUDED.provider_login,
			user_id = EXCLUDED.user_id,
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query,
		link.Provider, link.ProviderUserID, link.ProviderEmail, link.ProviderLogin, link.UserID); err != nil {
		// The user already has a different identity linked for this provider.
		if isUniqueViolation(err, "user_links_user_provider_key") {
			return identity.ErrAlreadyLinked
		}
		return fmt.Errorf("failed to upsert provider link: %w", err)
	}
	return nil
}

// DeleteLink removes a user's link to a provider
func (r *postgresUserRepo) DeleteLink(ctx context.Context, userID int64, provider string) error {
	query := `DELETE FROM user_links WHERE user_id = $1 AND provider = $2`
	result, err := r.db.ExecContext(ctx, query, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete provider link: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return identity.ErrNotLinked
	}
	return nil
}

func (r *postgresUserRepo) getOne(ctx context.Context, query string, args ...any) (*identity.User, error) {
	user, err := r.scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *postgresUserRepo) scanUser(row *sql.Row) (*identity.User, error) {
	user := &identity.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.OIDCSubject,
		pq.Array(&user.Groups),
		&user.Banned,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// isUniqueViolation checks for a Postgres unique violation on the named
// constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == constraint
	}
	// Driver wrappers sometimes flatten the error to text
	return strings.Contains(err.Error(), "duplicate key") && strings.Contains(err.Error(), constraint)
}
