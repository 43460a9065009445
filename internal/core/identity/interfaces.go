package identity

import "context"

// UserRepository defines the interface for user and link persistence.
//
// Implementations must enforce uniqueness of oidc_subject and of
// (provider, provider_user_id) at the storage layer so that two
// concurrent callbacks for the same external identity cannot create
// duplicate accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByOIDCSubject(ctx context.Context, sub string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByLink looks up the user owning the (provider, providerUserID)
	// external identity. Returns ErrUserNotFound when unlinked.
	GetByLink(ctx context.Context, provider, providerUserID string) (*User, error)

	// Create inserts a new user. Returns ErrUsernameTaken or
	// ErrAccountConflict on uniqueness violations.
	Create(ctx context.Context, user *User) (*User, error)

	SetOIDCSubject(ctx context.Context, userID int64, sub string) error
	SetEmail(ctx context.Context, userID int64, email string) error
	SetGroups(ctx context.Context, userID int64, groups []string) error

	// UpsertLink inserts or updates a provider link keyed by
	// (provider, provider_user_id)
	UpsertLink(ctx context.Context, link *ProviderLink) error
	DeleteLink(ctx context.Context, userID int64, provider string) error
}
