package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// OIDCResolveOptions carries the per-provider matching flags that drive
// OIDC account resolution.
type OIDCResolveOptions struct {
	AllowAutoCreate bool
	MatchByEmail    bool
	MatchByUsername bool
	SyncGroups      bool
}

// Resolver turns a verified external identity into a local user account.
type Resolver struct {
	users UserRepository
}

// NewResolver creates a new identity resolver backed by the given repository
func NewResolver(users UserRepository) *Resolver {
	return &Resolver{users: users}
}

// ResolveOIDC finds or creates the local user for a verified OIDC identity.
//
// Resolution order: stored subject, then email (when MatchByEmail), then
// username (when MatchByUsername). A match whose stored subject differs
// from the presented one fails ErrAccountConflict; accounts are never
// silently relinked. The ban check runs last, after any auto-created
// record has been persisted.
func (r *Resolver) ResolveOIDC(ctx context.Context, ident VerifiedIdentity, opts OIDCResolveOptions) (*User, error) {
	if ident.Subject == "" {
		return nil, fmt.Errorf("verified identity has no subject")
	}

	user, err := r.users.GetByOIDCSubject(ctx, ident.Subject)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("lookup by subject: %w", err)
	}

	if user == nil && opts.MatchByEmail && ident.Email != "" {
		user, err = r.users.GetByEmail(ctx, ident.Email)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("lookup by email: %w", err)
		}
	}

	if user == nil && opts.MatchByUsername && ident.Username != "" {
		user, err = r.users.GetByUsername(ctx, ident.Username)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("lookup by username: %w", err)
		}
	}

	if user == nil {
		if !opts.AllowAutoCreate {
			return nil, ErrNoAccount
		}
		user, err = r.autoCreate(ctx, ident, opts)
		if err != nil {
			return nil, err
		}
	} else {
		// A matched account already bound to a different subject is a hard
		// failure, not a relink.
		if user.OIDCSubject != "" && user.OIDCSubject != ident.Subject {
			slog.Warn("oidc subject conflict on matched account",
				"user_id", user.ID, "presented_sub", ident.Subject)
			return nil, ErrAccountConflict
		}
		if err := r.updateExisting(ctx, user, ident, opts); err != nil {
			return nil, err
		}
	}

	if user.Banned {
		return nil, ErrBanned
	}
	return user, nil
}

// ResolveOAuth2Login finds the local user owning an OAuth2 identity.
// Strict lookup by (provider, provider user id); login never auto-creates.
func (r *Resolver) ResolveOAuth2Login(ctx context.Context, provider string, ident VerifiedIdentity) (*User, error) {
	if ident.Subject == "" {
		return nil, fmt.Errorf("remote identity has no id")
	}

	user, err := r.users.GetByLink(ctx, provider, ident.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("lookup by provider link: %w", err)
	}
	if user.Banned {
		return nil, ErrBanned
	}
	return user, nil
}

// LinkOAuth2 attaches an OAuth2 identity to the authenticated caller.
// callerID is the user id proven by the caller's session; stateUserID is
// the id stored in the link-mode state cookie when the flow started. The
// two must agree, which defends against completing a link flow with a
// stale or planted cookie.
func (r *Resolver) LinkOAuth2(ctx context.Context, provider string, ident VerifiedIdentity, callerID, stateUserID int64) (*User, error) {
	if callerID == 0 || callerID != stateUserID {
		return nil, ErrInvalidLinkSession
	}

	owner, err := r.users.GetByLink(ctx, provider, ident.Subject)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("lookup by provider link: %w", err)
	}
	if owner != nil && owner.ID != callerID {
		return nil, ErrAlreadyLinked
	}

	caller, err := r.users.GetByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("lookup caller: %w", err)
	}

	link := &ProviderLink{
		Provider:       provider,
		ProviderUserID: ident.Subject,
		ProviderEmail:  ident.Email,
		ProviderLogin:  ident.Username,
		UserID:         callerID,
	}
	if err := r.users.UpsertLink(ctx, link); err != nil {
		return nil, fmt.Errorf("upsert provider link: %w", err)
	}

	return caller, nil
}

// autoCreate persists a new account for a first-time OIDC login.
func (r *Resolver) autoCreate(ctx context.Context, ident VerifiedIdentity, opts OIDCResolveOptions) (*User, error) {
	username := ident.Username
	if username == "" && ident.Email != "" {
		username = ident.Email[:strings.Index(ident.Email+"@", "@")]
	}
	if username == "" {
		return nil, ErrMissingUsername
	}

	groups := []string{DefaultGroup}
	if opts.SyncGroups {
		// Privileged groups are never grantable from an external claim.
		if synced := FilterSyncedGroups(ident.Groups); len(synced) > 0 {
			groups = synced
		}
	}

	user, err := r.users.Create(ctx, &User{
		Username:    username,
		Email:       ident.Email,
		OIDCSubject: ident.Subject,
		Groups:      groups,
	})
	if err != nil {
		return nil, fmt.Errorf("auto-create user: %w", err)
	}
	slog.Info("auto-created user from oidc identity", "user_id", user.ID, "username", username)
	return user, nil
}

// updateExisting backfills subject and email onto a matched account and
// resyncs groups when enabled.
func (r *Resolver) updateExisting(ctx context.Context, user *User, ident VerifiedIdentity, opts OIDCResolveOptions) error {
	if user.OIDCSubject == "" {
		if err := r.users.SetOIDCSubject(ctx, user.ID, ident.Subject); err != nil {
			// A unique violation here means another account already holds
			// this subject.
			if errors.Is(err, ErrAccountConflict) {
				return ErrAccountConflict
			}
			return fmt.Errorf("store oidc subject: %w", err)
		}
		user.OIDCSubject = ident.Subject
	}

	if user.Email == "" && ident.Email != "" {
		if err := r.users.SetEmail(ctx, user.ID, ident.Email); err != nil {
			return fmt.Errorf("store email: %w", err)
		}
		user.Email = ident.Email
	}

	// Never overwrite a non-empty local group set with an empty claim result.
	if opts.SyncGroups && len(ident.Groups) > 0 {
		groups := FilterSyncedGroups(ident.Groups)
		// Locally granted privileged groups survive a resync.
		for _, g := range user.Groups {
			if _, privileged := privilegedGroups[g]; privileged {
				groups = append(groups, g)
			}
		}
		if len(groups) == 0 {
			groups = []string{DefaultGroup}
		}
		if err := r.users.SetGroups(ctx, user.ID, groups); err != nil {
			return fmt.Errorf("resync groups: %w", err)
		}
		user.Groups = groups
	}

	return nil
}
