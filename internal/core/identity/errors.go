package identity

import "errors"

// Sentinel errors for account resolution. Handlers map these to short,
// non-sensitive flash messages; the detail stays server-side.
var (
	// ErrUserNotFound is returned when a user lookup finds no matching record
	ErrUserNotFound = errors.New("user not found")

	// ErrAccountConflict is returned when a presented subject differs from
	// the subject already stored on the matched account. Never auto-relink.
	ErrAccountConflict = errors.New("external identity conflicts with an existing account link")

	// ErrNoAccount is returned when no account matched and auto-creation
	// is disabled for the provider
	ErrNoAccount = errors.New("no local account for this identity")

	// ErrMissingUsername is returned when auto-creation cannot derive a
	// username from the claims
	ErrMissingUsername = errors.New("identity provides neither a username nor an email")

	// ErrBanned is returned when the resolved account is banned
	ErrBanned = errors.New("account is banned")

	// ErrNotLinked is returned in OAuth2 login mode when the external
	// identity is not linked to any local account
	ErrNotLinked = errors.New("external identity is not linked to an account")

	// ErrAlreadyLinked is returned in OAuth2 link mode when the external
	// identity already belongs to a different local account
	ErrAlreadyLinked = errors.New("external identity is already linked to another account")

	// ErrInvalidLinkSession is returned when the link-mode state cookie does
	// not match the authenticated caller
	ErrInvalidLinkSession = errors.New("link request does not match the signed-in user")

	// ErrUsernameTaken is returned when auto-creation collides with an
	// existing username
	ErrUsernameTaken = errors.New("username already taken")
)
