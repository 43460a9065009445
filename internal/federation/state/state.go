// Package state carries the ephemeral per-login authorization state in
// short-lived signed cookies. There is deliberately no server-side record
// of an in-flight login: statelessness here is what lets callbacks land
// on any replica.
package state

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	stateCookie = "fetcharr_oidc_state"
	flowCookie  = "fetcharr_auth_flow"
)

// Flow modes for OAuth2 state
const (
	ModeLogin = "login"
	ModeLink  = "link"
)

// ErrStateMismatch is returned when the callback request cannot be tied
// to a login this server started: missing parameters, missing cookies, or
// a state value that does not match.
var ErrStateMismatch = errors.New("authorization state mismatch")

// State is everything one in-flight login attempt needs to survive the
// round trip through the identity provider.
type State struct {
	State          string `json:"state"`
	Nonce          string `json:"nonce,omitempty"`
	CodeVerifier   string `json:"code_verifier,omitempty"`
	ProviderID     string `json:"provider,omitempty"`
	RedirectTarget string `json:"redirect,omitempty"`
	Mode           string `json:"mode,omitempty"`
	LinkReturnPath string `json:"link_return,omitempty"`
	LinkUserID     int64  `json:"link_user,omitempty"`
	Popup          bool   `json:"popup,omitempty"`
}

// Store signs and seals authorization-state cookies.
type Store struct {
	codec  *securecookie.SecureCookie
	maxAge int
}

// MinSecretLength is the minimum cookie-signing secret size in bytes
const MinSecretLength = 32

// NewStore creates a cookie store. secret signs the cookies and must be
// at least MinSecretLength bytes; ttl bounds how long an authorization
// round trip may take.
func NewStore(secret []byte, ttl time.Duration) (*Store, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("state cookie secret must be at least %d bytes", MinSecretLength)
	}
	codec := securecookie.New(secret, nil)
	codec.MaxAge(int(ttl.Seconds()))
	return &Store{codec: codec, maxAge: int(ttl.Seconds())}, nil
}

// Issue writes the authorization-state cookies for a new login attempt.
func (s *Store) Issue(w http.ResponseWriter, r *http.Request, st State) error {
	stateVal, err := s.codec.Encode(stateCookie, st.State)
	if err != nil {
		return fmt.Errorf("encode state cookie: %w", err)
	}
	flowVal, err := s.codec.Encode(flowCookie, st)
	if err != nil {
		return fmt.Errorf("encode flow cookie: %w", err)
	}

	secure := requestIsSecure(r)
	sameSite := http.SameSiteLaxMode
	// Popup completion navigates back from the provider's origin inside a
	// window the parent polls; Lax would withhold the cookies there.
	// SameSite=None is only valid on Secure cookies.
	if st.Popup && secure {
		sameSite = http.SameSiteNoneMode
	}

	for name, value := range map[string]string{stateCookie: stateVal, flowCookie: flowVal} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   s.maxAge,
			HttpOnly: true,
			Secure:   secure,
			SameSite: sameSite,
		})
	}
	return nil
}

// Consume validates the callback request against the issued cookies and
// returns the stored state. Whatever the outcome, every flow cookie is
// cleared: a state is usable exactly once.
func (s *Store) Consume(w http.ResponseWriter, r *http.Request) (*State, error) {
	defer s.Clear(w)

	code := r.URL.Query().Get("code")
	queryState := r.URL.Query().Get("state")
	if code == "" || queryState == "" {
		return nil, fmt.Errorf("%w: missing code or state parameter", ErrStateMismatch)
	}

	stateC, err := r.Cookie(stateCookie)
	if err != nil {
		return nil, fmt.Errorf("%w: no state cookie", ErrStateMismatch)
	}
	var cookieState string
	if err := s.codec.Decode(stateCookie, stateC.Value, &cookieState); err != nil {
		return nil, fmt.Errorf("%w: undecodable state cookie", ErrStateMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(cookieState), []byte(queryState)) != 1 {
		return nil, fmt.Errorf("%w: state does not match", ErrStateMismatch)
	}

	flowC, err := r.Cookie(flowCookie)
	if err != nil {
		return nil, fmt.Errorf("%w: no flow cookie", ErrStateMismatch)
	}
	var st State
	if err := s.codec.Decode(flowCookie, flowC.Value, &st); err != nil {
		return nil, fmt.Errorf("%w: undecodable flow cookie", ErrStateMismatch)
	}
	if st.State != cookieState {
		return nil, fmt.Errorf("%w: flow cookie belongs to a different attempt", ErrStateMismatch)
	}

	return &st, nil
}

// Clear expires every authorization-flow cookie. Safe to call more than
// once.
func (s *Store) Clear(w http.ResponseWriter) {
	for _, name := range []string{stateCookie, flowCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}

// requestIsSecure reports the request's effective scheme, honoring the
// proxy-forwarded protocol header.
func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return r.Header.Get("X-Forwarded-Proto") == "https"
}
