package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"Fetcharr/internal/audit"
	"Fetcharr/internal/core/identity"
	"Fetcharr/internal/core/sessions"
	"Fetcharr/internal/federation/oidc"
	"Fetcharr/internal/federation/state"
	"Fetcharr/internal/settings"
)

var testCookieSecret = []byte("0123456789abcdef0123456789abcdef")

// ---- in-memory repositories ----

type fakeUsers struct {
	users  map[int64]*identity.User
	links  map[string]*identity.ProviderLink
	nextID int64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users:  make(map[int64]*identity.User),
		links:  make(map[string]*identity.ProviderLink),
		nextID: 1,
	}
}

func (f *fakeUsers) add(u *identity.User) *identity.User {
	u.ID = f.nextID
	f.nextID++
	f.users[u.ID] = u
	return u
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*identity.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) GetByOIDCSubject(_ context.Context, sub string) (*identity.User, error) {
	for _, u := range f.users {
		if sub != "" && u.OIDCSubject == sub {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	for _, u := range f.users {
		if email != "" && u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*identity.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) GetByLink(_ context.Context, provider, providerUserID string) (*identity.User, error) {
	if l, ok := f.links[provider+"\x00"+providerUserID]; ok {
		return f.users[l.UserID], nil
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) Create(_ context.Context, user *identity.User) (*identity.User, error) {
	for _, u := range f.users {
		if u.Username == user.Username {
			return nil, identity.ErrUsernameTaken
		}
	}
	return f.add(user), nil
}

func (f *fakeUsers) SetOIDCSubject(_ context.Context, userID int64, sub string) error {
	f.users[userID].OIDCSubject = sub
	return nil
}

func (f *fakeUsers) SetEmail(_ context.Context, userID int64, email string) error {
	f.users[userID].Email = email
	return nil
}

func (f *fakeUsers) SetGroups(_ context.Context, userID int64, groups []string) error {
	f.users[userID].Groups = groups
	return nil
}

func (f *fakeUsers) UpsertLink(_ context.Context, link *identity.ProviderLink) error {
	f.links[link.Provider+"\x00"+link.ProviderUserID] = link
	return nil
}

func (f *fakeUsers) DeleteLink(_ context.Context, userID int64, provider string) error {
	for k, l := range f.links {
		if l.UserID == userID && l.Provider == provider {
			delete(f.links, k)
			return nil
		}
	}
	return identity.ErrNotLinked
}

type fakeSessions struct {
	rows map[string]*sessions.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: make(map[string]*sessions.Session)}
}

func (f *fakeSessions) Create(_ context.Context, s *sessions.Session) error {
	f.rows[s.JTI] = s
	return nil
}

func (f *fakeSessions) GetByJTI(_ context.Context, jti string) (*sessions.Session, error) {
	if s, ok := f.rows[jti]; ok {
		return s, nil
	}
	return nil, sessions.ErrSessionNotFound
}

func (f *fakeSessions) ListByUser(_ context.Context, userID int64) ([]*sessions.Session, error) {
	var out []*sessions.Session
	for _, s := range f.rows {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Revoke(_ context.Context, jti string, at time.Time) error {
	s, ok := f.rows[jti]
	if !ok {
		return sessions.ErrSessionNotFound
	}
	s.RevokedAt = &at
	return nil
}

func (f *fakeSessions) TouchLastSeen(_ context.Context, jti string, at time.Time) error {
	if s, ok := f.rows[jti]; ok {
		s.LastSeenAt = at
	}
	return nil
}

func (f *fakeSessions) DeleteExpired(_ context.Context, _ time.Time) error { return nil }

type fakeSettingsRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *fakeSettingsRepo) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", settings.ErrNotFound
}

func (f *fakeSettingsRepo) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (f *fakeAuditRepo) Insert(_ context.Context, ev *audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// ---- fake OIDC identity provider ----

// fakeIDP is a minimal OIDC provider: a token endpoint minting signed ID
// tokens and a JWKS endpoint serving the public key.
type fakeIDP struct {
	srv *httptest.Server
	key jwk.Key
	set jwk.Set

	issuer     string
	clientID   string
	tokenCalls atomic.Int32

	// claims minted into the next ID token
	subject  string
	username string
	email    string
	groups   []string
	nonce    string
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "idp-key"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := key.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	idp := &fakeIDP{
		key:      key,
		set:      set,
		issuer:   "https://idp.test",
		clientID: "fetcharr-client",
		subject:  "sub-1",
		username: "alice",
		email:    "alice@example.com",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		idp.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idp.mintIDToken(t),
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(idp.set)
	})
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)

	return idp
}

func (idp *fakeIDP) mintIDToken(t *testing.T) string {
	builder := jwt.NewBuilder().
		Issuer(idp.issuer).
		Audience([]string{idp.clientID}).
		Subject(idp.subject).
		IssuedAt(time.Now().Add(-time.Minute)).
		Expiration(time.Now().Add(time.Hour))
	if idp.username != "" {
		builder = builder.Claim("preferred_username", idp.username)
	}
	if idp.email != "" {
		builder = builder.Claim("email", idp.email)
	}
	if len(idp.groups) > 0 {
		builder = builder.Claim("groups", idp.groups)
	}
	if idp.nonce != "" {
		builder = builder.Claim("nonce", idp.nonce)
	}
	tok, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, idp.key))
	require.NoError(t, err)
	return string(signed)
}

// provider builds the matching provider config with explicit endpoints,
// so no discovery round trip is needed.
func (idp *fakeIDP) provider(id string) *oidc.Provider {
	return &oidc.Provider{
		ID:           id,
		Name:         "Test IdP",
		Kind:         oidc.KindOIDC,
		Issuer:       idp.issuer,
		ClientID:     idp.clientID,
		ClientSecret: "client-secret",
		RedirectURI:  "http://app.test/auth/oidc/callback",

		AuthorizationEndpoint: idp.srv.URL + "/authorize",
		TokenEndpoint:         idp.srv.URL + "/token",
		JWKSURI:               idp.srv.URL + "/jwks",

		GroupsClaim:     "groups",
		AllowAutoCreate: true,
		MatchByEmail:    true,
		SyncGroups:      true,
		Enabled:         true,
	}
}

// ---- fixture ----

type fixture struct {
	handler  *Handler
	states   *state.Store
	users    *fakeUsers
	sessions *fakeSessions
	settings *fakeSettingsRepo
	audit    *fakeAuditRepo
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := newFakeUsers()
	sessionRows := newFakeSessions()
	settingsRepo := &fakeSettingsRepo{values: make(map[string]string)}
	auditRepo := &fakeAuditRepo{}
	registry := NewRegistry()

	states, err := state.NewStore(testCookieSecret, 10*time.Minute)
	require.NoError(t, err)

	issuer, err := sessions.NewIssuer(testCookieSecret, sessionRows)
	require.NoError(t, err)

	handler, err := NewHandler(Config{
		Registry:     registry,
		States:       states,
		Discovery:    oidc.NewDiscoveryCache(time.Minute),
		Verifier:     oidc.NewVerifier(context.Background(), false),
		Resolver:     identity.NewResolver(users),
		Issuer:       issuer,
		SessionStore: sessionRows,
		Users:        users,
		Audit:        audit.NewRecorder(auditRepo),
		Settings:     settings.NewService(settingsRepo),
		FlashSecret:  testCookieSecret,
	})
	require.NoError(t, err)

	return &fixture{
		handler:  handler,
		states:   states,
		users:    users,
		sessions: sessionRows,
		settings: settingsRepo,
		audit:    auditRepo,
		registry: registry,
	}
}

// issueStateCookies runs the state store's Issue step and returns the
// cookies a browser would carry into the callback.
func issueStateCookies(t *testing.T, f *fixture, st state.State) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/oidc/login", nil)
	require.NoError(t, f.states.Issue(w, r, st))
	return w.Result().Cookies()
}

func callbackRequest(path, code, queryState string, cookies []*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path+"?code="+code+"&state="+queryState, nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func responseCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
