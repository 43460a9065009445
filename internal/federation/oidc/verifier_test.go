package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signingFixture struct {
	key      jwk.Key
	jwksURL  string
	jwksHits *atomic.Int32
}

func newSigningFixture(t *testing.T) *signingFixture {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))

	pub, err := key.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	return &signingFixture{key: key, jwksURL: srv.URL, jwksHits: &hits}
}

func (f *signingFixture) signToken(t *testing.T, issuer, audience string, expiry time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{audience}).
		Subject("user-1").
		Claim("preferred_username", "alice").
		Claim("nonce", "expected-nonce").
		IssuedAt(time.Now().Add(-time.Minute)).
		Expiration(expiry).
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, f.key))
	require.NoError(t, err)
	return string(signed)
}

func TestVerifier_ValidToken(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifier(context.Background(), false)

	token := f.signToken(t, "https://idp.example.com", "client-1", time.Now().Add(time.Hour))
	claims, err := v.Verify(context.Background(), token, f.jwksURL, VerifyParams{
		Issuer:   "https://idp.example.com",
		Audience: "client-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "alice", claims["preferred_username"])
	assert.Equal(t, "expected-nonce", claims["nonce"])
}

func TestVerifier_SkipsIssuerCheckWhenUnknown(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifier(context.Background(), false)

	token := f.signToken(t, "https://whoever.example.com", "client-1", time.Now().Add(time.Hour))
	_, err := v.Verify(context.Background(), token, f.jwksURL, VerifyParams{Audience: "client-1"})
	assert.NoError(t, err)
}

func TestVerifier_Failures(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifier(context.Background(), false)

	tests := []struct {
		name   string
		token  string
		params VerifyParams
	}{
		{
			name:   "wrong audience",
			token:  f.signToken(t, "https://idp.example.com", "someone-else", time.Now().Add(time.Hour)),
			params: VerifyParams{Issuer: "https://idp.example.com", Audience: "client-1"},
		},
		{
			name:   "wrong issuer",
			token:  f.signToken(t, "https://evil.example.com", "client-1", time.Now().Add(time.Hour)),
			params: VerifyParams{Issuer: "https://idp.example.com", Audience: "client-1"},
		},
		{
			name:   "expired token",
			token:  f.signToken(t, "https://idp.example.com", "client-1", time.Now().Add(-time.Hour)),
			params: VerifyParams{Issuer: "https://idp.example.com", Audience: "client-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token, f.jwksURL, tt.params)
			require.Error(t, err)

			var sigErr *SignatureError
			assert.ErrorAs(t, err, &sigErr)
		})
	}
}

func TestVerifier_TamperedSignature(t *testing.T) {
	f := newSigningFixture(t)
	other := newSigningFixture(t)
	v := NewVerifier(context.Background(), false)

	// Signed by a key the JWKS endpoint does not serve
	token := other.signToken(t, "https://idp.example.com", "client-1", time.Now().Add(time.Hour))
	_, err := v.Verify(context.Background(), token, f.jwksURL, VerifyParams{
		Issuer:   "https://idp.example.com",
		Audience: "client-1",
	})
	require.Error(t, err)

	var sigErr *SignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestVerifier_MalformedTokenSkipsNetwork(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifier(context.Background(), false)

	_, err := v.Verify(context.Background(), "not-a-jwt", f.jwksURL, VerifyParams{Audience: "client-1"})
	require.Error(t, err)

	var sigErr *SignatureError
	assert.ErrorAs(t, err, &sigErr)
	assert.Equal(t, int32(0), f.jwksHits.Load(), "structurally invalid token must not trigger a JWKS fetch")
}
