package oidc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// SignatureError covers every way an ID token can fail verification:
// malformed token, unresolvable key, bad signature, issuer or audience
// mismatch, expiry. Callers treat all of these identically.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("id token verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// VerifyParams identify what a token must prove.
type VerifyParams struct {
	// Issuer is checked when non-empty; some providers omit a stable
	// issuer on explicit-endpoint configurations.
	Issuer   string
	Audience string
}

// Verifier verifies ID token signatures against remote JWKS documents.
// JWKS fetches are cached and refreshed by jwk.Cache; the verifier is
// constructed once and shared by all handlers.
type Verifier struct {
	cache      *jwk.Cache
	registered map[string]struct{}
	mu         sync.Mutex

	// debugClaims enables logging of token header and claims. It must be
	// off in production; the constructor is the only way to turn it on.
	debugClaims bool
}

// NewVerifier creates a token verifier. ctx bounds the lifetime of the
// background JWKS refresher. debugClaims must only be set from an
// explicit non-production flag.
func NewVerifier(ctx context.Context, debugClaims bool) *Verifier {
	return &Verifier{
		cache:       jwk.NewCache(ctx),
		registered:  make(map[string]struct{}),
		debugClaims: debugClaims,
	}
}

// Verify checks the token's signature against the JWKS at jwksURI and
// validates issuer (when known), audience and expiry. Returns the full
// claim map on success. The raw token is never logged outside the debug
// path.
func (v *Verifier) Verify(ctx context.Context, idToken, jwksURI string, params VerifyParams) (map[string]any, error) {
	// Reject structurally invalid tokens before touching the network.
	msg, err := jws.Parse([]byte(idToken))
	if err != nil {
		return nil, &SignatureError{Err: fmt.Errorf("malformed token: %w", err)}
	}

	if v.debugClaims {
		if sigs := msg.Signatures(); len(sigs) > 0 {
			hdr := sigs[0].ProtectedHeaders()
			slog.Debug("id token header", "alg", hdr.Algorithm(), "kid", hdr.KeyID())
		}
	}

	set, err := v.keySet(ctx, jwksURI)
	if err != nil {
		return nil, &SignatureError{Err: fmt.Errorf("resolve signing keys: %w", err)}
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(set, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithAudience(params.Audience),
		jwt.WithAcceptableSkew(30 * time.Second),
	}
	if params.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(params.Issuer))
	}

	tok, err := jwt.Parse([]byte(idToken), opts...)
	if err != nil {
		return nil, &SignatureError{Err: err}
	}

	claims, err := tok.AsMap(ctx)
	if err != nil {
		return nil, &SignatureError{Err: fmt.Errorf("extract claims: %w", err)}
	}

	if v.debugClaims {
		slog.Debug("id token claims", "claims", claims)
	}

	return claims, nil
}

func (v *Verifier) keySet(ctx context.Context, jwksURI string) (jwk.Set, error) {
	v.mu.Lock()
	if _, ok := v.registered[jwksURI]; !ok {
		if err := v.cache.Register(jwksURI, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			v.mu.Unlock()
			return nil, err
		}
		v.registered[jwksURI] = struct{}{}
	}
	v.mu.Unlock()

	return v.cache.Get(ctx, jwksURI)
}
