package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultDiscoveryTTL is how long a fetched discovery document stays fresh
const DefaultDiscoveryTTL = 10 * time.Minute

// DiscoveryDocument is the subset of the OIDC discovery metadata the
// callback pipeline needs.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
}

// DiscoveryError wraps a failed discovery fetch
type DiscoveryError struct {
	Issuer     string
	StatusCode int
	Err        error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery failed for issuer %s: %v", e.Issuer, e.Err)
	}
	return fmt.Sprintf("discovery failed for issuer %s: status %d", e.Issuer, e.StatusCode)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// DiscoveryCache caches discovery documents per issuer with TTL expiry.
//
// It is constructed once at process start and passed to handlers; it is
// not a hidden singleton. Concurrent misses for the same issuer may each
// fetch; the document is small and idempotent to fetch redundantly, so
// no single-flight is attempted. The last successful result wins.
type DiscoveryCache struct {
	httpClient *http.Client
	cache      map[string]*cachedDiscovery
	mu         sync.RWMutex
	ttl        time.Duration
}

type cachedDiscovery struct {
	doc       *DiscoveryDocument
	expiresAt time.Time
}

// NewDiscoveryCache creates a discovery cache with the given TTL.
// A non-positive ttl uses DefaultDiscoveryTTL.
func NewDiscoveryCache(ttl time.Duration) *DiscoveryCache {
	if ttl <= 0 {
		ttl = DefaultDiscoveryTTL
	}
	return &DiscoveryCache{
		cache: make(map[string]*cachedDiscovery),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		ttl: ttl,
	}
}

// Get returns the discovery document for an issuer, fetching on miss or
// expiry.
func (c *DiscoveryCache) Get(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	c.mu.RLock()
	cached, ok := c.cache[issuer]
	c.mu.RUnlock()

	if ok && time.Now().Before(cached.expiresAt) {
		return cached.doc, nil
	}

	doc, err := c.fetch(ctx, issuer)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[issuer] = &cachedDiscovery{doc: doc, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return doc, nil
}

func (c *DiscoveryCache) fetch(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	wellKnown := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DiscoveryError{Issuer: issuer, StatusCode: resp.StatusCode}
	}

	// Limit response size to keep a hostile issuer from exhausting memory
	const maxResponseSize = 1 << 20
	var doc DiscoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&doc); err != nil {
		return nil, &DiscoveryError{Issuer: issuer, Err: fmt.Errorf("decode document: %w", err)}
	}

	if doc.TokenEndpoint == "" || doc.AuthorizationEndpoint == "" {
		return nil, &DiscoveryError{Issuer: issuer, Err: fmt.Errorf("document is missing required endpoints")}
	}

	return &doc, nil
}

// Clear drops every cached document. Intended for tests.
func (c *DiscoveryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cachedDiscovery)
}
