package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var userinfoClient = &http.Client{Timeout: 10 * time.Second}

// FetchUserinfo performs a Bearer-authenticated GET against the provider's
// userinfo endpoint and returns the claim map. Used to supplement sparse
// ID tokens; failures here are the caller's to tolerate.
func FetchUserinfo(ctx context.Context, endpoint, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := userinfoClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	const maxResponseSize = 1 << 20
	var claims map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return claims, nil
}

// MergeClaims overlays userinfo claims onto ID-token claims. The ID token
// wins on conflicts; the token is the verified artifact, userinfo only
// fills gaps.
func MergeClaims(idToken, userinfo map[string]any) map[string]any {
	if len(userinfo) == 0 {
		return idToken
	}
	merged := make(map[string]any, len(idToken)+len(userinfo))
	for k, v := range userinfo {
		merged[k] = v
	}
	for k, v := range idToken {
		merged[k] = v
	}
	return merged
}
