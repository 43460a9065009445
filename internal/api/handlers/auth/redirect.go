package auth

import (
	"net/url"
	"strings"
)

// CompletionPath is the internal page a popup-mode login lands on. The
// parent window polls it (or listens for postMessage) and then navigates
// itself to the carried destination.
const CompletionPath = "/login/complete"

// SafeRedirectTarget re-validates a stored redirect destination as a
// same-origin relative path. Anything else, including protocol-relative
// and backslash forms, collapses to "/".
func SafeRedirectTarget(raw string) string {
	if raw == "" {
		return "/"
	}
	if !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	if strings.ContainsAny(raw, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return raw
}

// CompletionRedirect builds the popup completion URL carrying the final
// destination. target must already be validated.
func CompletionRedirect(target string) string {
	return CompletionPath + "?redirect=" + url.QueryEscape(target)
}
