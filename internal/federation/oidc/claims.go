package oidc

import "strings"

// Claim selectors are dotted paths into the raw claim map, e.g.
// "resource.roles" or "preferred_username". The claim tree is treated as
// JSON-like and schema-less; traversal never assumes shape beyond nested
// string-keyed maps at intermediate steps.

// StringClaim resolves a dotted path to a string claim. Returns the value
// and whether a non-empty string was found at the path.
func StringClaim(claims map[string]any, path string) (string, bool) {
	v, ok := lookup(claims, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// StringListClaim resolves a dotted path to a list of strings. A bare
// string value is returned as a one-element list. Non-string elements are
// skipped. Returns nil when the path resolves to nothing usable.
func StringListClaim(claims map[string]any, path string) []string {
	v, ok := lookup(claims, path)
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case string:
		if vv == "" {
			return nil
		}
		return []string{vv}
	case []string:
		if len(vv) == 0 {
			return nil
		}
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func lookup(claims map[string]any, path string) (any, bool) {
	if path == "" || claims == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = claims
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
