package browserauth

import (
	"net/url"
	"strings"
)

const maxRedirectLength = 2048

// SanitizeRedirect returns hint when it is a same-origin relative path,
// fallback otherwise.
func SanitizeRedirect(hint, fallback string) string {
	if IsSafeRedirect(hint) {
		return hint
	}
	return fallback
}

// IsSafeRedirect reports whether target can only resolve to this origin:
// an absolute path with no scheme, host, or userinfo. Protocol-relative
// ("//host") and backslash forms ("/\host") that browsers treat as
// cross-origin are rejected.
func IsSafeRedirect(target string) bool {
	if target == "" || len(target) > maxRedirectLength {
		return false
	}
	if target[0] != '/' {
		return false
	}
	if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
		return false
	}
	if strings.ContainsRune(target, '\\') {
		return false
	}
	for _, r := range target {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && u.User == nil && !u.IsAbs()
}
