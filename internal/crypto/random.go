package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// Byte lengths of the nonces minted for OAuth state and CSRF tokens.
// Both hex-encode to 64 characters.
const (
	StateTokenBytes = 32
	CSRFTokenBytes  = 32
)

// GenerateHexToken reads byteLength bytes from the OS CSPRNG and returns
// them as a lowercase hex string of length 2*byteLength.
// A failing entropy source is not recoverable, so this panics.
func GenerateHexToken(byteLength int) string {
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto: entropy source failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// IsHexToken reports whether s looks like a token minted by
// GenerateHexToken(byteLength): exact length, lowercase hex only.
func IsHexToken(s string, byteLength int) bool {
	if len(s) != 2*byteLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Equal compares two secrets in constant time
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
