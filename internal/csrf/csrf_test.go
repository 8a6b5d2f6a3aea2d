package csrf

import (
	"net/http"
	"testing"
	"time"

	"github.com/dgellow/docfront/internal/autherr"
	"github.com/dgellow/docfront/internal/cookie"
	"github.com/dgellow/docfront/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateMintsWhenAbsent(t *testing.T) {
	m := NewManager(72 * time.Hour)

	token, muts := m.GetOrCreate(cookie.Jar{})

	assert.Len(t, token.Value, 64)
	assert.True(t, crypto.IsHexToken(token.Value, 32))
	require.Len(t, muts, 1)
	assert.Equal(t, cookie.CSRFCookie, muts[0].Name)
	assert.Equal(t, token.Value, muts[0].Value)
	assert.False(t, muts[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, muts[0].SameSite)
	assert.Equal(t, int((72 * time.Hour).Seconds()), muts[0].MaxAge)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager(0)

	first, muts := m.GetOrCreate(cookie.Jar{})
	require.Len(t, muts, 1)

	// browser now carries the cookie
	jar := cookie.Jar{cookie.CSRFCookie: muts[0].Value}

	second, muts2 := m.GetOrCreate(jar)
	third, muts3 := m.GetOrCreate(jar)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.Empty(t, muts2, "existing token must not be rewritten")
	assert.Empty(t, muts3)
}

func TestGetOrCreateReplacesMalformed(t *testing.T) {
	m := NewManager(0)

	for _, bad := range []string{"", "short", "ZZZZ", crypto.GenerateHexToken(16)} {
		token, muts := m.GetOrCreate(cookie.Jar{cookie.CSRFCookie: bad})
		assert.NotEqual(t, bad, token.Value)
		assert.True(t, crypto.IsHexToken(token.Value, 32))
		require.Len(t, muts, 1)
	}
}

func TestRotateIgnoresExistingToken(t *testing.T) {
	m := NewManager(time.Hour)
	existing := crypto.GenerateHexToken(crypto.CSRFTokenBytes)

	token, muts := m.Rotate()

	require.Len(t, muts, 1)
	assert.Equal(t, cookie.CSRFCookie, muts[0].Name)
	assert.Equal(t, token.Value, muts[0].Value)
	assert.True(t, crypto.IsHexToken(token.Value, crypto.CSRFTokenBytes))
	assert.NotEqual(t, existing, token.Value)

	// the rotated token verifies, the old one no longer does
	jar := cookie.Jar{cookie.CSRFCookie: token.Value}
	assert.NoError(t, m.Verify(jar, token.Value))
	assert.Error(t, m.Verify(jar, existing))
}

func TestNewManagerDefaultTTL(t *testing.T) {
	_, muts := NewManager(0).GetOrCreate(cookie.Jar{})
	require.Len(t, muts, 1)
	assert.Equal(t, int(DefaultTTL.Seconds()), muts[0].MaxAge)
}

func TestVerify(t *testing.T) {
	m := NewManager(0)
	token := crypto.GenerateHexToken(32)
	other := crypto.GenerateHexToken(32)

	tests := []struct {
		name    string
		jar     cookie.Jar
		header  string
		wantErr bool
	}{
		{"match", cookie.Jar{cookie.CSRFCookie: token}, token, false},
		{"no cookie", cookie.Jar{}, token, true},
		{"no header", cookie.Jar{cookie.CSRFCookie: token}, "", true},
		{"mismatch", cookie.Jar{cookie.CSRFCookie: token}, other, true},
		{"malformed cookie echoed", cookie.Jar{cookie.CSRFCookie: "abc"}, "abc", true},
		{"case differs", cookie.Jar{cookie.CSRFCookie: token}, "X" + token[1:], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Verify(tt.jar, tt.header)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, autherr.KindInvalidCSRF, autherr.KindOf(err))
		})
	}
}

func TestClear(t *testing.T) {
	muts := NewManager(0).Clear()
	require.Len(t, muts, 1)
	assert.Equal(t, cookie.CSRFCookie, muts[0].Name)
	assert.Equal(t, -1, muts[0].MaxAge)
}

func TestIsSafeMethod(t *testing.T) {
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace} {
		assert.True(t, IsSafeMethod(m), m)
	}
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		assert.False(t, IsSafeMethod(m), m)
	}
}
