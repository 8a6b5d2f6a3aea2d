package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-session-key-32-bytes-long!!")

func TestNewSealerKeyLength(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key must be 32 bytes")

	s, err := NewSealer(testKey)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte(`{"id":"42"}`))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "42")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"42"}`, string(opened))

	// Fresh nonce per seal
	again, err := s.Seal([]byte(`{"id":"42"}`))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestSealerRejectsTampering(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("payload"))
	require.NoError(t, err)

	t.Run("flipped byte", func(t *testing.T) {
		b := []byte(sealed)
		mid := len(b) / 2
		if b[mid] == 'A' {
			b[mid] = 'B'
		} else {
			b[mid] = 'A'
		}
		_, err := s.Open(string(b))
		assert.ErrorIs(t, err, ErrInvalidSeal)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := s.Open(sealed[:10])
		assert.ErrorIs(t, err, ErrInvalidSeal)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := s.Open("***")
		assert.ErrorIs(t, err, ErrInvalidSeal)
	})

	t.Run("other key", func(t *testing.T) {
		other, err := NewSealer([]byte("another-session-key-32-bytes-ok!"))
		require.NoError(t, err)
		_, err = other.Open(sealed)
		assert.ErrorIs(t, err, ErrInvalidSeal)
	})
}
