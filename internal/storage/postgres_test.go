package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStorageConfig(t *testing.T) {
	t.Run("missing dsn", func(t *testing.T) {
		_, err := NewPostgresStorage(context.Background(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgres dsn is required")
	})

	t.Run("unreachable server", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewPostgresStorage(ctx, "postgres://docfront@127.0.0.1:1/docfront?sslmode=disable")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ping postgres")
	})
}
