package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageInstallations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.UpsertInstallation(ctx, Installation{ID: 1, OwnerID: "u1", AccountLogin: "alice", AccountType: AccountTypeUser}))
	require.NoError(t, s.UpsertInstallation(ctx, Installation{ID: 2, OwnerID: "u1", AccountLogin: "acme", AccountType: AccountTypeOrganization}))
	require.NoError(t, s.UpsertInstallation(ctx, Installation{ID: 2, OwnerID: "u2", AccountLogin: "acme", AccountType: AccountTypeOrganization}))

	t.Run("list filters by owner in insertion order", func(t *testing.T) {
		insts, err := s.ListInstallationsByOwner(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, insts, 2)
		assert.Equal(t, int64(1), insts[0].ID)
		assert.Equal(t, int64(2), insts[1].ID)
	})

	t.Run("upsert replaces existing row in place", func(t *testing.T) {
		require.NoError(t, s.UpsertInstallation(ctx, Installation{ID: 1, OwnerID: "u1", AccountLogin: "alice-renamed", AccountType: AccountTypeUser}))
		insts, err := s.ListInstallationsByOwner(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, insts, 2)
		assert.Equal(t, "alice-renamed", insts[0].AccountLogin)
	})

	t.Run("get is keyed by owner", func(t *testing.T) {
		inst, err := s.GetInstallation(ctx, "u2", 2)
		require.NoError(t, err)
		assert.Equal(t, "u2", inst.OwnerID)

		_, err = s.GetInstallation(ctx, "u2", 1)
		assert.ErrorIs(t, err, ErrInstallationNotFound)
	})

	t.Run("delete only touches the owner's row", func(t *testing.T) {
		require.NoError(t, s.DeleteInstallation(ctx, "u2", 2))
		assert.ErrorIs(t, s.DeleteInstallation(ctx, "u2", 2), ErrInstallationNotFound)

		_, err := s.GetInstallation(ctx, "u1", 2)
		assert.NoError(t, err)
	})

	t.Run("owner is required", func(t *testing.T) {
		assert.Error(t, s.UpsertInstallation(ctx, Installation{ID: 3}))
	})
}

func TestMemoryStorageReplaceInstallations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.UpsertInstallation(ctx, Installation{ID: 1, OwnerID: "u1"}))
	require.NoError(t, s.UpsertInstallation(ctx, Installation{ID: 9, OwnerID: "u2"}))

	err := s.ReplaceInstallations(ctx, "u1", []Installation{{ID: 5, OwnerID: "u1"}, {ID: 6, OwnerID: "u1"}})
	require.NoError(t, err)

	insts, err := s.ListInstallationsByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, int64(5), insts[0].ID)

	other, err := s.ListInstallationsByOwner(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	err = s.ReplaceInstallations(ctx, "u1", []Installation{{ID: 7, OwnerID: "u2"}})
	assert.Error(t, err)
}

func TestMemoryStorageUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	_, err := s.GetUser(ctx, "42")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, s.UpsertUser(ctx, "42", "octocat"))
	first, err := s.GetUser(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "octocat", first.Login)
	assert.Equal(t, first.FirstSeen, first.LastSeen)

	require.NoError(t, s.UpsertUser(ctx, "42", "octocat2"))
	second, err := s.GetUser(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "octocat2", second.Login)
	assert.Equal(t, first.FirstSeen, second.FirstSeen)
	assert.False(t, second.LastSeen.Before(first.LastSeen))
}
