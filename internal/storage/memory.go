package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Ensure MemoryStorage implements required interfaces
var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps everything in process memory. Installations are one
// flat table filtered by owner on read, like the persistent backends.
type MemoryStorage struct {
	installations      []Installation
	installationsMutex sync.RWMutex
	users              map[string]*UserInfo // map[id] = UserInfo
	usersMutex         sync.RWMutex
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users: make(map[string]*UserInfo),
	}
}

// ListInstallationsByOwner returns the owner's installations in insertion order
func (s *MemoryStorage) ListInstallationsByOwner(_ context.Context, ownerID string) ([]Installation, error) {
	s.installationsMutex.RLock()
	defer s.installationsMutex.RUnlock()

	var result []Installation
	for _, inst := range s.installations {
		if inst.OwnerID == ownerID {
			result = append(result, inst)
		}
	}
	return result, nil
}

// GetInstallation returns one installation of the owner
func (s *MemoryStorage) GetInstallation(_ context.Context, ownerID string, id int64) (*Installation, error) {
	s.installationsMutex.RLock()
	defer s.installationsMutex.RUnlock()

	for _, inst := range s.installations {
		if inst.OwnerID == ownerID && inst.ID == id {
			found := inst
			return &found, nil
		}
	}
	return nil, ErrInstallationNotFound
}

// UpsertInstallation inserts or replaces the (owner, id) row
func (s *MemoryStorage) UpsertInstallation(_ context.Context, inst Installation) error {
	if inst.OwnerID == "" {
		return fmt.Errorf("installation owner is required")
	}

	s.installationsMutex.Lock()
	defer s.installationsMutex.Unlock()

	for i, existing := range s.installations {
		if existing.OwnerID == inst.OwnerID && existing.ID == inst.ID {
			s.installations[i] = inst
			return nil
		}
	}
	s.installations = append(s.installations, inst)
	return nil
}

// DeleteInstallation removes the (owner, id) row
func (s *MemoryStorage) DeleteInstallation(_ context.Context, ownerID string, id int64) error {
	s.installationsMutex.Lock()
	defer s.installationsMutex.Unlock()

	for i, existing := range s.installations {
		if existing.OwnerID == ownerID && existing.ID == id {
			s.installations = append(s.installations[:i], s.installations[i+1:]...)
			return nil
		}
	}
	return ErrInstallationNotFound
}

// ReplaceInstallations drops the owner's rows and appends insts
func (s *MemoryStorage) ReplaceInstallations(_ context.Context, ownerID string, insts []Installation) error {
	for _, inst := range insts {
		if inst.OwnerID != ownerID {
			return fmt.Errorf("installation %d belongs to %q, not %q", inst.ID, inst.OwnerID, ownerID)
		}
	}

	s.installationsMutex.Lock()
	defer s.installationsMutex.Unlock()

	kept := s.installations[:0:0]
	for _, existing := range s.installations {
		if existing.OwnerID != ownerID {
			kept = append(kept, existing)
		}
	}
	s.installations = append(kept, insts...)
	return nil
}

// UpsertUser creates or updates a user's last seen time
func (s *MemoryStorage) UpsertUser(_ context.Context, id, login string) error {
	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	now := time.Now()
	if user, exists := s.users[id]; exists {
		user.Login = login
		user.LastSeen = now
	} else {
		s.users[id] = &UserInfo{
			ID:        id,
			Login:     login,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	return nil
}

// GetUser returns a copy of the user record
func (s *MemoryStorage) GetUser(_ context.Context, id string) (*UserInfo, error) {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

// Close is a no-op for memory storage
func (s *MemoryStorage) Close() error {
	return nil
}
