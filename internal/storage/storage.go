package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInstallationNotFound is returned when an installation doesn't exist for the owner
var ErrInstallationNotFound = errors.New("installation not found")

// ErrUserNotFound is returned when a user doesn't exist
var ErrUserNotFound = errors.New("user not found")

// Account types reported for an installation
const (
	AccountTypeUser         = "User"
	AccountTypeOrganization = "Organization"
)

// Installation is a GitHub App installation visible to one owner.
// The same installation id may appear under several owners.
type Installation struct {
	ID           int64  `json:"id"`
	OwnerID      string `json:"-"`
	AccountLogin string `json:"accountLogin"`
	AccountType  string `json:"accountType"`
	AvatarURL    string `json:"avatarUrl"`
}

// UserInfo represents a user who has signed in
type UserInfo struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// InstallationStore is the raw, unscoped installation backend. Request
// handling code never holds one; it goes through Scoper.
type InstallationStore interface {
	ListInstallationsByOwner(ctx context.Context, ownerID string) ([]Installation, error)
	GetInstallation(ctx context.Context, ownerID string, id int64) (*Installation, error)
	UpsertInstallation(ctx context.Context, inst Installation) error
	DeleteInstallation(ctx context.Context, ownerID string, id int64) error
	// ReplaceInstallations makes insts the owner's complete set
	ReplaceInstallations(ctx context.Context, ownerID string, insts []Installation) error
}

// UserStore tracks users who have signed in
type UserStore interface {
	UpsertUser(ctx context.Context, id, login string) error
	GetUser(ctx context.Context, id string) (*UserInfo, error)
}

// Storage combines all storage capabilities needed by docfront
type Storage interface {
	InstallationStore
	UserStore
	Close() error
}

// IsValidAccountType reports whether t is an account type GitHub reports
func IsValidAccountType(t string) bool {
	return t == AccountTypeUser || t == AccountTypeOrganization
}
