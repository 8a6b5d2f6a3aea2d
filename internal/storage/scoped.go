package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgellow/docfront/internal/autherr"
	"github.com/dgellow/docfront/internal/log"
)

// errScopeViolation marks a backend result that belongs to another owner
var errScopeViolation = errors.New("row outside owner scope")

// Scoper hands out owner-bound accessors. It is the only storage handle
// request handlers receive.
type Scoper struct {
	store       Storage
	onViolation func()
}

// ScoperOption configures a Scoper
type ScoperOption func(*Scoper)

// WithViolationHook registers fn to run whenever a backend result is
// discarded for containing a foreign row.
func WithViolationHook(fn func()) ScoperOption {
	return func(s *Scoper) {
		s.onViolation = fn
	}
}

// NewScoper wraps a raw backend
func NewScoper(store Storage, opts ...ScoperOption) *Scoper {
	s := &Scoper{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// For returns the accessor bound to ownerID
func (s *Scoper) For(ownerID string) *Scoped {
	return &Scoped{store: s.store, ownerID: ownerID, onViolation: s.onViolation}
}

// Scoped is a data accessor pre-bound to one owner. Every read and write is
// predicated on that owner; rows of other owners are unreachable through it.
type Scoped struct {
	store       Storage
	ownerID     string
	onViolation func()
}

// OwnerID returns the owner this accessor is bound to
func (s *Scoped) OwnerID() string {
	return s.ownerID
}

func (s *Scoped) checkOwner() error {
	if s.ownerID == "" {
		return autherr.Internal("Internal server error", fmt.Errorf("scoped accessor without owner"))
	}
	return nil
}

func (s *Scoped) violation(ctx context.Context, op string, foreign string) error {
	log.LogErrorCtx(ctx, "storage", "Backend returned row outside owner scope", map[string]any{
		"op":    op,
		"owner": s.ownerID,
		"row":   foreign,
	})
	if s.onViolation != nil {
		s.onViolation()
	}
	return autherr.Internal("Internal server error", errScopeViolation)
}

// FindAllInstallations returns the owner's installations in storage order.
// On any failure it returns no rows.
func (s *Scoped) FindAllInstallations(ctx context.Context) ([]Installation, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}

	rows, err := s.store.ListInstallationsByOwner(ctx, s.ownerID)
	if err != nil {
		return nil, autherr.Internal("Failed to load installations", err)
	}

	result := make([]Installation, 0, len(rows))
	for _, row := range rows {
		if row.OwnerID != s.ownerID {
			return nil, s.violation(ctx, "list", row.OwnerID)
		}
		result = append(result, row)
	}
	return result, nil
}

// FindInstallation returns one of the owner's installations, or
// ErrInstallationNotFound when the owner has no such installation.
func (s *Scoped) FindInstallation(ctx context.Context, id int64) (*Installation, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}

	inst, err := s.store.GetInstallation(ctx, s.ownerID, id)
	if errors.Is(err, ErrInstallationNotFound) {
		return nil, ErrInstallationNotFound
	}
	if err != nil {
		return nil, autherr.Internal("Failed to load installation", err)
	}
	if inst.OwnerID != s.ownerID {
		return nil, s.violation(ctx, "get", inst.OwnerID)
	}
	return inst, nil
}

// ReplaceInstallations makes insts the owner's complete installation set
func (s *Scoped) ReplaceInstallations(ctx context.Context, insts []Installation) error {
	if err := s.checkOwner(); err != nil {
		return err
	}

	owned := make([]Installation, len(insts))
	for i, inst := range insts {
		inst.OwnerID = s.ownerID
		owned[i] = inst
	}
	if err := s.store.ReplaceInstallations(ctx, s.ownerID, owned); err != nil {
		return autherr.Internal("Failed to sync installations", err)
	}
	return nil
}

// RemoveInstallation deletes one of the owner's installations
func (s *Scoped) RemoveInstallation(ctx context.Context, id int64) error {
	if err := s.checkOwner(); err != nil {
		return err
	}

	err := s.store.DeleteInstallation(ctx, s.ownerID, id)
	if errors.Is(err, ErrInstallationNotFound) {
		return ErrInstallationNotFound
	}
	if err != nil {
		return autherr.Internal("Failed to remove installation", err)
	}
	return nil
}

// TrackUser records that the owner signed in
func (s *Scoped) TrackUser(ctx context.Context, login string) error {
	if err := s.checkOwner(); err != nil {
		return err
	}

	if err := s.store.UpsertUser(ctx, s.ownerID, login); err != nil {
		return autherr.Internal("Failed to track user", err)
	}
	return nil
}
