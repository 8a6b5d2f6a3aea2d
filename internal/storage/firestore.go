package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/docfront/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const firestoreUsersCollection = "docfront_users"

// FirestoreStorage stores installations and users in Google Cloud Firestore.
// Installation documents are keyed by owner and installation id, so the same
// GitHub installation can be listed under several owners.
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
	users      string
}

// Ensure FirestoreStorage implements Storage interface
var _ Storage = (*FirestoreStorage)(nil)

// InstallationDoc represents an installation document in Firestore
type InstallationDoc struct {
	ID           int64     `firestore:"id"`
	OwnerID      string    `firestore:"owner_id"`
	AccountLogin string    `firestore:"account_login"`
	AccountType  string    `firestore:"account_type"`
	AvatarURL    string    `firestore:"avatar_url"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

// UserDoc represents a user document in Firestore
type UserDoc struct {
	ID        string    `firestore:"id"`
	Login     string    `firestore:"login"`
	FirstSeen time.Time `firestore:"first_seen"`
	LastSeen  time.Time `firestore:"last_seen"`
}

func (d *InstallationDoc) toInstallation() Installation {
	return Installation{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		AccountLogin: d.AccountLogin,
		AccountType:  d.AccountType,
		AvatarURL:    d.AvatarURL,
	}
}

func fromInstallation(inst Installation) *InstallationDoc {
	return &InstallationDoc{
		ID:           inst.ID,
		OwnerID:      inst.OwnerID,
		AccountLogin: inst.AccountLogin,
		AccountType:  inst.AccountType,
		AvatarURL:    inst.AvatarURL,
		UpdatedAt:    time.Now(),
	}
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
		users:      firestoreUsersCollection,
	}, nil
}

func installationDocID(ownerID string, id int64) string {
	return ownerID + "__" + strconv.FormatInt(id, 10)
}

// ListInstallationsByOwner returns the owner's installations
func (s *FirestoreStorage) ListInstallationsByOwner(ctx context.Context, ownerID string) ([]Installation, error) {
	iter := s.client.Collection(s.collection).Where("owner_id", "==", ownerID).Documents(ctx)
	defer iter.Stop()

	var result []Installation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate installations: %w", err)
		}

		var instDoc InstallationDoc
		if err := doc.DataTo(&instDoc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal installation %s: %w", doc.Ref.ID, err)
		}
		result = append(result, instDoc.toInstallation())
	}
	return result, nil
}

// GetInstallation returns one installation of the owner
func (s *FirestoreStorage) GetInstallation(ctx context.Context, ownerID string, id int64) (*Installation, error) {
	doc, err := s.client.Collection(s.collection).Doc(installationDocID(ownerID, id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrInstallationNotFound
		}
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	var instDoc InstallationDoc
	if err := doc.DataTo(&instDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal installation: %w", err)
	}
	inst := instDoc.toInstallation()
	return &inst, nil
}

// UpsertInstallation writes the (owner, id) document
func (s *FirestoreStorage) UpsertInstallation(ctx context.Context, inst Installation) error {
	if inst.OwnerID == "" {
		return fmt.Errorf("installation owner is required")
	}

	_, err := s.client.Collection(s.collection).Doc(installationDocID(inst.OwnerID, inst.ID)).Set(ctx, fromInstallation(inst))
	if err != nil {
		return fmt.Errorf("failed to store installation: %w", err)
	}
	return nil
}

// DeleteInstallation removes the (owner, id) document
func (s *FirestoreStorage) DeleteInstallation(ctx context.Context, ownerID string, id int64) error {
	_, err := s.client.Collection(s.collection).Doc(installationDocID(ownerID, id)).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrInstallationNotFound
		}
		return fmt.Errorf("failed to delete installation: %w", err)
	}
	return nil
}

// ReplaceInstallations writes insts and deletes the owner's other documents
// in a single batch.
func (s *FirestoreStorage) ReplaceInstallations(ctx context.Context, ownerID string, insts []Installation) error {
	keep := make(map[string]bool, len(insts))
	batch := s.client.Batch()
	for _, inst := range insts {
		if inst.OwnerID != ownerID {
			return fmt.Errorf("installation %d belongs to %q, not %q", inst.ID, inst.OwnerID, ownerID)
		}
		docID := installationDocID(ownerID, inst.ID)
		keep[docID] = true
		batch.Set(s.client.Collection(s.collection).Doc(docID), fromInstallation(inst))
	}

	iter := s.client.Collection(s.collection).Where("owner_id", "==", ownerID).Documents(ctx)
	defer iter.Stop()

	stale := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate installations: %w", err)
		}
		if !keep[doc.Ref.ID] {
			batch.Delete(doc.Ref)
			stale++
		}
	}

	if len(insts) == 0 && stale == 0 {
		return nil
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit installation sync: %w", err)
	}

	log.LogDebugWithFields("storage", "Synced installations", map[string]any{
		"owner":   ownerID,
		"written": len(insts),
		"removed": stale,
	})
	return nil
}

// UpsertUser creates or updates a user's last seen time
func (s *FirestoreStorage) UpsertUser(ctx context.Context, id, login string) error {
	now := time.Now()

	// Try to get existing user first
	doc, err := s.client.Collection(s.users).Doc(id).Get(ctx)
	if err == nil {
		_, err = doc.Ref.Update(ctx, []firestore.Update{
			{Path: "login", Value: login},
			{Path: "last_seen", Value: now},
		})
		return err
	}

	if status.Code(err) == codes.NotFound {
		_, err = s.client.Collection(s.users).Doc(id).Set(ctx, UserDoc{
			ID:        id,
			Login:     login,
			FirstSeen: now,
			LastSeen:  now,
		})
		return err
	}

	return err
}

// GetUser returns the user document
func (s *FirestoreStorage) GetUser(ctx context.Context, id string) (*UserInfo, error) {
	doc, err := s.client.Collection(s.users).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var userDoc UserDoc
	if err := doc.DataTo(&userDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &UserInfo{
		ID:        userDoc.ID,
		Login:     userDoc.Login,
		FirstSeen: userDoc.FirstSeen,
		LastSeen:  userDoc.LastSeen,
	}, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
