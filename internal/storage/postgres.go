package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/docfront/internal/log"
	"github.com/lib/pq"
)

// PostgresStorage persists installations and users in PostgreSQL.
type PostgresStorage struct {
	db *sql.DB
}

// Ensure PostgresStorage implements Storage interface
var _ Storage = (*PostgresStorage)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS installations (
	owner_id      TEXT        NOT NULL,
	id            BIGINT      NOT NULL,
	account_login TEXT        NOT NULL,
	account_type  TEXT        NOT NULL,
	avatar_url    TEXT        NOT NULL DEFAULT '',
	seq           BIGSERIAL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner_id, id)
);
CREATE TABLE IF NOT EXISTS users (
	id         TEXT        PRIMARY KEY,
	login      TEXT        NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen  TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStorage opens dsn, checks connectivity and ensures the schema exists
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStorageFromDB(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.LogInfoWithFields("storage", "Connected to Postgres", nil)
	return s, nil
}

// NewPostgresStorageFromDB wraps an existing connection pool
func NewPostgresStorageFromDB(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// EnsureSchema creates the tables if they are missing
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ListInstallationsByOwner returns the owner's installations in insertion order
func (s *PostgresStorage) ListInstallationsByOwner(ctx context.Context, ownerID string) ([]Installation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, account_login, account_type, avatar_url
		FROM installations
		WHERE owner_id = $1
		ORDER BY seq
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	defer rows.Close()

	var result []Installation
	for rows.Next() {
		var inst Installation
		if err := rows.Scan(&inst.ID, &inst.OwnerID, &inst.AccountLogin, &inst.AccountType, &inst.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan installation: %w", err)
		}
		result = append(result, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate installations: %w", err)
	}
	return result, nil
}

// GetInstallation returns one installation of the owner
func (s *PostgresStorage) GetInstallation(ctx context.Context, ownerID string, id int64) (*Installation, error) {
	var inst Installation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, account_login, account_type, avatar_url
		FROM installations
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id).Scan(&inst.ID, &inst.OwnerID, &inst.AccountLogin, &inst.AccountType, &inst.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstallationNotFound
		}
		return nil, fmt.Errorf("get installation: %w", err)
	}
	return &inst, nil
}

const upsertInstallationQuery = `
	INSERT INTO installations (owner_id, id, account_login, account_type, avatar_url, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (owner_id, id) DO UPDATE SET
		account_login = EXCLUDED.account_login,
		account_type = EXCLUDED.account_type,
		avatar_url = EXCLUDED.avatar_url,
		updated_at = EXCLUDED.updated_at
`

// UpsertInstallation inserts or updates the (owner, id) row
func (s *PostgresStorage) UpsertInstallation(ctx context.Context, inst Installation) error {
	if inst.OwnerID == "" {
		return fmt.Errorf("installation owner is required")
	}

	_, err := s.db.ExecContext(ctx, upsertInstallationQuery,
		inst.OwnerID, inst.ID, inst.AccountLogin, inst.AccountType, inst.AvatarURL)
	if err != nil {
		return fmt.Errorf("upsert installation: %w", err)
	}
	return nil
}

// DeleteInstallation removes the (owner, id) row
func (s *PostgresStorage) DeleteInstallation(ctx context.Context, ownerID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete installation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete installation: %w", err)
	}
	if n == 0 {
		return ErrInstallationNotFound
	}
	return nil
}

// ReplaceInstallations upserts insts and deletes the owner's other rows in one transaction
func (s *PostgresStorage) ReplaceInstallations(ctx context.Context, ownerID string, insts []Installation) (err error) {
	ids := make([]int64, 0, len(insts))
	for _, inst := range insts {
		if inst.OwnerID != ownerID {
			return fmt.Errorf("installation %d belongs to %q, not %q", inst.ID, inst.OwnerID, ownerID)
		}
		ids = append(ids, inst.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin installation sync: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM installations WHERE owner_id = $1 AND NOT (id = ANY($2::bigint[]))`,
		ownerID, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete stale installations: %w", err)
	}
	for _, inst := range insts {
		if _, err = tx.ExecContext(ctx, upsertInstallationQuery,
			inst.OwnerID, inst.ID, inst.AccountLogin, inst.AccountType, inst.AvatarURL); err != nil {
			return fmt.Errorf("upsert installation %d: %w", inst.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit installation sync: %w", err)
	}
	return nil
}

// UpsertUser creates or updates a user's last seen time
func (s *PostgresStorage) UpsertUser(ctx context.Context, id, login string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, login, first_seen, last_seen)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			login = EXCLUDED.login,
			last_seen = EXCLUDED.last_seen
	`, id, login, now)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns the user row
func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*UserInfo, error) {
	var user UserInfo
	err := s.db.QueryRowContext(ctx, `SELECT id, login, first_seen, last_seen FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Login, &user.FirstSeen, &user.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// Close closes the connection pool
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
