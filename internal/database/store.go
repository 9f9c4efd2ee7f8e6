package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-stars-crawler/internal/model"
)

const createRepositoriesTable = `
CREATE TABLE IF NOT EXISTS repositories (
	repo_id      TEXT PRIMARY KEY,
	full_name    TEXT NOT NULL,
	name         TEXT NOT NULL,
	owner_login  TEXT NOT NULL,
	stars        INT NOT NULL,
	url          TEXT,
	metadata     JSONB NOT NULL DEFAULT '{}'::jsonb,
	last_scraped TIMESTAMPTZ NOT NULL
)`

const createStarHistoryTable = `
CREATE TABLE IF NOT EXISTS repo_star_history (
	repo_id     TEXT NOT NULL,
	snapshot_at DATE NOT NULL,
	stars       INT NOT NULL,
	PRIMARY KEY (repo_id, snapshot_at)
)`

// Star count and observation time always take the newest value; metadata is
// kept from the stored row whenever the incoming blob is empty, so a source
// that stops sending a field doesn't erase what we already learned.
const upsertRepositorySQL = `
INSERT INTO repositories (repo_id, full_name, name, owner_login, stars, url, metadata, last_scraped)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (repo_id) DO UPDATE SET
	full_name    = EXCLUDED.full_name,
	name         = EXCLUDED.name,
	owner_login  = EXCLUDED.owner_login,
	stars        = EXCLUDED.stars,
	url          = EXCLUDED.url,
	metadata     = CASE
		WHEN EXCLUDED.metadata IS NULL OR EXCLUDED.metadata = '{}'::jsonb THEN repositories.metadata
		ELSE repositories.metadata || EXCLUDED.metadata
	END,
	last_scraped = EXCLUDED.last_scraped`

const upsertStarSnapshotSQL = `
INSERT INTO repo_star_history (repo_id, snapshot_at, stars)
VALUES ($1, $2, $3)
ON CONFLICT (repo_id, snapshot_at) DO UPDATE SET
	stars = EXCLUDED.stars`

// Store wraps the connection pool with the queries the crawler and the read
// API need.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables if they do not exist yet. Safe to run on
// every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range []string{createRepositoriesTable, createStarHistoryTable} {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertRepositories writes one page of repository records in a single
// transaction. Re-running with identical input leaves the table unchanged.
func (s *Store) UpsertRepositories(ctx context.Context, repos []model.Repository) error {
	if len(repos) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range repos {
		batch.Queue(upsertRepositorySQL,
			r.RepoID, r.FullName, r.Name, r.OwnerLogin, r.Stars, r.URL, r.Metadata, r.LastScraped)
	}

	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("upsert %d repositories: %w", len(repos), err)
	}
	return nil
}

// UpsertStarHistory writes one page of daily star snapshots in a single
// transaction, overwriting any snapshot already recorded for the same day.
func (s *Store) UpsertStarHistory(ctx context.Context, snapshots []model.StarSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(upsertStarSnapshotSQL, snap.RepoID, snap.SnapshotAt, snap.Stars)
	}

	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("upsert %d star snapshots: %w", len(snapshots), err)
	}
	return nil
}

// sendBatch runs a batch inside one transaction so a page is applied in full
// or not at all.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return err
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// TopRepositories returns the limit most-starred stored repositories.
func (s *Store) TopRepositories(ctx context.Context, limit int) ([]model.Repository, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT repo_id, full_name, name, owner_login, stars, url, metadata, last_scraped
		FROM repositories
		ORDER BY stars DESC, full_name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		var r model.Repository
		if err := rows.Scan(&r.RepoID, &r.FullName, &r.Name, &r.OwnerLogin, &r.Stars, &r.URL, &r.Metadata, &r.LastScraped); err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// GetRepositoryByFullName looks a repository up by its owner/name identifier.
// Returns pgx.ErrNoRows when it is not stored.
func (s *Store) GetRepositoryByFullName(ctx context.Context, fullName string) (model.Repository, error) {
	var r model.Repository
	err := s.pool.QueryRow(ctx, `
		SELECT repo_id, full_name, name, owner_login, stars, url, metadata, last_scraped
		FROM repositories
		WHERE full_name = $1`, fullName,
	).Scan(&r.RepoID, &r.FullName, &r.Name, &r.OwnerLogin, &r.Stars, &r.URL, &r.Metadata, &r.LastScraped)
	return r, err
}

// StarHistory returns a repository's daily snapshots in chronological order.
func (s *Store) StarHistory(ctx context.Context, repoID string) ([]model.StarSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT repo_id, snapshot_at, stars
		FROM repo_star_history
		WHERE repo_id = $1
		ORDER BY snapshot_at ASC`, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []model.StarSnapshot
	for rows.Next() {
		var snap model.StarSnapshot
		if err := rows.Scan(&snap.RepoID, &snap.SnapshotAt, &snap.Stars); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
