//go:build integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github-stars-crawler/internal/database"
	"github-stars-crawler/internal/model"
)

func setupTestDatabase(ctx context.Context, t *testing.T) (*database.Store, func()) {
	t.Helper()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	store := database.NewStore(dbpool)
	require.NoError(t, store.EnsureSchema(ctx))

	teardown := func() {
		dbpool.Close()
		require.NoError(t, pgContainer.Terminate(ctx))
	}

	return store, teardown
}

func testRepo(stars int, metadata map[string]any) model.Repository {
	return model.Repository{
		RepoID:      "R_kgDOAbc123",
		FullName:    "octocat/widget",
		Name:        "widget",
		OwnerLogin:  "octocat",
		Stars:       stars,
		URL:         "https://github.com/octocat/widget",
		Metadata:    metadata,
		LastScraped: time.Now().UTC(),
	}
}

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, teardown := setupTestDatabase(ctx, t)
	defer teardown()

	t.Run("repository upsert is idempotent", func(t *testing.T) {
		repo := testRepo(20, map[string]any{"createdAt": "2012-03-04T05:06:07Z"})

		require.NoError(t, store.UpsertRepositories(ctx, []model.Repository{repo}))
		require.NoError(t, store.UpsertRepositories(ctx, []model.Repository{repo}))

		repos, err := store.TopRepositories(ctx, 10)
		require.NoError(t, err)
		require.Len(t, repos, 1)
		assert.Equal(t, 20, repos[0].Stars)
		assert.Equal(t, "2012-03-04T05:06:07Z", repos[0].Metadata["createdAt"])
	})

	t.Run("empty metadata on re-observation preserves the stored blob", func(t *testing.T) {
		update := testRepo(25, map[string]any{})

		require.NoError(t, store.UpsertRepositories(ctx, []model.Repository{update}))

		stored, err := store.GetRepositoryByFullName(ctx, "octocat/widget")
		require.NoError(t, err)
		assert.Equal(t, 25, stored.Stars, "star count is overwritten unconditionally")
		assert.Equal(t, "2012-03-04T05:06:07Z", stored.Metadata["createdAt"], "metadata survives an empty re-observation")
	})

	t.Run("non-empty metadata merges over the stored blob", func(t *testing.T) {
		update := testRepo(30, map[string]any{"primaryLanguage": "Go"})

		require.NoError(t, store.UpsertRepositories(ctx, []model.Repository{update}))

		stored, err := store.GetRepositoryByFullName(ctx, "octocat/widget")
		require.NoError(t, err)
		assert.Equal(t, "2012-03-04T05:06:07Z", stored.Metadata["createdAt"])
		assert.Equal(t, "Go", stored.Metadata["primaryLanguage"])
	})

	t.Run("same-day history snapshot is overwritten, not duplicated", func(t *testing.T) {
		day := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
		first := model.StarSnapshot{RepoID: "R_kgDOAbc123", SnapshotAt: day, Stars: 20}
		second := model.StarSnapshot{RepoID: "R_kgDOAbc123", SnapshotAt: day, Stars: 30}

		require.NoError(t, store.UpsertStarHistory(ctx, []model.StarSnapshot{first}))
		require.NoError(t, store.UpsertStarHistory(ctx, []model.StarSnapshot{second}))

		history, err := store.StarHistory(ctx, "R_kgDOAbc123")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, 30, history[0].Stars)
	})

	t.Run("history accumulates across days in order", func(t *testing.T) {
		nextDay := model.StarSnapshot{
			RepoID:     "R_kgDOAbc123",
			SnapshotAt: time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC),
			Stars:      31,
		}

		require.NoError(t, store.UpsertStarHistory(ctx, []model.StarSnapshot{nextDay}))

		history, err := store.StarHistory(ctx, "R_kgDOAbc123")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.True(t, history[0].SnapshotAt.Before(history[1].SnapshotAt))
		assert.Equal(t, 31, history[1].Stars)
	})
}
