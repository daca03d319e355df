package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchHistoryAndSuggestions(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.AddSearchHistory(ctx, "beach photos", 4))
	require.NoError(t, storage.AddSearchHistory(ctx, "tax documents", 2))
	require.NoError(t, storage.AddSearchHistory(ctx, "beach photos", 5))
	require.NoError(t, storage.AddSearchHistory(ctx, "beach nothing", 0))
	require.NoError(t, storage.AddSearchHistory(ctx, "   ", 1))

	suggestions, err := storage.SearchSuggestions(ctx, "bea", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"beach photos"}, suggestions)

	recent, err := storage.RecentSearches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, "beach nothing", recent[0].Query)
	assert.False(t, recent[0].Timestamp.IsZero())
}

func TestGetStatistics(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedSearchFixtures(t, storage)

	all, err := storage.SearchKeyword(ctx, nil, nil, 10)
	require.NoError(t, err)
	require.NoError(t, storage.UpsertEmbedding(ctx, all[0].Record.ID, "m", []float32{1}))
	require.NoError(t, storage.AddSearchHistory(ctx, "q", 1))

	stats, err := storage.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalFiles)
	assert.Equal(t, 1, stats.WithEmbedding)
	assert.Equal(t, 2, stats.WithOCR)
	assert.Equal(t, 2, stats.WithVision)
	assert.Equal(t, 1, stats.SearchCount)
	assert.Equal(t, 1, stats.ByCategory["Audio/Music"])
}

func TestVocabulary(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedSearchFixtures(t, storage)

	words, err := storage.Vocabulary(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, words, "beach")
	assert.Contains(t, words, "invoice")
	assert.Contains(t, words, "images")
	assert.NotContains(t, words, "q3")

	limited, err := storage.Vocabulary(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	// "images" appears in two categories
	assert.Equal(t, "images", limited[0])
}

func TestMigrations_RollbackAndReapply(t *testing.T) {
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))

	v, err := currentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Applying twice is a no-op
	require.NoError(t, ApplyMigrations(ctx, db))

	require.NoError(t, RollbackMigration(ctx, db))
	v, err = currentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='search_history'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, ApplyMigrations(ctx, db))
	v, err = currentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}
