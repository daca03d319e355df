package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func sampleFile(path string) *FileRecord {
	return &FileRecord{
		Path:         path,
		Name:         filepath.Base(path),
		Extension:    filepath.Ext(path),
		Size:         2048,
		MimeType:     "image/jpeg",
		Category:     "Images/Photos",
		ModifiedDate: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		ContentHash:  "abc123",
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
}

func TestUpsertFile_InsertAndUpdate(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	rec := sampleFile("/photos/beach.jpg")
	rec.Label = "beach"
	rec.Tags = []string{"sea", "sand"}

	id, err := storage.UpsertFile(ctx, rec)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, rec.ID)

	again := sampleFile("/photos/beach.jpg")
	again.Size = 4096
	id2, err := storage.UpsertFile(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, id, id2, "id must be stable across upserts")

	got, err := storage.GetFileByPath(ctx, "/photos/beach.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), got.Size)
	assert.Equal(t, "beach.jpg", got.Name)
	assert.Equal(t, ".jpg", got.Extension)
	assert.Equal(t, rec.ModifiedDate.Unix(), got.ModifiedDate.Unix())
	assert.False(t, got.IndexedDate.IsZero())
}

func TestUpsertFile_RequiresPath(t *testing.T) {
	storage := setupTestDB(t)
	_, err := storage.UpsertFile(context.Background(), &FileRecord{})
	assert.Error(t, err)
}

func TestUpsertFile_MergePreserve(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	first := sampleFile("/docs/report.pdf")
	first.Label = "quarterly report"
	first.Tags = []string{"finance", "q3"}
	first.Caption = "Q3 financial summary"
	first.Confidence = 0.9
	first.OCRText = "revenue grew"
	first.AISource = "claude"
	first.UserTags = []string{"important"}
	first.Metadata = map[string]any{"owner": "ops", "reviewed": true}
	id, err := storage.UpsertFile(ctx, first)
	require.NoError(t, err)

	// A re-scan that learned nothing new
	rescan := sampleFile("/docs/report.pdf")
	rescan.UserTags = []string{"overwritten"}
	rescan.Metadata = map[string]any{"owner": "finance", "pages": 12}
	_, err = storage.UpsertFile(ctx, rescan)
	require.NoError(t, err)

	got, err := storage.GetFileByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "quarterly report", got.Label)
	assert.Equal(t, []string{"finance", "q3"}, got.Tags)
	assert.Equal(t, "Q3 financial summary", got.Caption)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.Equal(t, "revenue grew", got.OCRText)
	assert.True(t, got.HasOCR)
	assert.Equal(t, "claude", got.AISource)
	assert.Equal(t, []string{"important"}, got.UserTags)
	assert.Equal(t, "finance", got.Metadata["owner"])
	assert.Equal(t, true, got.Metadata["reviewed"])
	assert.EqualValues(t, 12, got.Metadata["pages"])

	// New enrichment replaces old values
	enriched := sampleFile("/docs/report.pdf")
	enriched.Label = "annual report"
	_, err = storage.UpsertFile(ctx, enriched)
	require.NoError(t, err)
	got, err = storage.GetFileByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "annual report", got.Label)
	assert.Equal(t, []string{"finance", "q3"}, got.Tags)
}

func TestUpsertFile_SourceFollowsEnrichment(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	first := sampleFile("/pics/cat.jpg")
	first.Label = "cat"
	first.Caption = "A cat on a sofa"
	first.AISource = "claude"
	id, err := storage.UpsertFile(ctx, first)
	require.NoError(t, err)

	// a provider that produced nothing does not claim the kept enrichment
	empty := sampleFile("/pics/cat.jpg")
	empty.AISource = "none"
	_, err = storage.UpsertFile(ctx, empty)
	require.NoError(t, err)

	got, err := storage.GetFileByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cat", got.Label)
	assert.Equal(t, "claude", got.AISource)

	relabelled := sampleFile("/pics/cat.jpg")
	relabelled.Tags = []string{"pet"}
	relabelled.AISource = "gemini"
	_, err = storage.UpsertFile(ctx, relabelled)
	require.NoError(t, err)

	got, err = storage.GetFileByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "gemini", got.AISource)
	assert.Equal(t, []string{"pet"}, got.Tags)
	assert.Equal(t, "cat", got.Label)

	fresh := sampleFile("/pics/dog.jpg")
	fresh.AISource = "none"
	freshID, err := storage.UpsertFile(ctx, fresh)
	require.NoError(t, err)
	got, err = storage.GetFileByID(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, "none", got.AISource)
}

func TestGetFile_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.GetFileByPath(ctx, "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetFileByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetFileByName(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFilesByIDs(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	var ids []int64
	for _, p := range []string{"/a.jpg", "/b.jpg", "/c.jpg"} {
		id, err := storage.UpsertFile(ctx, sampleFile(p))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got, err := storage.GetFilesByIDs(ctx, append(ids, 999))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "/b.jpg", got[ids[1]].Path)
}

func TestGetFileByName_MostRecent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	older := sampleFile("/old/photo.jpg")
	older.LastIndexedAt = time.Now().Add(-time.Hour)
	_, err := storage.UpsertFile(ctx, older)
	require.NoError(t, err)

	newer := sampleFile("/new/photo.jpg")
	newer.LastIndexedAt = time.Now()
	_, err = storage.UpsertFile(ctx, newer)
	require.NoError(t, err)

	got, err := storage.GetFileByName(ctx, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/new/photo.jpg", got.Path)
}

func TestDeleteFile_Cascades(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	rec := sampleFile("/photos/cat.jpg")
	rec.Label = "cat"
	id, err := storage.UpsertFile(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, storage.UpsertEmbedding(ctx, id, "test", []float32{1, 0, 0}))

	require.NoError(t, storage.DeleteFileByID(ctx, id))

	_, err = storage.GetFileByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	embeddings, err := storage.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, embeddings)

	results, err := storage.SearchKeyword(ctx, []string{"cat"}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.ErrorIs(t, storage.DeleteFileByID(ctx, id), ErrNotFound)
	assert.ErrorIs(t, storage.DeleteFileByPath(ctx, "/photos/cat.jpg"), ErrNotFound)
}

func TestUpdateField(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	id, err := storage.UpsertFile(ctx, sampleFile("/photos/dog.jpg"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		field   string
		value   any
		check   func(t *testing.T, f *FileRecord)
		wantErr error
	}{
		{
			name:  "label",
			field: "label",
			value: "golden retriever",
			check: func(t *testing.T, f *FileRecord) { assert.Equal(t, "golden retriever", f.Label) },
		},
		{
			name:  "caption",
			field: "caption",
			value: "A dog in the park",
			check: func(t *testing.T, f *FileRecord) { assert.Equal(t, "A dog in the park", f.Caption) },
		},
		{
			name:  "tags from comma string",
			field: "tags",
			value: "dog, park ,pet",
			check: func(t *testing.T, f *FileRecord) { assert.Equal(t, []string{"dog", "park", "pet"}, f.Tags) },
		},
		{
			name:  "user tags from slice",
			field: "user_tags",
			value: []string{"favorite"},
			check: func(t *testing.T, f *FileRecord) { assert.Equal(t, []string{"favorite"}, f.UserTags) },
		},
		{
			name:  "metadata from json",
			field: "metadata",
			value: `{"album":"summer"}`,
			check: func(t *testing.T, f *FileRecord) { assert.Equal(t, "summer", f.Metadata["album"]) },
		},
		{
			name:    "rejects unknown field",
			field:   "file_path",
			value:   "/etc/passwd",
			wantErr: ErrInvalidField,
		},
		{
			name:    "rejects bad metadata",
			field:   "metadata",
			value:   "not json",
			wantErr: ErrInvalidField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.UpdateField(ctx, id, tt.field, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got, err := storage.GetFileByID(ctx, id)
			require.NoError(t, err)
			tt.check(t, got)
		})
	}

	// Edited label is searchable
	results, err := storage.SearchKeyword(ctx, []string{"retriever"}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Record.ID)

	assert.ErrorIs(t, storage.UpdateField(ctx, 999, "label", "x"), ErrNotFound)
}

func TestUpdatePathOnly_EvictsOccupant(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	movedID, err := storage.UpsertFile(ctx, sampleFile("/inbox/scan.pdf"))
	require.NoError(t, err)
	staleID, err := storage.UpsertFile(ctx, sampleFile("/archive/final.pdf"))
	require.NoError(t, err)
	require.NoError(t, storage.UpsertEmbedding(ctx, staleID, "test", []float32{1, 2}))

	require.NoError(t, storage.UpdatePathOnly(ctx, movedID, "/archive/final.pdf"))

	got, err := storage.GetFileByPath(ctx, "/archive/final.pdf")
	require.NoError(t, err)
	assert.Equal(t, movedID, got.ID)
	assert.Equal(t, "final.pdf", got.Name)

	_, err = storage.GetFileByID(ctx, staleID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetFileByPath(ctx, "/inbox/scan.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	embeddings, err := storage.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, embeddings)

	results, err := storage.SearchKeyword(ctx, []string{"final"}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, movedID, results[0].Record.ID)

	assert.ErrorIs(t, storage.UpdatePathOnly(ctx, 999, "/x"), ErrNotFound)
}

func TestCleanupStaleEntries(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	dir := t.TempDir()
	present := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(present, []byte("hello"), 0o600))

	_, err := storage.UpsertFile(ctx, sampleFile(present))
	require.NoError(t, err)
	_, err = storage.UpsertFile(ctx, sampleFile(filepath.Join(dir, "gone.txt")))
	require.NoError(t, err)

	removed, err := storage.CleanupStaleEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = storage.GetFileByPath(ctx, present)
	assert.NoError(t, err)
	_, err = storage.GetFileByPath(ctx, filepath.Join(dir, "gone.txt"))
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err = storage.CleanupStaleEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestClearIndex(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	id, err := storage.UpsertFile(ctx, sampleFile("/a.jpg"))
	require.NoError(t, err)
	require.NoError(t, storage.UpsertEmbedding(ctx, id, "m", []float32{1}))

	require.NoError(t, storage.ClearIndex(ctx))

	stats, err := storage.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalFiles)
	assert.Zero(t, stats.WithEmbedding)
}

func TestParseTime_Lenient(t *testing.T) {
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("yesterday-ish").IsZero())
	assert.Equal(t, 2024, parseTime("2024-03-05T10:00:00Z").Year())
	assert.Equal(t, time.March, parseTime("2024-03-05 10:00:00").Month())
	assert.Equal(t, 5, parseTime("2024-03-05").Day())
}
