package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeVector_RoundTrip(t *testing.T) {
	vector := []float32{0, 1.5, -2.25, math.MaxFloat32}
	blob := SerializeVector(vector)
	assert.Len(t, blob, len(vector)*4)
	assert.Equal(t, vector, DeserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"dimension mismatch", []float32{1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestNormalizeBM25(t *testing.T) {
	assert.InDelta(t, 0.0, normalizeBM25(0), 1e-9)
	assert.InDelta(t, 0.5, normalizeBM25(-1), 1e-9)
	assert.InDelta(t, 0.5, normalizeBM25(1), 1e-9)
	assert.Greater(t, normalizeBM25(-10), normalizeBM25(-1))
	assert.Less(t, normalizeBM25(-1e6), 1.0)
}

func TestSearchVector(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	ids := make([]int64, 0, 3)
	for _, p := range []string{"/x.jpg", "/y.jpg", "/z.jpg"} {
		id, err := storage.UpsertFile(ctx, sampleFile(p))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, storage.UpsertEmbedding(ctx, ids[0], "m", []float32{1, 0, 0}))
	require.NoError(t, storage.UpsertEmbedding(ctx, ids[1], "m", []float32{0.7, 0.7, 0}))
	// Different dimension: skipped rather than failing the search
	require.NoError(t, storage.UpsertEmbedding(ctx, ids[2], "other", []float32{1, 0}))

	results, err := storage.SearchVector(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[0], results[0].FileID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	assert.Equal(t, ids[1], results[1].FileID)

	limited, err := storage.SearchVector(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = storage.SearchVector(ctx, nil, 10)
	assert.Error(t, err)
}

func TestUpsertEmbedding_Replaces(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	id, err := storage.UpsertFile(ctx, sampleFile("/a.jpg"))
	require.NoError(t, err)

	require.NoError(t, storage.UpsertEmbedding(ctx, id, "old", []float32{1, 2}))
	require.NoError(t, storage.UpsertEmbedding(ctx, id, "new", []float32{3, 4, 5}))

	all, err := storage.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].Model)
	assert.Equal(t, 3, all[0].Dimension)
	assert.Equal(t, []float32{3, 4, 5}, all[0].Vector)

	assert.Error(t, storage.UpsertEmbedding(ctx, id, "m", nil))
	assert.Error(t, storage.UpsertEmbedding(ctx, 999, "m", []float32{1}), "foreign key must reject unknown file")
}
