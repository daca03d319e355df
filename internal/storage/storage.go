package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting and querying the file catalog
type Storage interface {
	// File operations
	UpsertFile(ctx context.Context, file *FileRecord) (int64, error)
	GetFileByPath(ctx context.Context, path string) (*FileRecord, error)
	GetFileByID(ctx context.Context, id int64) (*FileRecord, error)
	GetFilesByIDs(ctx context.Context, ids []int64) (map[int64]*FileRecord, error)
	GetFileByName(ctx context.Context, name string) (*FileRecord, error)
	DeleteFileByID(ctx context.Context, id int64) error
	DeleteFileByPath(ctx context.Context, path string) error
	UpdateField(ctx context.Context, id int64, field string, value any) error
	UpdatePathOnly(ctx context.Context, id int64, newPath string) error

	// Maintenance operations
	CleanupStaleEntries(ctx context.Context) (int, error)
	RebuildFullTextIndex(ctx context.Context) (int, error)
	ClearIndex(ctx context.Context) error

	// Search operations
	SearchKeyword(ctx context.Context, terms []string, filters *SearchFilters, limit int) ([]KeywordResult, error)
	SearchKeywordLike(ctx context.Context, terms []string, filters *SearchFilters, limit int) ([]KeywordResult, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, fileID int64, model string, vector []float32) error
	GetAllEmbeddings(ctx context.Context) ([]EmbeddingRecord, error)
	SearchVector(ctx context.Context, query []float32, limit int) ([]VectorResult, error)

	// History operations
	AddSearchHistory(ctx context.Context, query string, resultCount int) error
	SearchSuggestions(ctx context.Context, prefix string, limit int) ([]string, error)
	RecentSearches(ctx context.Context, limit int) ([]HistoryEntry, error)

	// Status operations
	GetStatistics(ctx context.Context) (*Statistics, error)
	Vocabulary(ctx context.Context, limit int) ([]string, error)

	Close() error
}

// FileRecord is one catalog row, keyed by a unique path.
// Enrichment fields are optional; an empty value means "not known".
type FileRecord struct {
	ID            int64
	Path          string
	Name          string
	Extension     string
	Size          int64
	MimeType      string
	Category      string
	CreatedDate   time.Time
	ModifiedDate  time.Time
	OriginalDate  time.Time
	IndexedDate   time.Time
	ContentHash   string
	LastIndexedAt time.Time

	// Enrichment
	Label      string
	Tags       []string
	Caption    string
	Confidence float64
	OCRText    string
	HasOCR     bool
	AISource   string

	// User overlay
	UserTags []string
	Metadata map[string]any
}

// HasVision reports whether the record carries vision-derived metadata
func (f *FileRecord) HasVision() bool {
	return f.Label != "" || f.Caption != ""
}

// BestDate returns the first usable date among original, modified and created
func (f *FileRecord) BestDate() (time.Time, bool) {
	for _, t := range []time.Time{f.OriginalDate, f.ModifiedDate, f.CreatedDate} {
		if !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}

// SearchFilters narrows keyword search results
type SearchFilters struct {
	Label     string
	Tags      []string
	HasOCR    bool
	HasVision bool
}

func (f *SearchFilters) empty() bool {
	return f == nil || (f.Label == "" && len(f.Tags) == 0 && !f.HasOCR && !f.HasVision)
}

// KeywordResult is a record matched by keyword search with its normalized score
type KeywordResult struct {
	Record *FileRecord
	Score  float64
}

// EmbeddingRecord is one stored vector
type EmbeddingRecord struct {
	FileID    int64
	Model     string
	Dimension int
	Vector    []float32
	UpdatedAt time.Time
}

// VectorResult is a file matched by vector similarity
type VectorResult struct {
	FileID          int64
	SimilarityScore float64
}

// HistoryEntry is one logged search
type HistoryEntry struct {
	ID          int64
	Query       string
	Timestamp   time.Time
	ResultCount int
}

// Statistics summarizes the catalog
type Statistics struct {
	TotalFiles    int
	TotalSize     int64
	ByCategory    map[string]int
	WithEmbedding int
	WithOCR       int
	WithVision    int
	SearchCount   int
	LastIndexedAt time.Time
}
