package searcher

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Statistics summarizes the catalog for display
type Statistics struct {
	TotalFiles     int            `json:"total_files"`
	TotalSize      int64          `json:"total_size"`
	TotalSizeHuman string         `json:"total_size_human"`
	ByCategory     map[string]int `json:"by_category"`
	WithEmbedding  int            `json:"with_embedding"`
	WithOCR        int            `json:"with_ocr"`
	WithVision     int            `json:"with_vision"`
	SearchCount    int            `json:"search_count"`
	LastIndexedAt  time.Time      `json:"last_indexed_at,omitzero"`
	LastIndexed    string         `json:"last_indexed,omitempty"`
	CachedQueries  int            `json:"cached_queries"`
}

// Statistics reads catalog counts and adds display fields
func (s *Searcher) Statistics(ctx context.Context) (*Statistics, error) {
	st, err := s.storage.GetStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	out := &Statistics{
		TotalFiles:     st.TotalFiles,
		TotalSize:      st.TotalSize,
		TotalSizeHuman: humanize.Bytes(uint64(max(st.TotalSize, 0))),
		ByCategory:     st.ByCategory,
		WithEmbedding:  st.WithEmbedding,
		WithOCR:        st.WithOCR,
		WithVision:     st.WithVision,
		SearchCount:    st.SearchCount,
		LastIndexedAt:  st.LastIndexedAt,
		CachedQueries:  s.CacheLen(),
	}
	if out.ByCategory == nil {
		out.ByCategory = map[string]int{}
	}
	if !st.LastIndexedAt.IsZero() {
		out.LastIndexed = humanize.Time(st.LastIndexedAt)
	}
	return out, nil
}
