package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// AddSearchHistory appends a search to the history log
func (s *SQLiteStorage) AddSearchHistory(ctx context.Context, query string, resultCount int) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO search_history (query, timestamp, result_count) VALUES (?, ?, ?)",
			query, time.Now().UTC().Format(time.RFC3339Nano), resultCount)
		if err != nil {
			return fmt.Errorf("failed to record search: %w", err)
		}
		return nil
	})
}

// SearchSuggestions returns distinct past queries containing prefix, most recent first
func (s *SQLiteStorage) SearchSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT query, MAX(timestamp) AS last_used
		FROM search_history
		WHERE query LIKE ? ESCAPE '\' AND result_count > 0
		GROUP BY query
		ORDER BY last_used DESC
		LIMIT ?`, "%"+escapeLike(strings.TrimSpace(prefix))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var q, last string
		if err := rows.Scan(&q, &last); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// RecentSearches returns the latest history entries
func (s *SQLiteStorage) RecentSearches(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, query, timestamp, result_count FROM search_history ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e  HistoryEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &e.Query, &ts, &e.ResultCount); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetStatistics summarizes the catalog contents
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{ByCategory: make(map[string]int)}

	var lastIndexed sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(file_size), 0),
			COALESCE(SUM(CASE WHEN has_ocr = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN COALESCE(label, '') != '' OR COALESCE(caption, '') != '' THEN 1 ELSE 0 END), 0),
			MAX(last_indexed_at)
		FROM files
	`).Scan(&stats.TotalFiles, &stats.TotalSize, &stats.WithOCR, &stats.WithVision, &lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	stats.LastIndexedAt = parseTime(lastIndexed.String)

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&stats.WithEmbedding); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_history").Scan(&stats.SearchCount); err != nil {
		return nil, fmt.Errorf("failed to count searches: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT COALESCE(category, 'Misc'), COUNT(*) FROM files GROUP BY 1")
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = n
	}
	return stats, rows.Err()
}

// Vocabulary returns the most frequent words found in labels, tags and categories
func (s *SQLiteStorage) Vocabulary(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT label, tags, user_tags, category FROM files")
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	add := func(text string) {
		for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r)
		}) {
			if len(w) >= 3 {
				counts[w]++
			}
		}
	}
	for rows.Next() {
		var label, tags, userTags, category sql.NullString
		if err := rows.Scan(&label, &tags, &userTags, &category); err != nil {
			return nil, err
		}
		add(label.String)
		add(strings.Join(decodeStrings(tags.String), " "))
		add(strings.Join(decodeStrings(userTags.String), " "))
		add(category.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	return words, nil
}
