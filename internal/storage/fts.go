package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// likeScore is the constant score given to substring matches
const likeScore = 0.1

const createFTSTable = `CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
    file_name, file_path, category, ocr_text, caption, tags
)`

// syncFullTextWithQuerier rewrites the mirror row for f. FTS5 rows are
// always deleted and re-inserted, never updated in place.
func syncFullTextWithQuerier(ctx context.Context, q querier, f *FileRecord) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM files_fts WHERE rowid = ?", f.ID); err != nil {
		return fmt.Errorf("failed to delete full-text row: %w", err)
	}
	return insertFullTextWithQuerier(ctx, q, f)
}

func insertFullTextWithQuerier(ctx context.Context, q querier, f *FileRecord) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO files_fts (rowid, file_name, file_path, category, ocr_text, caption, tags) VALUES (?, ?, ?, ?, ?, ?, ?)",
		f.ID, f.Name, f.Path, f.Category, f.OCRText, f.Caption, ftsTags(f))
	if err != nil {
		return fmt.Errorf("failed to insert full-text row: %w", err)
	}
	return nil
}

// isCorruption reports whether err looks like on-disk index corruption
func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "corrupt")
}

// handleFTSError rebuilds the full-text index the first time corruption is
// seen in this process. Later corruption is reported as ErrFullTextCorrupt.
// Non-corruption errors are returned unchanged.
func (s *SQLiteStorage) handleFTSError(ctx context.Context, err error) error {
	if !isCorruption(err) {
		return err
	}
	if !s.ftsRebuilt.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %v", ErrFullTextCorrupt, err)
	}

	s.logger.Warn().Err(err).Msg("full-text index corrupt, rebuilding")
	n, rerr := s.RebuildFullTextIndex(ctx)
	if rerr != nil {
		return fmt.Errorf("%w: rebuild failed: %v", ErrFullTextCorrupt, rerr)
	}
	s.logger.Info().Int("rows", n).Msg("full-text index rebuilt")
	return nil
}

// withFTSRecovery runs op, and on corruption rebuilds the index and retries once
func (s *SQLiteStorage) withFTSRecovery(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isCorruption(err) {
		return err
	}
	if herr := s.handleFTSError(ctx, err); herr != nil {
		return herr
	}
	return op()
}

// RebuildFullTextIndex drops the mirror and repopulates it from the files table
func (s *SQLiteStorage) RebuildFullTextIndex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("failed to read files for rebuild: %w", err)
	}
	files, err := collectFiles(rows)
	_ = rows.Close()
	if err != nil {
		return 0, err
	}

	err = s.withTxLocked(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS files_fts"); err != nil {
			return fmt.Errorf("failed to drop full-text table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, createFTSTable); err != nil {
			return fmt.Errorf("failed to create full-text table: %w", err)
		}
		for _, f := range files {
			if err := insertFullTextWithQuerier(ctx, tx, f); err != nil {
				return fmt.Errorf("failed to repopulate full-text row %d: %w", f.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// SearchKeyword runs a full-text match of OR-joined prefix terms ranked by BM25.
// With no terms it lists files matching the filters. It falls back to substring
// matching when the full-text query errors or finds nothing.
func (s *SQLiteStorage) SearchKeyword(ctx context.Context, terms []string, filters *SearchFilters, limit int) ([]KeywordResult, error) {
	match := buildMatchExpression(terms)
	if match == "" {
		return s.listFiltered(ctx, filters, limit)
	}

	query := "SELECT " + prefixedFileColumns("f") + `, bm25(files_fts) AS score
		FROM files_fts
		INNER JOIN files f ON f.id = files_fts.rowid
		WHERE files_fts MATCH ?`
	args := []interface{}{match}
	query, args = applyFilters(query, args, filters)
	query += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	results, err := s.queryKeyword(ctx, query, args)
	if err != nil {
		if herr := s.handleFTSError(ctx, err); herr != nil {
			s.logger.Warn().Err(herr).Msg("full-text search failed, using substring match")
		}
		return s.SearchKeywordLike(ctx, terms, filters, limit)
	}
	if len(results) == 0 {
		return s.SearchKeywordLike(ctx, terms, filters, limit)
	}
	return results, nil
}

func (s *SQLiteStorage) queryKeyword(ctx context.Context, query string, args []interface{}) ([]KeywordResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []KeywordResult
	for rows.Next() {
		var rank float64
		f, err := scanFile(rows, &rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan FTS result: %w", err)
		}
		results = append(results, KeywordResult{Record: f, Score: normalizeBM25(rank)})
	}
	return results, rows.Err()
}

// SearchKeywordLike matches any term as a substring of name, category, OCR text, caption, label or tags
func (s *SQLiteStorage) SearchKeywordLike(ctx context.Context, terms []string, filters *SearchFilters, limit int) ([]KeywordResult, error) {
	var clauses []string
	var args []interface{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		pattern := "%" + escapeLike(term) + "%"
		var cols []string
		for _, col := range []string{"file_name", "category", "ocr_text", "caption", "tags", "label", "user_tags"} {
			cols = append(cols, "f."+col+` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		clauses = append(clauses, "("+strings.Join(cols, " OR ")+")")
	}
	if len(clauses) == 0 {
		return s.listFiltered(ctx, filters, limit)
	}

	query := "SELECT " + prefixedFileColumns("f") + " FROM files f WHERE (" + strings.Join(clauses, " OR ") + ")"
	query, args = applyFilters(query, args, filters)
	query += " ORDER BY f.file_name LIMIT ?"
	args = append(args, limit)

	return s.queryScored(ctx, query, args, likeScore)
}

// listFiltered returns files matching only the structured filters, by name
func (s *SQLiteStorage) listFiltered(ctx context.Context, filters *SearchFilters, limit int) ([]KeywordResult, error) {
	query := "SELECT " + prefixedFileColumns("f") + " FROM files f WHERE 1=1"
	query, args := applyFilters(query, nil, filters)
	query += " ORDER BY f.file_name LIMIT ?"
	args = append(args, limit)
	return s.queryScored(ctx, query, args, 0)
}

func (s *SQLiteStorage) queryScored(ctx context.Context, query string, args []interface{}, score float64) ([]KeywordResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files, err := collectFiles(rows)
	if err != nil {
		return nil, err
	}
	results := make([]KeywordResult, len(files))
	for i, f := range files {
		results[i] = KeywordResult{Record: f, Score: score}
	}
	return results, nil
}

// applyFilters adds WHERE clause filters on the files alias f
func applyFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters.empty() {
		return query, args
	}

	if filters.Label != "" {
		query += ` AND (f.label = ? OR f.label LIKE ? ESCAPE '\')`
		args = append(args, filters.Label, "%"+escapeLike(filters.Label)+"%")
	}
	for _, tag := range filters.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		pattern := "%" + escapeLike(tag) + "%"
		query += ` AND (f.tags LIKE ? ESCAPE '\' OR f.user_tags LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	if filters.HasOCR {
		query += " AND f.has_ocr = 1"
	}
	if filters.HasVision {
		query += " AND (COALESCE(f.label, '') != '' OR COALESCE(f.caption, '') != '')"
	}
	return query, args
}

// buildMatchExpression turns terms into an FTS5 expression of quoted prefix
// tokens joined by OR. Quotes are stripped so user text cannot alter the syntax.
func buildMatchExpression(terms []string) string {
	var parts []string
	for _, term := range terms {
		term = strings.TrimSpace(strings.ReplaceAll(term, `"`, ""))
		if term == "" {
			continue
		}
		parts = append(parts, `"`+term+`"*`)
	}
	return strings.Join(parts, " OR ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
