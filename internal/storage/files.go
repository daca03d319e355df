package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// cleanupBatchSize bounds how many rows are statted and deleted per transaction
const cleanupBatchSize = 500

// mergeRecord applies merge-preserve semantics: an empty incoming enrichment
// value never replaces a stored one, user tags survive re-scans and metadata
// keys are merged with incoming keys winning.
func mergeRecord(existing, incoming *FileRecord) *FileRecord {
	merged := *incoming
	if existing == nil {
		merged.Tags = normalizeTags(incoming.Tags)
		merged.UserTags = normalizeTags(incoming.UserTags)
		merged.HasOCR = incoming.HasOCR || incoming.OCRText != ""
		return &merged
	}

	merged.ID = existing.ID
	if merged.Label == "" {
		merged.Label = existing.Label
	}
	if merged.Caption == "" {
		merged.Caption = existing.Caption
	}
	if len(normalizeTags(merged.Tags)) == 0 {
		merged.Tags = existing.Tags
	}
	if merged.OCRText == "" {
		merged.OCRText = existing.OCRText
	}
	// the source names whoever produced the label, caption and tags kept
	if merged.AISource == "" || (!hasEnrichment(incoming) && existing.AISource != "") {
		merged.AISource = existing.AISource
	}
	if merged.Confidence == 0 {
		merged.Confidence = existing.Confidence
	}
	if merged.OriginalDate.IsZero() {
		merged.OriginalDate = existing.OriginalDate
	}
	if merged.CreatedDate.IsZero() {
		merged.CreatedDate = existing.CreatedDate
	}
	if len(existing.UserTags) > 0 {
		merged.UserTags = existing.UserTags
	}
	merged.Metadata = mergeMetadata(existing.Metadata, incoming.Metadata)
	merged.HasOCR = incoming.HasOCR || merged.OCRText != ""
	merged.Tags = normalizeTags(merged.Tags)
	merged.UserTags = normalizeTags(merged.UserTags)
	return &merged
}

func hasEnrichment(f *FileRecord) bool {
	return f.Label != "" || f.Caption != "" || len(normalizeTags(f.Tags)) > 0
}

// UpsertFile inserts or updates a record by path and returns its stable id.
// The full-text row is rewritten in the same transaction; a corrupt full-text
// index does not block the catalog write.
func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *FileRecord) (int64, error) {
	if file == nil || file.Path == "" {
		return 0, fmt.Errorf("file path is required")
	}
	if file.Name == "" {
		file.Name = filepath.Base(file.Path)
	}
	if file.IndexedDate.IsZero() {
		file.IndexedDate = time.Now()
	}

	id, ftsErr, err := s.upsertFileTx(ctx, file, true)
	if err != nil {
		return 0, err
	}
	if ftsErr != nil {
		if !isCorruption(ftsErr) {
			s.logger.Warn().Err(ftsErr).Str("path", file.Path).Msg("full-text sync failed")
		} else {
			// The aborted transaction took the catalog row with it; write it
			// without the mirror, then rebuild the mirror from the table.
			id, _, err = s.upsertFileTx(ctx, file, false)
			if err != nil {
				return 0, err
			}
			if herr := s.handleFTSError(ctx, ftsErr); herr != nil {
				s.logger.Error().Err(herr).Str("path", file.Path).Msg("full-text index unavailable")
			}
		}
	}

	file.ID = id
	return id, nil
}

func (s *SQLiteStorage) upsertFileTx(ctx context.Context, file *FileRecord, withFTS bool) (id int64, ftsErr error, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	existing, err := s.getFileByPathWithQuerier(ctx, tx, file.Path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		_ = tx.Rollback()
		return 0, nil, err
	}

	merged := mergeRecord(existing, file)
	if existing == nil {
		id, err = s.insertFileWithQuerier(ctx, tx, merged)
	} else {
		id = existing.ID
		err = s.updateFileWithQuerier(ctx, tx, merged)
	}
	if err != nil {
		_ = tx.Rollback()
		return 0, nil, err
	}
	merged.ID = id

	if withFTS {
		ftsErr = syncFullTextWithQuerier(ctx, tx, merged)
		if ftsErr != nil && isCorruption(ftsErr) {
			_ = tx.Rollback()
			return 0, ftsErr, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit file upsert: %w", err)
	}
	return id, ftsErr, nil
}

func (s *SQLiteStorage) insertFileWithQuerier(ctx context.Context, q querier, f *FileRecord) (int64, error) {
	query := `
		INSERT INTO files (
			file_path, file_name, file_extension, file_size, mime_type, category,
			created_date, modified_date, original_date, indexed_date, has_ocr, ocr_text,
			label, tags, caption, vision_confidence, content_hash, last_indexed_at,
			ai_source, user_tags, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query, fileArgs(f)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read file id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStorage) updateFileWithQuerier(ctx context.Context, q querier, f *FileRecord) error {
	query := `
		UPDATE files SET
			file_path = ?, file_name = ?, file_extension = ?, file_size = ?, mime_type = ?, category = ?,
			created_date = ?, modified_date = ?, original_date = ?, indexed_date = ?, has_ocr = ?, ocr_text = ?,
			label = ?, tags = ?, caption = ?, vision_confidence = ?, content_hash = ?, last_indexed_at = ?,
			ai_source = ?, user_tags = ?, metadata = ?
		WHERE id = ?
	`
	args := append(fileArgs(f), f.ID)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	return nil
}

func fileArgs(f *FileRecord) []interface{} {
	return []interface{}{
		f.Path, f.Name, nullString(strings.ToLower(f.Extension)), f.Size, nullString(f.MimeType), nullString(f.Category),
		formatTime(f.CreatedDate), formatTime(f.ModifiedDate), formatTime(f.OriginalDate), formatTime(f.IndexedDate),
		f.HasOCR, nullString(f.OCRText),
		nullString(f.Label), encodeStrings(f.Tags), nullString(f.Caption), f.Confidence,
		nullString(f.ContentHash), formatTime(f.LastIndexedAt),
		nullString(f.AISource), encodeStrings(f.UserTags), encodeMetadata(f.Metadata),
	}
}

func (s *SQLiteStorage) getFileByPathWithQuerier(ctx context.Context, q querier, path string) (*FileRecord, error) {
	row := q.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE file_path = ?", path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetFileByPath returns the record stored for path
func (s *SQLiteStorage) GetFileByPath(ctx context.Context, path string) (*FileRecord, error) {
	return s.getFileByPathWithQuerier(ctx, s.db, path)
}

func (s *SQLiteStorage) getFileByIDWithQuerier(ctx context.Context, q querier, id int64) (*FileRecord, error) {
	row := q.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE id = ?", id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetFileByID returns the record with the given id
func (s *SQLiteStorage) GetFileByID(ctx context.Context, id int64) (*FileRecord, error) {
	return s.getFileByIDWithQuerier(ctx, s.db, id)
}

// GetFilesByIDs loads many records at once; missing ids are simply absent from the map
func (s *SQLiteStorage) GetFilesByIDs(ctx context.Context, ids []int64) (map[int64]*FileRecord, error) {
	out := make(map[int64]*FileRecord, len(ids))
	for start := 0; start < len(ids); start += cleanupBatchSize {
		end := min(start+cleanupBatchSize, len(ids))
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]interface{}, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to load files: %w", err)
		}
		files, err := collectFiles(rows)
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			out[f.ID] = f
		}
	}
	return out, nil
}

// GetFileByName returns the most recently indexed record with the given base name.
// Used to recover records for files that were moved outside the app.
func (s *SQLiteStorage) GetFileByName(ctx context.Context, name string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE file_name = ? ORDER BY last_indexed_at DESC, id DESC LIMIT 1", name)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file by name: %w", err)
	}
	return f, nil
}

// deleteFileWithQuerier removes a record together with its mirror and vector rows
func deleteFileWithQuerier(ctx context.Context, q querier, id int64) (bool, error) {
	if _, err := q.ExecContext(ctx, "DELETE FROM files_fts WHERE rowid = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete full-text row: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM embeddings WHERE file_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete embedding: %w", err)
	}
	result, err := q.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteFileByID removes a record; deletes cascade to the full-text and vector rows
func (s *SQLiteStorage) DeleteFileByID(ctx context.Context, id int64) error {
	return s.withFTSRecovery(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			deleted, err := deleteFileWithQuerier(ctx, tx, id)
			if err != nil {
				return err
			}
			if !deleted {
				return ErrNotFound
			}
			return nil
		})
	})
}

// DeleteFileByPath removes the record stored for path
func (s *SQLiteStorage) DeleteFileByPath(ctx context.Context, path string) error {
	return s.withFTSRecovery(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			f, err := s.getFileByPathWithQuerier(ctx, tx, path)
			if err != nil {
				return err
			}
			_, err = deleteFileWithQuerier(ctx, tx, f.ID)
			return err
		})
	})
}

// EditableFields lists the fields UpdateField accepts
var EditableFields = []string{"label", "caption", "tags", "user_tags", "metadata"}

// UpdateField sets one user-editable field and refreshes the full-text row
func (s *SQLiteStorage) UpdateField(ctx context.Context, id int64, field string, value any) error {
	var (
		column string
		arg    interface{}
	)
	switch field {
	case "label", "caption":
		column, arg = field, nullString(strings.TrimSpace(cast.ToString(value)))
	case "tags", "user_tags":
		column, arg = field, encodeStrings(toStringList(value))
	case "metadata":
		m, err := toMetadata(value)
		if err != nil {
			return err
		}
		column, arg = field, encodeMetadata(m)
	default:
		return fmt.Errorf("%w: %q (allowed: %s)", ErrInvalidField, field, strings.Join(EditableFields, ", "))
	}

	return s.withFTSRecovery(ctx, func() error {
		return s.updateColumn(ctx, id, field, column, arg)
	})
}

func (s *SQLiteStorage) updateColumn(ctx context.Context, id int64, field, column string, arg interface{}) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "UPDATE files SET "+column+" = ? WHERE id = ?", arg, id)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", field, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		f, err := s.getFileByIDWithQuerier(ctx, tx, id)
		if err != nil {
			return err
		}
		return syncFullTextWithQuerier(ctx, tx, f)
	})
}

func toStringList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return strings.Split(v, ",")
	default:
		return cast.ToStringSlice(v)
	}
}

func toMetadata(value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		m := decodeMetadata(v)
		if m == nil {
			return nil, fmt.Errorf("%w: metadata must be a JSON object", ErrInvalidField)
		}
		return m, nil
	default:
		m, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidField, err)
		}
		return m, nil
	}
}

// UpdatePathOnly moves a record to newPath. Any other record already stored
// at newPath is evicted in the same transaction.
func (s *SQLiteStorage) UpdatePathOnly(ctx context.Context, id int64, newPath string) error {
	if newPath == "" {
		return fmt.Errorf("new path is required")
	}
	return s.withFTSRecovery(ctx, func() error {
		return s.movePath(ctx, id, newPath)
	})
}

func (s *SQLiteStorage) movePath(ctx context.Context, id int64, newPath string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getFileByIDWithQuerier(ctx, tx, id); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, "SELECT id FROM files WHERE file_path = ? AND id != ?", newPath, id)
		if err != nil {
			return fmt.Errorf("failed to find path occupants: %w", err)
		}
		var occupants []int64
		for rows.Next() {
			var other int64
			if err := rows.Scan(&other); err != nil {
				_ = rows.Close()
				return err
			}
			occupants = append(occupants, other)
		}
		_ = rows.Close()
		for _, other := range occupants {
			if _, err := deleteFileWithQuerier(ctx, tx, other); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, "UPDATE files SET file_path = ?, file_name = ?, file_extension = ? WHERE id = ?",
			newPath, filepath.Base(newPath), nullString(strings.ToLower(filepath.Ext(newPath))), id)
		if err != nil {
			return fmt.Errorf("failed to update path: %w", err)
		}

		f, err := s.getFileByIDWithQuerier(ctx, tx, id)
		if err != nil {
			return err
		}
		return syncFullTextWithQuerier(ctx, tx, f)
	})
}

type pathRow struct {
	id   int64
	path string
}

// CleanupStaleEntries removes records whose file no longer exists on disk.
// Files are statted outside the writer lock, one page at a time.
func (s *SQLiteStorage) CleanupStaleEntries(ctx context.Context) (int, error) {
	removed := 0
	var lastID int64
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		batch, err := s.pathPage(ctx, lastID, cleanupBatchSize)
		if err != nil {
			return removed, err
		}
		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].id

		var stale []int64
		for _, r := range batch {
			if _, err := os.Stat(r.path); errors.Is(err, fs.ErrNotExist) {
				stale = append(stale, r.id)
			}
		}

		if len(stale) > 0 {
			err := s.withFTSRecovery(ctx, func() error {
				return s.withTx(ctx, func(tx *sql.Tx) error {
					for _, id := range stale {
						if _, err := deleteFileWithQuerier(ctx, tx, id); err != nil {
							return err
						}
					}
					return nil
				})
			})
			if err != nil {
				return removed, fmt.Errorf("failed to delete stale entries: %w", err)
			}
			removed += len(stale)
		}

		if len(batch) < cleanupBatchSize {
			break
		}
	}
	return removed, nil
}

func (s *SQLiteStorage) pathPage(ctx context.Context, afterID int64, limit int) ([]pathRow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, file_path FROM files WHERE id > ? ORDER BY id LIMIT ?", afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to page file paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var page []pathRow
	for rows.Next() {
		var r pathRow
		if err := rows.Scan(&r.id, &r.path); err != nil {
			return nil, err
		}
		page = append(page, r)
	}
	return page, rows.Err()
}

// ClearIndex removes every file, full-text row and vector
func (s *SQLiteStorage) ClearIndex(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{"DELETE FROM embeddings", "DELETE FROM files_fts", "DELETE FROM files"} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to clear index: %w", err)
			}
		}
		return nil
	})
}
