package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidField is returned when UpdateField targets a field outside the editable set
	ErrInvalidField = errors.New("invalid field")
	// ErrFullTextCorrupt is returned when the full-text index is corrupt and was already rebuilt once
	ErrFullTextCorrupt = errors.New("full-text index corrupt")
)

var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	logger *log.Logger

	// mu serializes writers; readers go straight to the pool
	mu sync.Mutex

	// ftsRebuilt flips once the automatic corruption rebuild has been spent
	ftsRebuilt atomic.Bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, logger: &log.DefaultLogger}, nil
}

// SetLogger replaces the logger used for warnings about degraded operations
func (s *SQLiteStorage) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a write transaction under the writer lock
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, fn)
}

func (s *SQLiteStorage) withTxLocked(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const fileColumns = `id, file_path, file_name, file_extension, file_size, mime_type, category,
	created_date, modified_date, original_date, indexed_date, has_ocr, ocr_text,
	label, tags, caption, vision_confidence, content_hash, last_indexed_at,
	ai_source, user_tags, metadata`

// prefixedFileColumns qualifies fileColumns with a table alias
func prefixedFileColumns(alias string) string {
	parts := strings.Split(fileColumns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanFile reads one files row; extra receives any trailing columns
func scanFile(row rowScanner, extra ...interface{}) (*FileRecord, error) {
	var (
		f                                        FileRecord
		ext, mime, category                      sql.NullString
		created, modified, original, indexed     sql.NullString
		ocrText, label, tags, caption            sql.NullString
		hash, lastIndexed, aiSource, userTags, m sql.NullString
		size                                     sql.NullInt64
		hasOCR                                   sql.NullBool
		confidence                               sql.NullFloat64
	)

	dest := []interface{}{
		&f.ID, &f.Path, &f.Name, &ext, &size, &mime, &category,
		&created, &modified, &original, &indexed, &hasOCR, &ocrText,
		&label, &tags, &caption, &confidence, &hash, &lastIndexed,
		&aiSource, &userTags, &m,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	f.Extension = ext.String
	f.Size = size.Int64
	f.MimeType = mime.String
	f.Category = category.String
	f.CreatedDate = parseTime(created.String)
	f.ModifiedDate = parseTime(modified.String)
	f.OriginalDate = parseTime(original.String)
	f.IndexedDate = parseTime(indexed.String)
	f.HasOCR = hasOCR.Bool
	f.OCRText = ocrText.String
	f.Label = label.String
	f.Tags = decodeStrings(tags.String)
	f.Caption = caption.String
	f.Confidence = confidence.Float64
	f.ContentHash = hash.String
	f.LastIndexedAt = parseTime(lastIndexed.String)
	f.AISource = aiSource.String
	f.UserTags = decodeStrings(userTags.String)
	f.Metadata = decodeMetadata(m.String)
	return &f, nil
}

// collectFiles drains rows of fileColumns
func collectFiles(rows *sql.Rows) ([]*FileRecord, error) {
	var files []*FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime is lenient: anything unparseable becomes the zero time, which callers treat as missing
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
