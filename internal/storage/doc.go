// Package storage provides the SQLite-backed file catalog.
//
// The catalog holds:
//   - One record per unique file path, with filesystem facts and AI enrichment
//   - A full-text mirror of the searchable columns (FTS5)
//   - One embedding vector per file
//   - A log of past searches, used for suggestions
//
// # Database Schema
//
// Tables:
//   - files: catalog rows; tags, user_tags and metadata are JSON text
//   - files_fts: FTS5 table keyed by rowid = files.id
//   - embeddings: little-endian float32 blobs, ON DELETE CASCADE from files
//   - search_history: append-only query log
//   - schema_version: applied migrations, ordered by semantic version
//
// files_fts is a plain FTS5 table rather than an external-content one. Every
// write path deletes the mirror row and inserts a fresh one inside the same
// transaction as the catalog change, so the mirror never drifts.
//
// # Merge-preserve upserts
//
// UpsertFile never lets an empty incoming enrichment value (label, caption,
// tags, OCR text, source, confidence) replace a stored one. User tags are
// owned by the user and survive re-scans. Metadata keys are merged.
//
// # Corruption
//
// If a full-text statement fails with a "malformed" or "corrupt" error, the
// mirror is dropped and rebuilt from the files table. This happens at most
// once per process; later corruption is reported as ErrFullTextCorrupt and
// keyword search degrades to substring matching.
//
// # Concurrency
//
// The database runs in WAL mode with a single pooled connection. Writers
// additionally serialize on an internal mutex, which lets CleanupStaleEntries
// stat files without blocking writes.
//
// # Build Modes
//
//	go build ./...                              # modernc.org/sqlite, pure Go
//	CGO_ENABLED=1 go build -tags "sqlite_cgo,fts5" ./...  # mattn/go-sqlite3
package storage
