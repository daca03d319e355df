//go:build sqlite_cgo

package storage

// Compiled with the sqlite_cgo tag. Uses the CGO driver, which only ships
// FTS5 when built with the fts5 tag as well:
//   CGO_ENABLED=1 go build -tags "sqlite_cgo,fts5" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
