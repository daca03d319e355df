//go:build !sqlite_cgo

package storage

// Default build. The pure Go driver needs no C toolchain and includes FTS5.
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
