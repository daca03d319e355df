//go:build !windows && !darwin

package scanner

import (
	"io/fs"
	"time"
)

func isPlaceholder(fs.FileInfo) bool { return false }

// birthTime is not exposed through os.FileInfo here; callers use ModTime
func birthTime(fs.FileInfo) (time.Time, bool) { return time.Time{}, false }
