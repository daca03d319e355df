//go:build darwin

package scanner

import (
	"io/fs"
	"syscall"
	"time"
)

func isPlaceholder(fs.FileInfo) bool { return false }

func birthTime(info fs.FileInfo) (time.Time, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	sec, nsec := st.Birthtimespec.Unix()
	return time.Unix(sec, nsec), true
}
