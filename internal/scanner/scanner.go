package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/dshills/filesense/internal/extract"
)

// Entry describes one file found on disk
type Entry struct {
	Path         string
	Name         string
	Extension    string
	Size         int64
	ModTime      time.Time
	CreatedTime  time.Time
	OriginalDate time.Time
	// MimeType is only set when the extension was unknown and the content was sniffed
	MimeType string
	Category string
}

// Options tune a scan
type Options struct {
	// MaxFiles stops the walk after this many entries; zero means no limit
	MaxFiles int
	// IncludeHidden keeps dot files and dot directories
	IncludeHidden bool
}

// systemFiles are OS artifacts never worth indexing, compared lowercased
var systemFiles = map[string]struct{}{
	"thumbs.db":   {},
	"desktop.ini": {},
	".ds_store":   {},
	"icon\r":      {},
}

var tempExtensions = map[string]struct{}{
	".tmp":  {},
	".temp": {},
	".bak":  {},
	".swp":  {},
	".swo":  {},
}

var exifExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".tif":  {},
	".tiff": {},
}

// Scanner walks directory trees
type Scanner struct {
	logger *log.Logger
}

// New creates a scanner
func New(logger *log.Logger) *Scanner {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Scanner{logger: logger}
}

// Scan lazily walks root and yields one Entry per indexable file. Errors for
// individual paths are yielded without stopping the walk. A cancelled context
// ends the walk with the context error.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		count := 0
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if path == root {
					return err
				}
				if !yield(Entry{Path: path}, fmt.Errorf("failed to access %s: %w", path, err)) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			name := d.Name()
			if d.IsDir() {
				if path != root && !opts.IncludeHidden && isHidden(name) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || Skip(name, opts.IncludeHidden) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				if !yield(Entry{Path: path}, fmt.Errorf("failed to stat %s: %w", path, err)) {
					return filepath.SkipAll
				}
				return nil
			}
			if isPlaceholder(info) {
				s.logger.Debug().Str("path", path).Msg("skipping cloud placeholder")
				return nil
			}

			if !yield(s.entry(path, info), nil) {
				return filepath.SkipAll
			}
			count++
			if opts.MaxFiles > 0 && count >= opts.MaxFiles {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(Entry{Path: root}, err)
		}
	}
}

// Collect drains a scan into a slice. Per-path errors are logged and skipped;
// a walk-level error is returned with whatever was collected.
func (s *Scanner) Collect(ctx context.Context, root string, opts Options) ([]Entry, error) {
	var entries []Entry
	for entry, err := range s.Scan(ctx, root, opts) {
		if err != nil {
			if entry.Path == root || ctx.Err() != nil {
				return entries, err
			}
			s.logger.Warn().Err(err).Str("path", entry.Path).Msg("scan error")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// EntryFor stats a single file and describes it the way Scan would
func (s *Scanner) EntryFor(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{Path: path}, err
	}
	if !info.Mode().IsRegular() {
		return Entry{Path: path}, fmt.Errorf("%s is not a regular file", path)
	}
	return s.entry(path, info), nil
}

// Skip reports whether a file name is excluded from indexing
func Skip(name string, includeHidden bool) bool {
	if !includeHidden && isHidden(name) {
		return true
	}
	if _, ok := systemFiles[strings.ToLower(name)]; ok {
		return true
	}
	_, ok := tempExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (s *Scanner) entry(path string, info fs.FileInfo) Entry {
	e := Entry{
		Path:      path,
		Name:      info.Name(),
		Extension: extract.Ext(path),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}
	e.CreatedTime = e.ModTime
	if bt, ok := birthTime(info); ok {
		e.CreatedTime = bt
	}

	e.Category = extract.Category(path, "")
	if e.Category == extract.CategoryMisc {
		e.MimeType = extract.DetectMIME(path)
		e.Category = extract.Category(path, e.MimeType)
	}

	if _, ok := exifExtensions[e.Extension]; ok {
		e.OriginalDate = s.originalDate(path)
	}
	return e
}

// originalDate reads the EXIF capture date. Zero means none was found.
func (s *Scanner) originalDate(path string) time.Time {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}
	}
	defer func() {
		_ = f.Close()
	}()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}
	}
	t, err := x.DateTime()
	if err != nil {
		s.logger.Debug().Err(err).Str("path", path).Msg("exif has no usable date")
		return time.Time{}
	}
	return t
}
