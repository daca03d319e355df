package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"

	"github.com/dshills/filesense/internal/storage"
)

const hashChunkSize = 1 << 20

// Detection is the change decision for one file
type Detection struct {
	Hash     string
	Existing *storage.FileRecord
	Changed  bool
	// HashErr is set when the file could not be read; such files count as changed
	HashErr error
}

// Detect fingerprints path and compares it with the catalog. force marks the
// file as changed regardless of the comparison.
func (idx *Indexer) Detect(ctx context.Context, path string, force bool) Detection {
	var d Detection

	existing, err := idx.storage.GetFileByPath(ctx, path)
	switch {
	case err == nil:
		d.Existing = existing
	case !errors.Is(err, storage.ErrNotFound):
		idx.logger.Warn().Err(err).Str("path", path).Msg("catalog lookup failed, treating file as new")
	}

	d.Hash, d.HashErr = HashFile(ctx, path)

	switch {
	case force, d.HashErr != nil, d.Existing == nil:
		d.Changed = true
	default:
		d.Changed = d.Existing.ContentHash != d.Hash
	}
	return d
}

// HashFile returns the hex sha256 of the file content, read in 1 MiB chunks
func HashFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
