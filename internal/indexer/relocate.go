package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/filesense/internal/storage"
)

// Relocate points an existing record at a file's new location without
// re-enriching it. oldPathOrName is looked up as a path first, then by its
// base name.
func (idx *Indexer) Relocate(ctx context.Context, oldPathOrName, newPath string) (*storage.FileRecord, error) {
	rec, err := idx.storage.GetFileByPath(ctx, oldPathOrName)
	if errors.Is(err, storage.ErrNotFound) {
		rec, err = idx.storage.GetFileByName(ctx, filepath.Base(oldPathOrName))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find moved file %s: %w", oldPathOrName, err)
	}

	if _, err := os.Stat(newPath); err != nil {
		return nil, fmt.Errorf("failed to stat new path: %w", err)
	}

	if err := idx.storage.UpdatePathOnly(ctx, rec.ID, newPath); err != nil {
		return nil, fmt.Errorf("failed to update path: %w", err)
	}
	idx.logger.Info().Str("from", rec.Path).Str("to", newPath).Msg("file relocated")
	idx.changed()

	return idx.storage.GetFileByID(ctx, rec.ID)
}
