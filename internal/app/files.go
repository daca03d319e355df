package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/filesense/internal/storage"
)

const vocabularyTimeout = 30 * time.Second

// ErrNoChanges is returned for an update that sets nothing
var ErrNoChanges = errors.New("no changes requested")

// FileUpdate is a partial edit of one record. Nil fields are left unchanged.
type FileUpdate struct {
	Label    *string
	Caption  *string
	UserTags *[]string
	Metadata map[string]any
	// NewPath relocates the record without re-enrichment
	NewPath string
	// Reindex re-runs enrichment on the (possibly new) path
	Reindex bool
}

type fieldEdit struct {
	name  string
	value any
}

func (u FileUpdate) empty() bool {
	return u.Label == nil && u.Caption == nil && u.UserTags == nil &&
		u.Metadata == nil && u.NewPath == "" && !u.Reindex
}

// UpdateFile applies u to the record with the given id and returns the result
func (a *App) UpdateFile(ctx context.Context, id int64, u FileUpdate) (*storage.FileRecord, error) {
	if u.empty() {
		return nil, ErrNoChanges
	}

	rec, err := a.Storage.GetFileByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p := strings.TrimSpace(u.NewPath); p != "" && p != rec.Path {
		if rec, err = a.Indexer.Relocate(ctx, rec.Path, p); err != nil {
			return nil, err
		}
	}

	if u.Reindex {
		stats, err := a.Indexer.IndexFile(ctx, rec.Path, true)
		if err != nil {
			return nil, fmt.Errorf("failed to reindex %s: %w", rec.Path, err)
		}
		if len(stats.Errors) > 0 {
			return nil, stats.Errors[0]
		}
	}

	// user edits are applied after a reindex so they win over fresh enrichment
	var fields []fieldEdit
	if u.Label != nil {
		fields = append(fields, fieldEdit{"label", *u.Label})
	}
	if u.Caption != nil {
		fields = append(fields, fieldEdit{"caption", *u.Caption})
	}
	if u.UserTags != nil {
		fields = append(fields, fieldEdit{"user_tags", *u.UserTags})
	}
	if u.Metadata != nil {
		fields = append(fields, fieldEdit{"metadata", u.Metadata})
	}
	for _, f := range fields {
		if err := a.Storage.UpdateField(ctx, id, f.name, f.value); err != nil {
			return nil, fmt.Errorf("failed to update %s: %w", f.name, err)
		}
	}

	if len(fields) > 0 {
		a.catalogChanged()
	}
	a.Logger.Info().Int64("id", id).Int("fields", len(fields)).Bool("reindex", u.Reindex).Msg("file updated")

	return a.Storage.GetFileByID(ctx, id)
}

// DeleteFile removes one record and its embedding
func (a *App) DeleteFile(ctx context.Context, id int64) error {
	if err := a.Storage.DeleteFileByID(ctx, id); err != nil {
		return err
	}
	a.catalogChanged()
	a.Logger.Info().Int64("id", id).Msg("file removed from catalog")
	return nil
}
