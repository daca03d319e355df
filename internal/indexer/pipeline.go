package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dshills/filesense/internal/embedder"
	"github.com/dshills/filesense/internal/enricher"
	"github.com/dshills/filesense/internal/extract"
	"github.com/dshills/filesense/internal/scanner"
	"github.com/dshills/filesense/internal/storage"
)

// processFile runs one file through the pipeline. It never returns an error;
// the outcome carries the classification instead.
func (idx *Indexer) processFile(ctx context.Context, entry scanner.Entry, force bool) outcome {
	if err := idx.ctrl.waitIfPaused(ctx); err != nil {
		return cancelled(err)
	}

	info, err := os.Stat(entry.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return outcome{status: statusSkipped, kind: KindNotFound, err: err}
		}
		return failed(KindReadFailure, err)
	}
	if info.IsDir() {
		return failed(KindReadFailure, fmt.Errorf("%s is a directory", entry.Path))
	}

	det := idx.Detect(ctx, entry.Path, force)
	if !det.Changed {
		return outcome{status: statusSkipped}
	}
	if det.HashErr != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		return failed(KindReadFailure, det.HashErr)
	}

	// last checkpoint before the expensive call
	if err := idx.ctrl.waitIfPaused(ctx); err != nil {
		return cancelled(err)
	}

	in, docText, err := idx.buildInput(ctx, entry, info)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		return failed(KindReadFailure, err)
	}

	taskCtx, cancel := context.WithTimeout(ctx, idx.cfg.TaskTimeout)
	res, err := idx.provider.Enrich(taskCtx, in)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		// the catalog stays untouched so the file is retried on the next scan
		return failed(KindProviderFailure, err)
	}

	rec := buildRecord(entry, info, in.MimeType, det.Hash, res, docText)

	// the unit is finished even if the run is cancelled meanwhile
	writeCtx := context.WithoutCancel(ctx)
	id, err := idx.storage.UpsertFile(writeCtx, rec)
	if err != nil {
		return failed(KindStorageFailure, fmt.Errorf("failed to store file: %w", err))
	}

	// embed what the catalog now holds, including preserved enrichment
	stored, err := idx.storage.GetFileByID(writeCtx, id)
	if err != nil {
		idx.logger.Warn().Err(err).Str("path", rec.Path).Msg("failed to reload stored file")
		stored = rec
	}
	idx.embed(writeCtx, id, stored)

	return outcome{status: statusIndexed, billable: extract.IsMedia(entry.Path)}
}

// buildInput gathers what the provider gets to see. It also returns the
// locally extracted document text.
func (idx *Indexer) buildInput(ctx context.Context, entry scanner.Entry, info fs.FileInfo) (enricher.Input, string, error) {
	mimeType := entry.MimeType
	if mimeType == "" {
		mimeType = extract.DetectMIME(entry.Path)
	}
	category := entry.Category
	if category == "" {
		category = extract.Category(entry.Path, mimeType)
	}

	in := enricher.Input{
		Path:      entry.Path,
		Name:      info.Name(),
		Extension: extract.Ext(entry.Path),
		MimeType:  mimeType,
		Category:  category,
	}

	if mediaType, ok := extract.VisionMediaType(entry.Path); ok {
		if info.Size() > idx.cfg.MaxImageBytes {
			idx.logger.Debug().Str("path", entry.Path).Int64("size", info.Size()).Msg("image too large to send, using name only")
			return in, "", nil
		}
		data, err := os.ReadFile(entry.Path)
		if err != nil {
			return in, "", fmt.Errorf("failed to read image: %w", err)
		}
		in.Image = data
		in.ImageMediaType = mediaType
		return in, "", nil
	}

	if extract.IsMedia(entry.Path) {
		return in, "", nil
	}

	text, err := idx.extractor.Text(ctx, entry.Path, idx.cfg.MaxSnippetChars)
	switch {
	case err == nil:
		in.Text = text
	case errors.Is(err, extract.ErrUnsupported):
	default:
		return in, "", fmt.Errorf("failed to extract text: %w", err)
	}
	return in, in.Text, nil
}

func buildRecord(entry scanner.Entry, info fs.FileInfo, mimeType, hash string, res *enricher.Result, docText string) *storage.FileRecord {
	now := time.Now()
	rec := &storage.FileRecord{
		Path:          entry.Path,
		Name:          info.Name(),
		Extension:     extract.Ext(entry.Path),
		Size:          info.Size(),
		MimeType:      mimeType,
		Category:      extract.Category(entry.Path, mimeType),
		CreatedDate:   entry.CreatedTime,
		ModifiedDate:  info.ModTime(),
		OriginalDate:  entry.OriginalDate,
		IndexedDate:   now,
		ContentHash:   hash,
		LastIndexedAt: now,
	}
	if rec.CreatedDate.IsZero() {
		rec.CreatedDate = rec.ModifiedDate
	}

	ocr := docText
	if res != nil {
		rec.Label = res.Label
		rec.Tags = res.Tags
		rec.Caption = res.Caption
		rec.Confidence = res.Confidence
		rec.AISource = res.Source
		if res.ExtractedText != "" {
			ocr = res.ExtractedText
		}
	}
	rec.OCRText = extract.Truncate(strings.TrimSpace(ocr), MaxOCRChars)
	rec.HasOCR = rec.OCRText != ""
	return rec
}

// embed stores a vector for the record when an embedder is available.
// Failures are logged and never fail the file.
func (idx *Indexer) embed(ctx context.Context, fileID int64, rec *storage.FileRecord) {
	emb, ok := embedder.TryEmbed(ctx, idx.embedder, idx.logger, embeddingText(rec))
	if !ok {
		return
	}
	if err := idx.storage.UpsertEmbedding(ctx, fileID, emb.Model, emb.Vector); err != nil {
		idx.logger.Warn().Err(err).Str("path", rec.Path).Msg("failed to store embedding")
	}
}

// embeddingText is what a file is embedded as: name, label, tags, caption, ocr
func embeddingText(rec *storage.FileRecord) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{rec.Name, rec.Label, strings.Join(rec.Tags, " "), rec.Caption, rec.OCRText} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return extract.Truncate(strings.Join(parts, " "), MaxEmbedChars)
}
