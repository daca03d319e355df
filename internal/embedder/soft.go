package embedder

import (
	"context"
	"errors"

	"github.com/phuslu/log"
)

// TryEmbed embeds text but never fails the caller. Any error, including an
// unavailable backend, is logged and reported as a miss.
func TryEmbed(ctx context.Context, e Embedder, logger *log.Logger, text string) (*Embedding, bool) {
	if e == nil {
		return nil, false
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}

	emb, err := e.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	switch {
	case err == nil && emb != nil && len(emb.Vector) > 0:
		return emb, true
	case errors.Is(err, ErrEmptyText):
		return nil, false
	case errors.Is(err, ErrUnavailable):
		logger.Debug().Str("provider", e.Provider()).Msg("embedding skipped, provider unavailable")
	case err != nil:
		logger.Warn().Err(err).Str("provider", e.Provider()).Msg("embedding failed")
	}
	return nil, false
}

// Available reports whether e can produce vectors at all
func Available(e Embedder) bool {
	if e == nil {
		return false
	}
	_, none := e.(NoneProvider)
	return !none
}
