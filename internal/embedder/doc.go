// Package embedder turns catalog text into vectors for semantic search.
//
// Providers:
//
//   - jina, openai: OpenAI-compatible HTTP endpoints with retry and backoff
//   - gemini: the Gemini embedding API through google.golang.org/genai
//   - local: offline feature hashing, deterministic and dependency free
//   - none: semantic search disabled; every call returns ErrUnavailable
//
// Vectors are cached in an LRU keyed by the sha256 of the input text.
//
// The indexer and searcher go through TryEmbed, which converts every failure
// into a logged miss so that a missing or flaky backend degrades search
// instead of failing it.
//
//	emb, err := embedder.New(ctx, embedder.Config{Provider: "local"})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	if e, ok := embedder.TryEmbed(ctx, emb, logger, "beach sunset photo"); ok {
//	    _ = store.UpsertEmbedding(ctx, id, e.Model, e.Vector)
//	}
package embedder
