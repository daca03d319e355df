// Package searcher implements hybrid file search over the catalog, combining
// BM25 keyword matching with semantic similarity or an optional reranker.
//
// # Basic Usage
//
//	s := searcher.New(searcher.Deps{
//	    Storage:  store,
//	    Embedder: emb,
//	    Parser:   queryparser.New(queryparser.Options{}),
//	}, searcher.Config{})
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query: "beach photos from last summer",
//	    Limit: 20,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%s (%.2f, %s)\n", r.Path, r.RelevanceScore, r.Source)
//	}
//
// # Ranking
//
// Scores share one scale of roughly 0 to 10 and above:
//
//   - Keyword: normalized BM25 times KeywordWeight (default 10)
//   - Rerank: the i-th of n reranked ids scores 10 + (n-1-i)
//   - Semantic: cosine similarity times 10
//
// Results from the paths are merged by id keeping the highest score, then
// sorted descending with ties broken by name. RelevanceScore is the score
// divided by 10, capped at 1.
//
// A search without free-text terms or label and tag filters is filter-only:
// it reads a pool of up to 500 catalog rows and skips the semantic step.
//
// # Filters
//
// Extension and date filters are applied after merging. The date filter uses
// the EXIF original date, then the modified date, then the created date;
// records with no date at all are kept.
//
// # Caching
//
// Responses are cached in an LRU keyed on the normalized request with a TTL
// (default 5 minutes). InvalidateCache must be called after anything changes
// the catalog.
package searcher
