// Package indexer runs the enrichment pipeline that fills the file catalog.
//
// # Basic Usage
//
//	idx := indexer.New(indexer.Deps{
//	    Storage:  store,
//	    Provider: provider,
//	    Embedder: emb,
//	    Quota:    authority,
//	}, indexer.Config{Workers: 8})
//
//	stats, err := idx.IndexDirectory(ctx, "/Users/me/Pictures", indexer.Options{})
//	fmt.Printf("indexed %d, skipped %d, failed %d\n", stats.Indexed, stats.Skipped, stats.Failed)
//
// # Pipeline
//
// Each file goes through these steps on a bounded worker pool:
//
//  1. Stat: a missing file is skipped with a notFound error
//  2. Change detection: the sha256 content hash is compared with the catalog
//     and unchanged files are skipped without calling the provider
//  3. Input: image bytes for vision formats, an extracted text snippet otherwise
//  4. Enrich: the provider call, bounded by a per-task timeout
//  5. Store: the record is upserted; user tags and metadata are preserved
//  6. Embed: name, label, tags, caption and text are embedded when an
//     embedder is available
//
// A provider failure leaves the catalog untouched, so the file is retried on
// the next run. Per-file failures are collected in Statistics.Errors and never
// abort the run.
//
// # Control
//
// Only one run may be active. Pause, Resume and Cancel act on it from any
// goroutine. Workers check for pause between steps; a cancelled run counts the
// files that were never dispatched as cancelled.
//
// # Quota
//
// Media files (images, video and audio) are billable. The quota authority is
// asked once before dispatch and usage is reported once after the run.
package indexer
