// Package extract classifies files and pulls readable text out of documents
// for enrichment and full-text search.
package extract
