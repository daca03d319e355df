// Package rerank orders a short list of keyword candidates by relevance to a
// search query. A Claude model or an offline lexical scorer can do the
// ordering. With no reranker configured, search uses vector similarity.
package rerank
