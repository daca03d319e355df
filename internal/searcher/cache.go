package searcher

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
	"time"
)

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req Request) *Response {
	hash := computeQueryHash(req)

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	// Check if entry has expired
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	// Return a deep copy so callers can't mutate the cached entry
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves a search response until the TTL passes
func (s *Searcher) storeInCache(req Request, response *Response) {
	hash := computeQueryHash(req)
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. It runs after index runs,
// edits and cleanup.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses, expired ones included
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Interpreted.Terms = slices.Clone(src.Interpreted.Terms)
	dst.Interpreted.Extensions = slices.Clone(src.Interpreted.Extensions)
	dst.Interpreted.Tags = slices.Clone(src.Interpreted.Tags)
	dst.Interpreted.Corrections = slices.Clone(src.Interpreted.Corrections)

	dst.Results = make([]Result, len(src.Results))
	for i, r := range src.Results {
		r.Tags = slices.Clone(r.Tags)
		r.UserTags = slices.Clone(r.UserTags)
		dst.Results[i] = r
	}
	return &dst
}

// computeQueryHash keys the cache on the normalized request
func computeQueryHash(req Request) [32]byte {
	exts := normalizeExtensions(req.Extensions)
	slices.Sort(exts)

	var b strings.Builder
	b.WriteString(strings.ToLower(strings.Join(strings.Fields(req.Query), " ")))
	fmt.Fprintf(&b, "|limit:%d|type:%s", req.Limit, strings.ToLower(req.TypeFilter))
	fmt.Fprintf(&b, "|from:%d|to:%d", unixOrZero(req.DateStart), unixOrZero(req.DateEnd))
	b.WriteString("|ext:" + strings.Join(exts, ","))

	return sha256.Sum256([]byte(b.String()))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
