package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/phuslu/log"

	"github.com/dshills/filesense/internal/embedder"
	"github.com/dshills/filesense/internal/queryparser"
	"github.com/dshills/filesense/internal/rerank"
	"github.com/dshills/filesense/internal/storage"
)

const (
	DefaultKeywordWeight = 10.0
	DefaultLimit         = 20
	MaxLimit             = 100
	DefaultCacheSize     = 1000
	DefaultCacheTTL      = 5 * time.Minute

	// filterOnlyPool is the candidate pool of a search without terms
	filterOnlyPool = 500
	// poolFactor widens the keyword pool so post-filters still fill the page
	poolFactor = 3
	// semanticScale puts cosine similarity on the keyword scale
	semanticScale = 10.0
	// rerankBase is the score of the last reranked item
	rerankBase = 10.0

	vocabularyLimit = 5000
)

var (
	// ErrEmptyQuery is returned when a request carries neither text nor filters
	ErrEmptyQuery = errors.New("query must contain text or a filter")
	// ErrInvalidRequest wraps every request validation failure
	ErrInvalidRequest = errors.New("invalid search request")
	// ErrUnknownType is returned for a type filter with no extension set
	ErrUnknownType = errors.New("unknown type filter")
)

// Source tells which retrieval path produced a result's score
type Source string

const (
	SourceKeyword  Source = "keyword"
	SourceSemantic Source = "semantic"
	SourceRerank   Source = "rerank"
)

// Request contains parameters for a search operation. Explicit filters win
// over filters parsed from the query text.
type Request struct {
	Query      string
	Limit      int
	TypeFilter string    // images, screenshots, documents, pdfs, spreadsheets, videos, audio, code
	DateStart  time.Time // zero means unbounded
	DateEnd    time.Time // zero means unbounded
	Extensions []string
	UseCache   bool
}

// Result is one ranked file with display fields
type Result struct {
	ID             int64     `json:"id"`
	Path           string    `json:"path"`
	Name           string    `json:"name"`
	Extension      string    `json:"extension"`
	Category       string    `json:"category"`
	MimeType       string    `json:"mime_type,omitempty"`
	Size           int64     `json:"size"`
	SizeHuman      string    `json:"size_human"`
	Label          string    `json:"label,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	UserTags       []string  `json:"user_tags,omitempty"`
	Caption        string    `json:"caption,omitempty"`
	OCRPreview     string    `json:"ocr_preview,omitempty"`
	Date           time.Time `json:"date,omitzero"`
	DateHuman      string    `json:"date_human,omitempty"`
	Exists         bool      `json:"exists"`
	Score          float64   `json:"score"`
	RelevanceScore float64   `json:"relevance_score"`
	Source         Source    `json:"source"`
}

// Interpretation is how the query text was understood
type Interpretation struct {
	Text        string   `json:"text"`
	Terms       []string `json:"terms,omitempty"`
	DateFilter  string   `json:"date_filter,omitempty"`
	TypeFilter  string   `json:"type_filter,omitempty"`
	Extensions  []string `json:"extensions,omitempty"`
	Label       string   `json:"label,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	HasOCR      bool     `json:"has_ocr,omitempty"`
	HasVision   bool     `json:"has_vision,omitempty"`
	Corrections []string `json:"corrections,omitempty"`
}

// Response contains search results and metadata
type Response struct {
	Query           string         `json:"query"`
	Interpreted     Interpretation `json:"interpreted"`
	Results         []Result       `json:"results"`
	Total           int            `json:"total"`
	Duration        time.Duration  `json:"duration"`
	CacheHit        bool           `json:"cache_hit"`
	KeywordResults  int            `json:"keyword_results"`
	SemanticResults int            `json:"semantic_results"`
	Reranked        bool           `json:"reranked"`
}

// Config tunes ranking and caching
type Config struct {
	KeywordWeight float64
	CacheSize     int
	CacheTTL      time.Duration
	DefaultLimit  int
	MaxLimit      int
}

// Deps are the collaborators of a Searcher. Storage is required. A nil
// Reranker means semantic similarity is used directly.
type Deps struct {
	Storage  storage.Storage
	Embedder embedder.Embedder
	Reranker rerank.Reranker
	Parser   *queryparser.Parser
	Logger   *log.Logger
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher coordinates keyword search, semantic similarity and reranking
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	reranker rerank.Reranker
	parser   *queryparser.Parser
	logger   *log.Logger
	cfg      Config

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// New creates a new Searcher instance
func New(deps Deps, cfg Config) *Searcher {
	if deps.Logger == nil {
		deps.Logger = &log.DefaultLogger
	}
	if deps.Embedder == nil {
		deps.Embedder = embedder.NoneProvider{}
	}
	if deps.Parser == nil {
		deps.Parser = queryparser.New(queryparser.Options{})
	}
	if cfg.KeywordWeight <= 0 {
		cfg.KeywordWeight = DefaultKeywordWeight
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	cfg.DefaultLimit = min(cfg.DefaultLimit, cfg.MaxLimit)

	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage:  deps.Storage,
		embedder: deps.Embedder,
		reranker: deps.Reranker,
		parser:   deps.Parser,
		logger:   deps.Logger,
		cfg:      cfg,
		cache:    cache,
	}
}

// Search runs a hybrid search for req
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			s.recordHistory(ctx, req.Query, cached.Total)
			return cached, nil
		}
	}

	p, err := s.plan(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	response, err := s.execute(ctx, p)
	if err != nil {
		return nil, err
	}
	response.Query = req.Query
	response.Duration = time.Since(startTime)

	s.recordHistory(ctx, req.Query, response.Total)

	if req.UseCache {
		s.storeInCache(req, response)
	}

	s.logger.Debug().
		Str("query", req.Query).
		Int("results", response.Total).
		Int("keyword", response.KeywordResults).
		Int("semantic", response.SemanticResults).
		Bool("reranked", response.Reranked).
		Dur("duration", response.Duration).
		Msg("search finished")

	return response, nil
}

// execute runs keyword retrieval, the semantic step, merging and filtering
func (s *Searcher) execute(ctx context.Context, p *plan) (*Response, error) {
	response := &Response{Interpreted: p.interpretation()}

	keyword, err := s.storage.SearchKeyword(ctx, p.terms, p.filters, p.pool)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	response.KeywordResults = len(keyword)

	m := newMerger()
	for _, r := range keyword {
		m.add(r.Record, r.Score*s.cfg.KeywordWeight, SourceKeyword)
	}

	if !p.filterOnly {
		reranked, n := s.semantic(ctx, p, keyword, m)
		response.Reranked = reranked
		response.SemanticResults = n
	}

	ranked := m.sorted()
	ranked = filterExtensions(ranked, p.extensions)
	ranked = filterDates(ranked, p.date)
	if len(ranked) > p.limit {
		ranked = ranked[:p.limit]
	}

	response.Results = make([]Result, len(ranked))
	for i, c := range ranked {
		response.Results[i] = toResult(c)
	}
	response.Total = len(response.Results)
	return response, nil
}

// semantic reranks the keyword candidates, or falls back to cosine
// similarity over stored embeddings. It reports whether the rerank was used
// and how many candidates the step contributed.
func (s *Searcher) semantic(ctx context.Context, p *plan, keyword []storage.KeywordResult, m *merger) (bool, int) {
	if s.reranker != nil && len(keyword) > 0 {
		n, err := s.rerank(ctx, p, keyword, m)
		if err == nil {
			return true, n
		}
		s.logger.Warn().Err(err).Str("reranker", s.reranker.Name()).Msg("rerank failed, using semantic similarity")
	}
	return false, s.similar(ctx, p, m)
}

func (s *Searcher) rerank(ctx context.Context, p *plan, keyword []storage.KeywordResult, m *merger) (int, error) {
	candidates := keyword[:min(len(keyword), rerank.MaxItems)]
	items := make([]rerank.Item, len(candidates))
	records := make(map[int64]*storage.FileRecord, len(candidates))
	for i, r := range candidates {
		items[i] = rerank.Item{
			ID:      r.Record.ID,
			Name:    r.Record.Name,
			Label:   r.Record.Label,
			Tags:    r.Record.Tags,
			Caption: r.Record.Caption,
			OCRText: r.Record.OCRText,
		}
		records[r.Record.ID] = r.Record
	}

	ids, err := s.reranker.Rerank(ctx, p.query.Raw, items)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, rerank.ErrNoRanking
	}

	n := len(ids)
	for i, id := range ids {
		rec, ok := records[id]
		if !ok {
			continue
		}
		m.add(rec, rerankBase+float64(n-1-i), SourceRerank)
	}
	return n, nil
}

// similar adds the files whose embeddings are closest to the query
func (s *Searcher) similar(ctx context.Context, p *plan, m *merger) int {
	text := p.semanticText()
	if text == "" {
		return 0
	}
	emb, ok := embedder.TryEmbed(ctx, s.embedder, s.logger, text)
	if !ok {
		return 0
	}

	matches, err := s.storage.SearchVector(ctx, emb.Vector, p.limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("vector search failed")
		return 0
	}
	if len(matches) == 0 {
		return 0
	}

	ids := make([]int64, len(matches))
	for i, v := range matches {
		ids[i] = v.FileID
	}
	records, err := s.storage.GetFilesByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load semantic matches")
		return 0
	}

	n := 0
	for _, v := range matches {
		rec, ok := records[v.FileID]
		if !ok || v.SimilarityScore <= 0 || !p.matchesFilters(rec) {
			continue
		}
		m.add(rec, v.SimilarityScore*semanticScale, SourceSemantic)
		n++
	}
	return n
}

func (s *Searcher) recordHistory(ctx context.Context, query string, results int) {
	if strings.TrimSpace(query) == "" {
		return
	}
	if err := s.storage.AddSearchHistory(ctx, query, results); err != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("failed to record search history")
	}
}

// validateRequest applies defaults and rejects requests with nothing to search for
func (s *Searcher) validateRequest(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	req.TypeFilter = strings.ToLower(strings.TrimSpace(req.TypeFilter))

	if req.Query == "" && req.TypeFilter == "" && len(req.Extensions) == 0 &&
		req.DateStart.IsZero() && req.DateEnd.IsZero() {
		return ErrEmptyQuery
	}
	if !req.DateStart.IsZero() && !req.DateEnd.IsZero() && req.DateEnd.Before(req.DateStart) {
		return fmt.Errorf("date end %s is before start %s", req.DateEnd.Format(time.DateOnly), req.DateStart.Format(time.DateOnly))
	}

	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	req.Limit = min(req.Limit, s.cfg.MaxLimit)
	return nil
}

// Suggestions returns past queries containing prefix, most recent first
func (s *Searcher) Suggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	out, err := s.storage.SearchSuggestions(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestions: %w", err)
	}
	return out, nil
}

// RecentSearches returns the latest logged searches
func (s *Searcher) RecentSearches(ctx context.Context, limit int) ([]storage.HistoryEntry, error) {
	out, err := s.storage.RecentSearches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent searches: %w", err)
	}
	return out, nil
}

// RefreshVocabulary retrains spell correction on the catalog's labels,
// tags and categories
func (s *Searcher) RefreshVocabulary(ctx context.Context) error {
	words, err := s.storage.Vocabulary(ctx, vocabularyLimit)
	if err != nil {
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}
	s.parser.TrainSpelling(words)
	s.logger.Debug().Int("words", len(words)).Msg("spelling vocabulary refreshed")
	return nil
}
