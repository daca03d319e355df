package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/dshills/filesense/internal/app"
	"github.com/dshills/filesense/internal/indexer"
	"github.com/dshills/filesense/internal/searcher"
	"github.com/dshills/filesense/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound       = -32001 // Folder to index does not exist
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeFileNotFound       = -32003 // No catalog entry for the given id or path
	ErrorCodeEmptyQuery         = -32004 // Query has neither text nor filters
)

const (
	maxReportedErrors  = 5
	defaultSuggestions = 10
	maxSuggestions     = 50
)

// handleIndexFolder handles the index_folder tool invocation
func (s *Server) handleIndexFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path := getStringDefault(args, "path", "")
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) {
			code = ErrorCodePathNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	opts := s.app.IndexOptions(getBoolDefault(args, "force_reindex", false), s.progressSink(ctx, request))
	opts.MaxFiles = getIntDefault(args, "max_files", opts.MaxFiles)
	opts.IncludeHidden = getBoolDefault(args, "include_hidden", opts.IncludeHidden)
	opts.Workers = getIntDefault(args, "workers", 0)
	if opts.Workers < 0 || opts.Workers > indexer.MaxWorkers {
		return nil, newMCPError(ErrorCodeInvalidParams, "workers must be between 1 and 50", map[string]interface{}{
			"param": "workers",
			"value": opts.Workers,
		})
	}

	stats, err := s.app.Indexer.IndexDirectory(ctx, filepath.Clean(path), opts)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "another indexing operation is already running", map[string]interface{}{
			"status": s.app.Indexer.Status(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":           stats.RunID,
		"indexed":          stats.Indexed,
		"skipped":          stats.Skipped,
		"failed":           stats.Failed,
		"cancelled":        stats.Cancelled,
		"total":            stats.Total,
		"billable_planned": stats.BillablePlanned,
		"billable_indexed": stats.BillableIndexed,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if stats.Denied != nil {
		response["denied"] = stats.Denied
	}
	if n := len(stats.Errors); n > 0 {
		if n > maxReportedErrors {
			response["errors"] = stats.Errors[:maxReportedErrors]
			response["error_count"] = n
		} else {
			response["errors"] = stats.Errors
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchFiles handles the search_files tool invocation
func (s *Server) handleSearchFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", s.app.Config.Search.DefaultLimit)
	if limit < 1 || limit > s.app.Config.Search.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", s.app.Config.Search.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	req := searcher.Request{
		Query:      getStringDefault(args, "query", ""),
		Limit:      limit,
		TypeFilter: getStringDefault(args, "type", ""),
		Extensions: getStringSlice(args, "extensions"),
		UseCache:   getBoolDefault(args, "use_cache", true),
	}
	for _, bound := range []struct {
		param string
		end   bool
		dst   *time.Time
	}{
		{"date_start", false, &req.DateStart},
		{"date_end", true, &req.DateEnd},
	} {
		t, err := app.ParseDateBound(getStringDefault(args, bound.param, ""), bound.end)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid date", map[string]interface{}{
				"param":  bound.param,
				"reason": err.Error(),
			})
		}
		*bound.dst = t
	}

	response, err := s.app.Searcher.Search(ctx, req)
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty, and no filter given",
		})
	case errors.Is(err, searcher.ErrUnknownType):
		return nil, newMCPError(ErrorCodeInvalidParams, "unknown type filter", map[string]interface{}{
			"param": "type",
			"value": req.TypeFilter,
		})
	case errors.Is(err, searcher.ErrInvalidRequest):
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":            response.Query,
		"interpreted":      response.Interpreted,
		"results":          response.Results,
		"total":            response.Total,
		"duration_ms":      response.Duration.Milliseconds(),
		"cache_hit":        response.CacheHit,
		"keyword_results":  response.KeywordResults,
		"semantic_results": response.SemanticResults,
		"reranked":         response.Reranked,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.app.Searcher.Statistics(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cfg := s.app.Config
	response := map[string]interface{}{
		"version":  s.app.Version,
		"catalog":  stats,
		"indexing": s.app.Indexer.Status(),
		"providers": map[string]interface{}{
			"enricher": cfg.Enricher.Provider,
			"embedder": cfg.Embedder.Provider,
			"rerank":   cfg.Rerank.Provider,
			"quota":    cfg.Quota.Authority,
		},
	}
	if last := s.app.Maintenance.LastCleanup(); last != nil {
		response["last_cleanup"] = last
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCleanup handles the cleanup tool invocation
func (s *Server) handleCleanup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	removed, err := s.app.Maintenance.Cleanup(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "cleanup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"removed": removed,
	})), nil
}

// handleRebuildIndex handles the rebuild_index tool invocation
func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.app.Maintenance.RebuildIndex(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "rebuild failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"rebuilt": true,
		"rows":    n,
	})), nil
}

// handleUpdateFile handles the update_file tool invocation
func (s *Server) handleUpdateFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	rec, err := s.app.ResolveFile(ctx, getStringDefault(args, "file", ""))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeFileNotFound, "file is not in the catalog", map[string]interface{}{
			"param": "file",
			"value": args["file"],
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{"param": "file"})
	}

	update, err := fileUpdateFromArgs(args)
	if err != nil {
		return nil, err
	}

	updated, err := s.app.UpdateFile(ctx, rec.ID, update)
	switch {
	case errors.Is(err, storage.ErrInvalidField):
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, indexer.ErrIndexInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "another indexing operation is already running", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "update failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"updated": true,
		"file": map[string]interface{}{
			"id":        updated.ID,
			"path":      updated.Path,
			"label":     updated.Label,
			"caption":   updated.Caption,
			"tags":      updated.Tags,
			"user_tags": updated.UserTags,
			"metadata":  updated.Metadata,
		},
	})), nil
}

// handleSuggest handles the suggest tool invocation
func (s *Server) handleSuggest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", defaultSuggestions)
	if limit < 1 || limit > maxSuggestions {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 50", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	prefix := strings.TrimSpace(getStringDefault(args, "prefix", ""))
	if prefix == "" {
		recent, err := s.app.Searcher.RecentSearches(ctx, limit)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to load recent searches", map[string]interface{}{
				"error": err.Error(),
			})
		}
		items := make([]map[string]interface{}, 0, len(recent))
		for _, h := range recent {
			items = append(items, map[string]interface{}{
				"query":   h.Query,
				"results": h.ResultCount,
				"at":      h.Timestamp,
			})
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{"recent": items})), nil
	}

	suggestions, err := s.app.Searcher.Suggestions(ctx, prefix, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load suggestions", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"prefix":      prefix,
		"suggestions": suggestions,
	})), nil
}

func (s *Server) handlePauseIndexing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.controlResult("paused", "pause", s.app.Indexer.Pause()), nil
}

func (s *Server) handleResumeIndexing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.controlResult("resumed", "resume", s.app.Indexer.Resume()), nil
}

func (s *Server) handleCancelIndexing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.controlResult("cancelled", "cancel", s.app.Indexer.Cancel()), nil
}

// controlResult reports a pause, resume or cancel request. ok is false
// when no run was in a state the request applies to.
func (s *Server) controlResult(key, verb string, ok bool) *mcp.CallToolResult {
	response := map[string]interface{}{
		key:      ok,
		"status": s.app.Indexer.Status(),
	}
	if !ok {
		response["message"] = "no indexing run to " + verb
	}
	return mcp.NewToolResultText(formatJSON(response))
}

// progressSink forwards indexing progress to the client when the request
// carries a progress token
func (s *Server) progressSink(ctx context.Context, request mcp.CallToolRequest) func(completed, total int, message string) {
	if request.Params.Meta == nil || request.Params.Meta.ProgressToken == nil {
		return nil
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	token := request.Params.Meta.ProgressToken

	return func(completed, total int, message string) {
		err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      completed,
			"total":         total,
			"message":       message,
		})
		if err != nil {
			s.logger.Debug().Err(err).Msg("failed to send progress notification")
		}
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the call arguments; tools without arguments may get nil
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// fileUpdateFromArgs reads the editable fields present in args
func fileUpdateFromArgs(args map[string]interface{}) (app.FileUpdate, error) {
	var u app.FileUpdate
	if v, ok := args["label"]; ok {
		label := cast.ToString(v)
		u.Label = &label
	}
	if v, ok := args["caption"]; ok {
		caption := cast.ToString(v)
		u.Caption = &caption
	}
	if v, ok := args["user_tags"]; ok {
		tags, err := cast.ToStringSliceE(v)
		if err != nil {
			return u, newMCPError(ErrorCodeInvalidParams, "user_tags must be an array of strings", map[string]interface{}{
				"param": "user_tags",
			})
		}
		u.UserTags = &tags
	}
	if v, ok := args["metadata"]; ok {
		m, ok := v.(map[string]interface{})
		if !ok {
			return u, newMCPError(ErrorCodeInvalidParams, "metadata must be an object", map[string]interface{}{
				"param": "metadata",
			})
		}
		u.Metadata = m
	}
	u.NewPath = getStringDefault(args, "new_path", "")
	u.Reindex = getBoolDefault(args, "reindex", false)

	if u.Label == nil && u.Caption == nil && u.UserTags == nil && u.Metadata == nil && u.NewPath == "" && !u.Reindex {
		return u, newMCPError(ErrorCodeInvalidParams, "no changes requested", map[string]interface{}{
			"allowed": append(append([]string(nil), storage.EditableFields...), "new_path", "reindex"),
		})
	}
	return u, nil
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := args[key]; ok {
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if v, ok := args[key]; ok {
		if n, err := cast.ToIntE(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if v, ok := args[key]; ok && v != nil {
		if s, err := cast.ToStringE(v); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return defaultValue
}

// getStringSlice accepts an array or a comma separated string
func getStringSlice(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return app.SplitList(s)
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil
	}
	return out
}

// Validation errors

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
