package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/phuslu/log"
	"github.com/spf13/cast"

	"github.com/dshills/filesense/internal/app"
	"github.com/dshills/filesense/internal/indexer"
	"github.com/dshills/filesense/internal/searcher"
	"github.com/dshills/filesense/internal/storage"
)

const maxBodyBytes = 1 << 20

type handler struct {
	app    *app.App
	logger *log.Logger
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// IndexRequest is the body of POST /api/index
type IndexRequest struct {
	Path          string `json:"path"`
	Force         bool   `json:"force"`
	MaxFiles      *int   `json:"max_files,omitempty"`
	IncludeHidden *bool  `json:"include_hidden,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	// Wait blocks until the run finishes and returns its statistics
	Wait bool `json:"wait"`
}

// FileUpdateRequest is the body of PATCH /api/files/{id}
type FileUpdateRequest struct {
	Label    *string        `json:"label"`
	Caption  *string        `json:"caption"`
	UserTags *[]string      `json:"user_tags"`
	Metadata map[string]any `json:"metadata"`
	NewPath  string         `json:"new_path"`
	Reindex  bool           `json:"reindex"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.app.Version})
}

func (h *handler) index(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !decodeBody(w, r, &req) {
		return
	}

	path := strings.TrimSpace(req.Path)
	if path == "" || !filepath.IsAbs(path) {
		writeError(w, http.StatusBadRequest, "path must be an absolute directory")
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "path does not exist")
		return
	}
	if !info.IsDir() {
		writeError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	if req.Workers < 0 || req.Workers > indexer.MaxWorkers {
		writeError(w, http.StatusBadRequest, "workers must be between 1 and 50")
		return
	}

	opts := h.app.IndexOptions(req.Force, nil)
	if req.MaxFiles != nil {
		opts.MaxFiles = *req.MaxFiles
	}
	if req.IncludeHidden != nil {
		opts.IncludeHidden = *req.IncludeHidden
	}
	opts.Workers = req.Workers

	if req.Wait {
		stats, err := h.app.Indexer.IndexDirectory(r.Context(), filepath.Clean(path), opts)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	if h.app.Indexer.Status().Running {
		writeError(w, http.StatusConflict, indexer.ErrIndexInProgress.Error())
		return
	}

	// the run outlives the request
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.app.Indexer.IndexDirectory(ctx, filepath.Clean(path), opts); err != nil {
			h.logger.Error().Err(err).Str("path", path).Msg("background index run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "indexing started; poll /api/index/status for progress",
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Indexer.Status())
}

func (h *handler) pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, "paused", h.app.Indexer.Pause())
}

func (h *handler) resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, "resumed", h.app.Indexer.Resume())
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.control(w, "cancelled", h.app.Indexer.Cancel())
}

func (h *handler) control(w http.ResponseWriter, key string, ok bool) {
	code := http.StatusOK
	if !ok {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]any{
		key:      ok,
		"status": h.app.Indexer.Status(),
	})
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := searcher.Request{
		Query:      q.Get("q"),
		TypeFilter: q.Get("type"),
		UseCache:   true,
	}
	if v := q.Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 1 || n > h.app.Config.Search.MaxLimit {
			writeError(w, http.StatusBadRequest, "limit must be a number between 1 and the configured maximum")
			return
		}
		req.Limit = n
	}
	for _, ext := range q["ext"] {
		req.Extensions = append(req.Extensions, app.SplitList(ext)...)
	}
	if v := q.Get("cache"); v != "" {
		req.UseCache = cast.ToBool(v)
	}

	var err error
	if req.DateStart, err = app.ParseDateBound(q.Get("from"), false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DateEnd, err = app.ParseDateBound(q.Get("to"), true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	response, err := h.app.Searcher.Search(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *handler) suggest(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 1 || n > 50 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	if prefix == "" {
		recent, err := h.app.Searcher.RecentSearches(r.Context(), limit)
		if err != nil {
			h.fail(w, err)
			return
		}
		out := make([]map[string]any, 0, len(recent))
		for _, e := range recent {
			out = append(out, map[string]any{"query": e.Query, "results": e.ResultCount, "at": e.Timestamp})
		}
		writeJSON(w, http.StatusOK, map[string]any{"recent": out})
		return
	}

	suggestions, err := h.app.Searcher.Suggestions(r.Context(), prefix, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "suggestions": suggestions})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Searcher.Statistics(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"catalog":      stats,
		"indexing":     h.app.Indexer.Status(),
		"last_cleanup": h.app.Maintenance.LastCleanup(),
		"version":      h.app.Version,
	})
}

func (h *handler) cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.app.Maintenance.Cleanup(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *handler) rebuild(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Maintenance.RebuildIndex(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rebuilt": true, "rows": n})
}

func (h *handler) getFile(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	rec, err := h.app.Storage.GetFileByID(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileJSON(rec))
}

func (h *handler) updateFile(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	var req FileUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := h.app.UpdateFile(r.Context(), id, app.FileUpdate{
		Label:    req.Label,
		Caption:  req.Caption,
		UserTags: req.UserTags,
		Metadata: req.Metadata,
		NewPath:  req.NewPath,
		Reindex:  req.Reindex,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileJSON(rec))
}

func (h *handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	if err := h.app.DeleteFile(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps domain errors onto status codes
func (h *handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, indexer.ErrIndexInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, searcher.ErrInvalidRequest),
		errors.Is(err, storage.ErrInvalidField),
		errors.Is(err, app.ErrNoChanges):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func fileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "file id must be a positive integer")
		return 0, false
	}
	return id, true
}

func fileJSON(rec *storage.FileRecord) map[string]any {
	return map[string]any{
		"id":            rec.ID,
		"path":          rec.Path,
		"name":          rec.Name,
		"extension":     rec.Extension,
		"category":      rec.Category,
		"mime_type":     rec.MimeType,
		"size":          rec.Size,
		"label":         rec.Label,
		"tags":          rec.Tags,
		"caption":       rec.Caption,
		"has_ocr":       rec.HasOCR,
		"user_tags":     rec.UserTags,
		"metadata":      rec.Metadata,
		"ai_source":     rec.AISource,
		"modified_date": rec.ModifiedDate,
		"indexed_date":  rec.IndexedDate,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Error: message})
}
