package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filesense/internal/app"
	"github.com/dshills/filesense/internal/config"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Storage.Path = ":memory:"
	cfg.Indexer.Workers = 2
	cfg.Maintenance.Enabled = false

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// indexed returns a router over a catalog holding three text files
func indexed(t *testing.T) (http.Handler, string) {
	t.Helper()
	router := NewRouter(newTestApp(t))
	dir := t.TempDir()
	for name, content := range map[string]string{
		"taxes-2023.txt": "tax return summary",
		"packing.txt":    "packing list for the camping trip",
		"readme.md":      "# Project\nsetup instructions",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	w := do(t, router, http.MethodPost, "/api/index", map[string]any{"path": dir, "wait": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	require.Equal(t, float64(3), out["indexed"])
	return router, dir
}

func TestHealth(t *testing.T) {
	router := NewRouter(newTestApp(t))
	w := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestRoutes(t *testing.T) {
	router := NewRouter(newTestApp(t))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"search without query", http.MethodGet, "/api/search", http.StatusBadRequest},
		{"search wrong method", http.MethodPost, "/api/search", http.StatusMethodNotAllowed},
		{"stats", http.MethodGet, "/api/stats", http.StatusOK},
		{"index status", http.MethodGet, "/api/index/status", http.StatusOK},
		{"index without body", http.MethodPost, "/api/index", http.StatusBadRequest},
		{"pause without run", http.MethodPost, "/api/index/pause", http.StatusConflict},
		{"cancel without run", http.MethodPost, "/api/index/cancel", http.StatusConflict},
		{"missing file", http.MethodGet, "/api/files/42", http.StatusNotFound},
		{"bad file id", http.MethodGet, "/api/files/abc", http.StatusBadRequest},
		{"preflight", http.MethodOptions, "/api/search", http.StatusNoContent},
		{"unknown route", http.MethodGet, "/api/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestIndexValidation(t *testing.T) {
	router := NewRouter(newTestApp(t))

	w := do(t, router, http.MethodPost, "/api/index", map[string]any{"path": "relative"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/index", map[string]any{"path": filepath.Join(t.TempDir(), "missing")})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/api/index", map[string]any{"path": t.TempDir(), "unknown": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/index", map[string]any{"path": t.TempDir(), "workers": 51})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexAsync(t *testing.T) {
	a := newTestApp(t)
	router := NewRouter(a)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))

	w := do(t, router, http.MethodPost, "/api/index", map[string]any{"path": dir})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		st, err := a.Storage.GetStatistics(context.Background())
		return err == nil && st.TotalFiles == 1 && !a.Indexer.Status().Running
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSearch(t *testing.T) {
	router, _ := indexed(t)

	w := do(t, router, http.MethodGet, "/api/search?q=camping&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	results := out["results"].([]any)
	require.NotEmpty(t, results)
	assert.Equal(t, "packing.txt", results[0].(map[string]any)["name"])

	w = do(t, router, http.MethodGet, "/api/search?ext=.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = do(t, router, http.MethodGet, "/api/search?q=x&limit=1000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/search?q=x&from=2024-05-01&to=2024-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/search?q=x&from=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/search?type=holograms", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggest(t *testing.T) {
	router, _ := indexed(t)
	for _, q := range []string{"tax", "taxes 2023", "packing"} {
		w := do(t, router, http.MethodGet, "/api/search?q="+url.QueryEscape(q), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, router, http.MethodGet, "/api/suggest?prefix=tax", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["suggestions"], "tax")

	w = do(t, router, http.MethodGet, "/api/suggest?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["recent"], 2)

	w = do(t, router, http.MethodGet, "/api/suggest?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFileLifecycle(t *testing.T) {
	router, dir := indexed(t)

	search := decode(t, do(t, router, http.MethodGet, "/api/search?q=tax", nil))
	results := search["results"].([]any)
	require.NotEmpty(t, results)
	id := strconv.FormatInt(int64(results[0].(map[string]any)["id"].(float64)), 10)

	w := do(t, router, http.MethodGet, "/api/files/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, filepath.Join(dir, "taxes-2023.txt"), decode(t, w)["path"])

	w = do(t, router, http.MethodPatch, "/api/files/"+id, map[string]any{
		"label":     "tax return",
		"user_tags": []string{"finance"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "tax return", out["label"])
	assert.Equal(t, []any{"finance"}, out["user_tags"])

	w = do(t, router, http.MethodPatch, "/api/files/"+id, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodDelete, "/api/files/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodDelete, "/api/files/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMaintenanceEndpoints(t *testing.T) {
	router, dir := indexed(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "readme.md")))

	w := do(t, router, http.MethodPost, "/api/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["removed"])

	w = do(t, router, http.MethodPost, "/api/rebuild", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["rows"])

	w = do(t, router, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Equal(t, float64(2), stats["catalog"].(map[string]any)["total_files"])
	assert.NotNil(t, stats["last_cleanup"])
}

func TestServerShutdown(t *testing.T) {
	srv := NewServer(newTestApp(t), "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
