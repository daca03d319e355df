package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filesense/internal/embedder"
	"github.com/dshills/filesense/internal/enricher"
	"github.com/dshills/filesense/internal/quota"
	"github.com/dshills/filesense/internal/scanner"
	"github.com/dshills/filesense/internal/storage"
)

// mockProvider implements enricher.Provider for testing
type mockProvider struct {
	mu      sync.Mutex
	calls   int
	inputs  []enricher.Input
	failFor map[string]error

	// block, when set, holds every call until closed or cancelled
	block   chan struct{}
	started chan struct{}
}

func newMockProvider() *mockProvider {
	return &mockProvider{failFor: map[string]error{}, started: make(chan struct{}, 100)}
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Enrich(ctx context.Context, in enricher.Input) (*enricher.Result, error) {
	m.mu.Lock()
	m.calls++
	m.inputs = append(m.inputs, in)
	err := m.failFor[in.Name]
	block := m.block
	m.mu.Unlock()

	select {
	case m.started <- struct{}{}:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &enricher.Result{
		Label:      "thing",
		Tags:       []string{"alpha", "beta"},
		Caption:    "caption for " + in.Name,
		Confidence: 0.7,
		Source:     "mock",
	}, nil
}

func (m *mockProvider) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) inputFor(name string) (enricher.Input, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.inputs {
		if in.Name == name {
			return in, true
		}
	}
	return enricher.Input{}, false
}

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	dimension   int
	generateErr error
	callCount   int
	texts       []string
	mu          sync.Mutex
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dimension: 8}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generateErr != nil {
		return nil, m.generateErr
	}

	m.callCount++
	m.texts = append(m.texts, req.Text)
	vector := make([]float32, m.dimension)
	for i := range vector {
		vector[i] = 0.5
	}
	return &embedder.Embedding{Vector: vector, Dimension: m.dimension, Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	return nil, errors.New("not used")
}

func (m *mockEmbedder) Dimension() int   { return m.dimension }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "test-v1" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *mockEmbedder) embeddedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// emptyProvider returns a result without any enrichment
type emptyProvider struct{ source string }

func (p emptyProvider) Name() string { return "empty" }

func (p emptyProvider) Enrich(ctx context.Context, in enricher.Input) (*enricher.Result, error) {
	return &enricher.Result{Source: p.source}, nil
}

// setupTestStorage creates an in-memory SQLite database for testing
func setupTestStorage(t testing.TB) storage.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// createTestFile creates a file with content in dir
func createTestFile(t testing.TB, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

func entriesFor(t testing.TB, paths ...string) []scanner.Entry {
	t.Helper()
	s := scanner.New(nil)
	out := make([]scanner.Entry, 0, len(paths))
	for _, p := range paths {
		e, err := s.EntryFor(p)
		if err != nil {
			e = scanner.Entry{Path: p, Name: filepath.Base(p)}
		}
		out = append(out, e)
	}
	return out
}

func newTestIndexer(t testing.TB, store storage.Storage, p enricher.Provider, deps Deps, cfg Config) *Indexer {
	t.Helper()
	deps.Storage = store
	deps.Provider = p
	return New(deps, cfg)
}

func TestNew_Defaults(t *testing.T) {
	idx := New(Deps{Storage: setupTestStorage(t)}, Config{Workers: 500})
	assert.Equal(t, MaxWorkers, idx.cfg.Workers)
	assert.Equal(t, DefaultTaskTimeout, idx.cfg.TaskTimeout)
	assert.Equal(t, int64(DefaultMaxImageBytes), idx.cfg.MaxImageBytes)
	assert.Equal(t, enricher.ProviderNone, idx.provider.Name())
	assert.False(t, idx.Status().Running)

	idx = New(Deps{Storage: setupTestStorage(t)}, Config{})
	assert.Equal(t, DefaultWorkers, idx.cfg.Workers)
}

func TestIndexFiles_Success(t *testing.T) {
	dir := t.TempDir()
	txt := createTestFile(t, dir, "notes.txt", []byte("hello world from the notes"))
	md := createTestFile(t, dir, "readme.md", []byte("# Title\n\nSome *markdown* body."))
	jpg := createTestFile(t, dir, "photo.jpg", jpegBytes)

	store := setupTestStorage(t)
	provider := newMockProvider()
	emb := newMockEmbedder()
	idx := newTestIndexer(t, store, provider, Deps{Embedder: emb}, Config{Workers: 2})

	stats, err := idx.IndexFiles(context.Background(), entriesFor(t, txt, md, jpg), Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Indexed)
	assert.Equal(t, 0, stats.Failed)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, stats.BillablePlanned)
	assert.Equal(t, 1, stats.BillableIndexed)
	assert.Equal(t, 1, stats.UsageReported)
	assert.Equal(t, 3, provider.getCallCount())
	assert.Equal(t, 3, emb.getCallCount())

	ctx := context.Background()
	rec, err := store.GetFileByPath(ctx, txt)
	require.NoError(t, err)
	assert.Equal(t, "thing", rec.Label)
	assert.Equal(t, []string{"alpha", "beta"}, rec.Tags)
	assert.Equal(t, "mock", rec.AISource)
	assert.Equal(t, "hello world from the notes", rec.OCRText)
	assert.True(t, rec.HasOCR)
	assert.NotEmpty(t, rec.ContentHash)

	photo, err := store.GetFileByPath(ctx, jpg)
	require.NoError(t, err)
	assert.Empty(t, photo.OCRText)
	assert.Equal(t, "images", photo.Category)

	in, ok := provider.inputFor("photo.jpg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", in.ImageMediaType)
	assert.Equal(t, jpegBytes, in.Image)

	in, ok = provider.inputFor("readme.md")
	require.True(t, ok)
	assert.Contains(t, in.Text, "markdown")
	assert.NotContains(t, in.Text, "*")
	assert.False(t, in.HasImage())

	vectors, err := store.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
}

func TestIndexFiles_IncrementalUpdate(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.txt", []byte("first"))
	b := createTestFile(t, dir, "b.txt", []byte("second"))

	store := setupTestStorage(t)
	provider := newMockProvider()
	idx := newTestIndexer(t, store, provider, Deps{}, Config{})
	ctx := context.Background()

	stats, err := idx.IndexFiles(ctx, entriesFor(t, a, b), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)

	stats, err = idx.IndexFiles(ctx, entriesFor(t, a, b), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Indexed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 2, provider.getCallCount(), "unchanged files must not reach the provider")

	require.NoError(t, os.WriteFile(a, []byte("first, edited"), 0o644))
	stats, err = idx.IndexFiles(ctx, entriesFor(t, a, b), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Skipped)

	stats, err = idx.IndexFiles(ctx, entriesFor(t, a, b), Options{ForceReindex: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)
}

func TestIndexFiles_ProviderFailureLeavesCatalogUntouched(t *testing.T) {
	dir := t.TempDir()
	good := createTestFile(t, dir, "good.txt", []byte("good"))
	bad := createTestFile(t, dir, "bad.txt", []byte("bad"))

	store := setupTestStorage(t)
	provider := newMockProvider()
	provider.failFor["bad.txt"] = errors.New("model overloaded")
	idx := newTestIndexer(t, store, provider, Deps{}, Config{})

	stats, err := idx.IndexFiles(context.Background(), entriesFor(t, good, bad), Options{})
	require.NoError(t, err, "per-file failures must not fail the run")
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, KindProviderFailure, stats.Errors[0].Kind)
	assert.Equal(t, bad, stats.Errors[0].Path)
	assert.Contains(t, stats.Errors[0].Message, "model overloaded")

	_, err = store.GetFileByPath(context.Background(), bad)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexFiles_NotFoundIsSkipped(t *testing.T) {
	store := setupTestStorage(t)
	provider := newMockProvider()
	idx := newTestIndexer(t, store, provider, Deps{}, Config{})

	missing := filepath.Join(t.TempDir(), "gone.txt")
	stats, err := idx.IndexFiles(context.Background(), []scanner.Entry{{Path: missing, Name: "gone.txt"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, KindNotFound, stats.Errors[0].Kind)
	assert.Equal(t, 0, provider.getCallCount())
}

func TestIndexFiles_ProgressIsSerialized(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 20; i++ {
		paths = append(paths, createTestFile(t, dir, fmt.Sprintf("f%02d.txt", i), []byte(fmt.Sprintf("content %d", i))))
	}

	idx := newTestIndexer(t, setupTestStorage(t), newMockProvider(), Deps{}, Config{Workers: 8})

	var seen []int
	stats, err := idx.IndexFiles(context.Background(), entriesFor(t, paths...), Options{
		Progress: func(completed, total int, message string) {
			assert.Equal(t, 20, total)
			assert.NotEmpty(t, message)
			seen = append(seen, completed)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Indexed)

	require.Len(t, seen, 20)
	for i, n := range seen {
		assert.Equal(t, i+1, n)
	}
}

func TestIndexFiles_QuotaDenied(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.jpg", jpegBytes)
	b := createTestFile(t, dir, "b.png", []byte("png"))

	store := setupTestStorage(t)
	provider := newMockProvider()
	idx := newTestIndexer(t, store, provider, Deps{Quota: quota.NewStatic(1, 0)}, Config{})

	stats, err := idx.IndexFiles(context.Background(), entriesFor(t, a, b), Options{})
	require.NoError(t, err)
	require.NotNil(t, stats.Denied)
	assert.False(t, stats.Denied.Allowed)
	assert.Equal(t, 2, stats.BillablePlanned)
	assert.Equal(t, 0, stats.Indexed)
	assert.Equal(t, 0, provider.getCallCount())
}

func TestIndexFiles_QuotaUsageReported(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.jpg", jpegBytes)
	b := createTestFile(t, dir, "b.mp3", []byte("ID3"))
	c := createTestFile(t, dir, "c.txt", []byte("text"))

	authority := quota.NewStatic(10, 0)
	idx := newTestIndexer(t, setupTestStorage(t), newMockProvider(), Deps{Quota: authority}, Config{})

	stats, err := idx.IndexFiles(context.Background(), entriesFor(t, a, b, c), Options{})
	require.NoError(t, err)
	assert.Nil(t, stats.Denied)
	assert.Equal(t, 2, stats.BillablePlanned)
	assert.Equal(t, 2, stats.BillableIndexed)
	assert.Equal(t, 2, stats.UsageReported)
	assert.Equal(t, 2, authority.Used())
}

func TestIndexFiles_QuotaMisconfigured(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.jpg", jpegBytes)

	strict := newTestIndexer(t, setupTestStorage(t), newMockProvider(),
		Deps{Quota: quota.NewHTTP("", "")}, Config{RequireSubscription: true})
	_, err := strict.IndexFiles(context.Background(), entriesFor(t, a), Options{})
	assert.ErrorIs(t, err, quota.ErrMisconfigured)

	lenient := newTestIndexer(t, setupTestStorage(t), newMockProvider(),
		Deps{Quota: quota.NewHTTP("", "")}, Config{})
	stats, err := lenient.IndexFiles(context.Background(), entriesFor(t, a), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 0, stats.UsageReported, "usage report fails against a misconfigured authority")
}

func TestIndexFiles_ConcurrentCalls(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.txt", []byte("a"))

	provider := newMockProvider()
	provider.block = make(chan struct{})
	idx := newTestIndexer(t, setupTestStorage(t), provider, Deps{}, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := idx.IndexFiles(context.Background(), entriesFor(t, a), Options{})
		done <- err
	}()

	<-provider.started
	_, err := idx.IndexFiles(context.Background(), entriesFor(t, a), Options{})
	assert.ErrorIs(t, err, ErrIndexInProgress)
	_, err = idx.IndexDirectory(context.Background(), dir, Options{})
	assert.ErrorIs(t, err, ErrIndexInProgress)

	close(provider.block)
	require.NoError(t, <-done)
}

func TestIndexFiles_Cancel(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, createTestFile(t, dir, fmt.Sprintf("f%d.txt", i), []byte(fmt.Sprintf("c%d", i))))
	}

	store := setupTestStorage(t)
	provider := newMockProvider()
	provider.block = make(chan struct{})
	idx := newTestIndexer(t, store, provider, Deps{}, Config{Workers: 1})

	assert.False(t, idx.Cancel(), "nothing to cancel while idle")

	type result struct {
		stats *Statistics
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := idx.IndexFiles(context.Background(), entriesFor(t, paths...), Options{})
		done <- result{s, err}
	}()

	<-provider.started
	assert.True(t, idx.Cancel())

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 0, res.stats.Indexed)
	assert.Equal(t, 5, res.stats.Cancelled)
	assert.Equal(t, 1, provider.getCallCount())

	stats, err := store.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalFiles)
}

func TestIndexFiles_PauseResume(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 3; i++ {
		paths = append(paths, createTestFile(t, dir, fmt.Sprintf("f%d.txt", i), []byte(fmt.Sprintf("c%d", i))))
	}

	provider := newMockProvider()
	provider.block = make(chan struct{})
	idx := newTestIndexer(t, setupTestStorage(t), provider, Deps{}, Config{Workers: 1})

	assert.False(t, idx.Pause(), "nothing to pause while idle")

	done := make(chan *Statistics, 1)
	go func() {
		s, err := idx.IndexFiles(context.Background(), entriesFor(t, paths...), Options{})
		assert.NoError(t, err)
		done <- s
	}()

	<-provider.started
	require.True(t, idx.Pause())
	close(provider.block)

	time.Sleep(3 * pollInterval)
	st := idx.Status()
	assert.True(t, st.Running)
	assert.True(t, st.Paused)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, provider.getCallCount(), "no provider call while paused")

	require.True(t, idx.Resume())
	stats := <-done
	assert.Equal(t, 3, stats.Indexed)
	assert.Equal(t, 3, provider.getCallCount())
	assert.False(t, idx.Status().Running)
}

func TestIndexFiles_EmbeddingFailureIsSoft(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.txt", []byte("a"))

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	emb.generateErr = errors.New("embedding backend down")
	idx := newTestIndexer(t, store, newMockProvider(), Deps{Embedder: emb}, Config{})

	stats, err := idx.IndexFiles(context.Background(), entriesFor(t, a), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	vectors, err := store.GetAllEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestIndexFiles_ReindexEmbedsPreservedEnrichment(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.png", []byte("png bytes"))

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	first := newTestIndexer(t, store, newMockProvider(), Deps{Embedder: emb}, Config{})
	_, err := first.IndexFiles(context.Background(), entriesFor(t, a), Options{})
	require.NoError(t, err)

	second := newTestIndexer(t, store, emptyProvider{source: "none"}, Deps{Embedder: emb}, Config{})
	stats, err := second.IndexFiles(context.Background(), entriesFor(t, a), Options{ForceReindex: true})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Indexed)

	rec, err := store.GetFileByPath(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "thing", rec.Label)
	assert.Equal(t, []string{"alpha", "beta"}, rec.Tags)
	assert.Equal(t, "mock", rec.AISource, "an empty result keeps the source of the kept enrichment")

	texts := emb.embeddedTexts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "thing")
	assert.Contains(t, texts[1], "alpha beta")
	assert.Contains(t, texts[1], "caption for a.png")
}

func TestIndexFiles_OnChange(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.txt", []byte("a"))

	calls := 0
	idx := newTestIndexer(t, setupTestStorage(t), newMockProvider(), Deps{}, Config{OnChange: func() { calls++ }})

	_, err := idx.IndexFiles(context.Background(), entriesFor(t, a), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// unchanged: nothing written, no invalidation
	_, err = idx.IndexFiles(context.Background(), entriesFor(t, a), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.txt", []byte("a"))
	createTestFile(t, dir, "sub/b.md", []byte("# b"))
	createTestFile(t, dir, ".secret/c.txt", []byte("c"))
	createTestFile(t, dir, "scratch.tmp", []byte("tmp"))

	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, newMockProvider(), Deps{}, Config{})

	stats, err := idx.IndexDirectory(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Indexed)

	_, err = idx.IndexDirectory(context.Background(), filepath.Join(dir, "missing"), Options{})
	assert.Error(t, err)
}

func createTree(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		createTestFile(t, dir, fmt.Sprintf("d%02d/f%03d.txt", i%10, i), []byte(fmt.Sprintf("content %d", i)))
	}
	return dir
}

func TestIndexDirectory_CancelDuringScan(t *testing.T) {
	dir := createTree(t, 200)

	store := setupTestStorage(t)
	provider := newMockProvider()
	idx := newTestIndexer(t, store, provider, Deps{}, Config{})

	var seen []Status
	stats, err := idx.IndexDirectory(context.Background(), dir, Options{
		ScanProgress: func(found int) {
			if found == 25 {
				seen = append(seen, idx.Status())
				assert.True(t, idx.Cancel(), "a scanning run can be cancelled")
			}
		},
	})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.True(t, seen[0].Running)
	assert.True(t, seen[0].Scanning)
	assert.Equal(t, 25, seen[0].Total)

	assert.Equal(t, 25, stats.Total)
	assert.Equal(t, 25, stats.Cancelled)
	assert.Equal(t, 0, stats.Indexed)
	assert.Equal(t, 0, provider.getCallCount())
	assert.False(t, idx.Status().Running)

	catalog, err := store.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, catalog.TotalFiles)
}

func TestIndexDirectory_PauseDuringScan(t *testing.T) {
	dir := createTree(t, 40)

	idx := newTestIndexer(t, setupTestStorage(t), newMockProvider(), Deps{}, Config{})

	done := make(chan *Statistics, 1)
	go func() {
		s, err := idx.IndexDirectory(context.Background(), dir, Options{
			ScanProgress: func(found int) {
				if found == 10 {
					idx.Pause()
				}
			},
		})
		assert.NoError(t, err)
		done <- s
	}()

	require.Eventually(t, func() bool {
		st := idx.Status()
		return st.Paused && st.Scanning
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(2 * pollInterval)
	st := idx.Status()
	assert.Equal(t, 10, st.Total, "the walk does not advance while paused")

	require.True(t, idx.Resume())
	stats := <-done
	assert.Equal(t, 40, stats.Total)
	assert.Equal(t, 40, stats.Indexed)
}

func TestIndexFile(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.txt", []byte("a"))

	idx := newTestIndexer(t, setupTestStorage(t), newMockProvider(), Deps{}, Config{})

	stats, err := idx.IndexFile(context.Background(), a, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	stats, err = idx.IndexFile(context.Background(), a, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	stats, err = idx.IndexFile(context.Background(), filepath.Join(dir, "nope.txt"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, KindNotFound, stats.Errors[0].Kind)
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "a.txt", []byte("a"))

	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, newMockProvider(), Deps{}, Config{})
	ctx := context.Background()

	d := idx.Detect(ctx, path, false)
	require.NoError(t, d.HashErr)
	assert.True(t, d.Changed)
	assert.Nil(t, d.Existing)
	assert.Len(t, d.Hash, 64)

	_, err := store.UpsertFile(ctx, &storage.FileRecord{Path: path, ContentHash: d.Hash})
	require.NoError(t, err)

	d = idx.Detect(ctx, path, false)
	assert.False(t, d.Changed)
	require.NotNil(t, d.Existing)

	d = idx.Detect(ctx, path, true)
	assert.True(t, d.Changed)

	d = idx.Detect(ctx, filepath.Join(dir, "missing.txt"), false)
	assert.True(t, d.Changed)
	assert.Error(t, d.HashErr)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.bin", make([]byte, 3*hashChunkSize+17))
	b := createTestFile(t, dir, "b.bin", make([]byte, 3*hashChunkSize+18))

	ha, err := HashFile(context.Background(), a)
	require.NoError(t, err)
	hb, err := HashFile(context.Background(), b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	again, err := HashFile(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, ha, again)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = HashFile(ctx, a)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRelocate(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old", "trip.jpg")
	newPath := createTestFile(t, dir, "new/trip.jpg", jpegBytes)

	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, newMockProvider(), Deps{}, Config{})
	ctx := context.Background()

	_, err := store.UpsertFile(ctx, &storage.FileRecord{Path: oldPath, Label: "vacation"})
	require.NoError(t, err)

	rec, err := idx.Relocate(ctx, oldPath, newPath)
	require.NoError(t, err)
	assert.Equal(t, newPath, rec.Path)
	assert.Equal(t, "vacation", rec.Label)

	// by name once the old path is gone
	other := createTestFile(t, dir, "other/trip.jpg", jpegBytes)
	rec, err = idx.Relocate(ctx, "trip.jpg", other)
	require.NoError(t, err)
	assert.Equal(t, other, rec.Path)

	_, err = idx.Relocate(ctx, "unknown.jpg", other)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = idx.Relocate(ctx, other, filepath.Join(dir, "nowhere.jpg"))
	assert.Error(t, err)
}

func TestBuildRecord_OCRPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "scan.pdf", []byte("%PDF"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	entry := scanner.Entry{Path: path, Name: "scan.pdf"}

	rec := buildRecord(entry, info, "application/pdf", "h", &enricher.Result{ExtractedText: "from model"}, "from document")
	assert.Equal(t, "from model", rec.OCRText)

	rec = buildRecord(entry, info, "application/pdf", "h", &enricher.Result{}, "from document")
	assert.Equal(t, "from document", rec.OCRText)
	assert.Equal(t, rec.ModifiedDate, rec.CreatedDate)

	long := make([]rune, MaxOCRChars+100)
	for i := range long {
		long[i] = 'x'
	}
	rec = buildRecord(entry, info, "", "h", nil, string(long))
	assert.Len(t, []rune(rec.OCRText), MaxOCRChars)
	assert.True(t, rec.HasOCR)
}

func TestEmbeddingText(t *testing.T) {
	rec := &storage.FileRecord{Name: "beach.jpg", Label: "photograph", Tags: []string{"sea", "sand"}, Caption: "A beach"}
	assert.Equal(t, "beach.jpg photograph sea sand A beach", embeddingText(rec))
}

func TestIndexLock_ConcurrentAcquisition(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "TryAcquire succeeds when lock is available",
			testFunc: func(t *testing.T) {
				var lock IndexLock
				assert.True(t, lock.TryAcquire())
				assert.True(t, lock.Held())
				lock.Release()
				assert.False(t, lock.Held())
			},
		},
		{
			name: "TryAcquire fails when lock is held",
			testFunc: func(t *testing.T) {
				var lock IndexLock
				require.True(t, lock.TryAcquire())
				assert.False(t, lock.TryAcquire(), "Second TryAcquire should fail while lock is held")
				lock.Release()
			},
		},
		{
			name: "Concurrent goroutines attempting acquisition",
			testFunc: func(t *testing.T) {
				var lock IndexLock
				const numGoroutines = 100

				acquired := make([]bool, numGoroutines)
				var wg sync.WaitGroup
				wg.Add(numGoroutines)
				for i := 0; i < numGoroutines; i++ {
					go func(i int) {
						defer wg.Done()
						acquired[i] = lock.TryAcquire()
					}(i)
				}
				wg.Wait()

				successCount := 0
				for _, ok := range acquired {
					if ok {
						successCount++
					}
				}
				assert.Equal(t, 1, successCount, "Exactly one goroutine should acquire the lock")
				lock.Release()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
