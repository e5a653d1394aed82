package embedbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedbase/ai/mock"
	"github.com/poiesic/embedbase/config"
	"github.com/poiesic/embedbase/ingestion"
	"github.com/poiesic/embedbase/server"
	"github.com/poiesic/embedbase/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Backend: "badger", Path: filepath.Join(t.TempDir(), "db")}
	cfg.Embedder = config.EmbedderConfig{Provider: "mock", Dimensions: 16, MaxTokens: 50}
	return cfg
}

func post(t *testing.T, h http.Handler, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		app, err := New(nil)
		require.NoError(t, err)
		assert.Equal(t, "badger", app.Config().Store.Backend)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = "redis"
		_, err := New(cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestAppFromConfig(t *testing.T) {
	ctx := context.Background()
	app, err := New(testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	h, err := app.Handler(ctx)
	require.NoError(t, err)

	w := post(t, h, "/v1/zoo", map[string]any{"documents": []map[string]any{
		{"data": "The lion is the king of the jungle"},
		{"data": "The lion is a large cat"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	store, err := app.Store(ctx)
	require.NoError(t, err)
	datasets, err := store.Datasets(ctx, "")
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, 2, datasets[0].DocumentsCount)

	searcher, err := app.Searcher(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, searcher.MaxTopK())
}

func TestAppUse(t *testing.T) {
	ctx := context.Background()
	app, err := New(testConfig(t))
	require.NoError(t, err)

	store, err := memory.NewStore()
	require.NoError(t, err)
	defer store.Close()
	embedder := mock.NewMockEmbedder(mock.WithDimensions(8))

	require.NoError(t, app.UseStore(store))
	require.NoError(t, app.UseEmbedder(embedder))
	require.NoError(t, app.UseMiddleware(func(c *gin.Context) {
		server.SetTenantID(c, "acme")
	}))
	assert.Error(t, app.UseStore(nil))
	assert.Error(t, app.UseEmbedder(nil))

	pipeline, err := app.Pipeline(ctx)
	require.NoError(t, err)
	text := "hello"
	docs, err := pipeline.Add(ctx, ingestion.AddRequest{
		DatasetID: "greetings",
		Documents: []ingestion.Candidate{{Data: &text}},
		StoreData: true,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Embedding, 8)
	assert.Equal(t, 1, embedder.CallCount())

	h, err := app.Handler(ctx)
	require.NoError(t, err)
	w := post(t, h, "/v1/greetings", map[string]any{"documents": []map[string]any{{"data": "hi"}}})
	require.Equal(t, http.StatusOK, w.Code)

	tenantDatasets, err := store.Datasets(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, tenantDatasets, 1)
	assert.Equal(t, 1, tenantDatasets[0].DocumentsCount)

	assert.ErrorIs(t, app.UseStore(store), ErrAlreadyBuilt)
	assert.ErrorIs(t, app.UseMiddleware(), ErrAlreadyBuilt)

	// injected stores stay open
	require.NoError(t, app.Close())
	_, err = store.Datasets(ctx, "")
	assert.NoError(t, err)
}

func TestAppTenantHeaderAndMetrics(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Server.TenantHeader = "X-Tenant"
	cfg.Metrics.Enabled = true
	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Close()

	h, err := app.Handler(ctx)
	require.NoError(t, err)
	w := post(t, h, "/v1/notes", map[string]any{"documents": []map[string]any{{"data": "note"}}}, "X-Tenant", "alice")
	require.Equal(t, http.StatusOK, w.Code)

	store, err := app.Store(ctx)
	require.NoError(t, err)
	datasets, err := store.Datasets(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, datasets, 1)
	datasets, err = store.Datasets(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, datasets)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `embedbase_ingest_documents_total{outcome="written"} 1`)
}

func TestAppServe(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestAppBuildFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = config.StoreConfig{Backend: "postgres", DSN: "postgres://127.0.0.1:1/none?connect_timeout=1"}
	app, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = app.Handler(ctx)
	assert.Error(t, err)
}
