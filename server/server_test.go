package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedbase/ai/mock"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/ingestion"
	"github.com/poiesic/embedbase/metrics"
	"github.com/poiesic/embedbase/search"
	"github.com/poiesic/embedbase/storage"
	"github.com/poiesic/embedbase/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var zoo = []string{
	"The lion is the king of the jungle",
	"The lion is a large cat",
	"The lion is a carnivore",
}

type fixture struct {
	server   *Server
	store    storage.VectorStore
	embedder *mock.MockEmbedder
}

func setupServer(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedder := mock.NewMockEmbedder(mock.WithDimensions(16), mock.WithMaxWords(50))
	pipeline, err := ingestion.NewPipeline(store, embedder)
	require.NoError(t, err)
	searcher, err := search.NewSearcher(store, embedder)
	require.NoError(t, err)

	srv, err := New(store, pipeline, searcher, opts...)
	require.NoError(t, err)
	return &fixture{server: srv, store: store, embedder: embedder}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func documents(texts ...string) map[string]any {
	docs := make([]map[string]any, len(texts))
	for i, text := range texts {
		docs[i] = map[string]any{"data": text}
	}
	return map[string]any{"documents": docs}
}

func datasetCount(t *testing.T, f *fixture, datasetID string, headers ...string) int {
	t.Helper()
	w := f.do(t, http.MethodGet, "/v1/datasets", nil, headers...)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[datasetsResponse](t, w)
	for _, d := range resp.Datasets {
		if d.DatasetID == datasetID {
			return d.DocumentsCount
		}
	}
	return 0
}

func TestNew(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	embedder := mock.NewMockEmbedder()
	pipeline, err := ingestion.NewPipeline(store, embedder)
	require.NoError(t, err)
	searcher, err := search.NewSearcher(store, embedder)
	require.NoError(t, err)

	_, err = New(nil, pipeline, searcher)
	assert.Equal(t, ErrStoreRequired, err)
	_, err = New(store, nil, searcher)
	assert.Equal(t, ErrPipelineRequired, err)
	_, err = New(store, pipeline, nil)
	assert.Equal(t, ErrSearcherRequired, err)
}

func TestZooScenario(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/v1/zoo", documents(zoo...))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[addResponse](t, w)
	require.Len(t, first.Results, 3)
	seen := map[string]bool{}
	for i, r := range first.Results {
		assert.Equal(t, zoo[i], r.Data)
		assert.Equal(t, core.ContentHash(zoo[i]), r.Hash)
		assert.Len(t, r.Embedding, 16)
		seen[r.ID] = true
	}
	assert.Len(t, seen, 3)

	w = f.do(t, http.MethodPost, "/v1/zoo", documents(zoo...))
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[addResponse](t, w)
	assert.Len(t, second.Results, 3)
	assert.Equal(t, 3, datasetCount(t, f, "zoo"))

	w = f.do(t, http.MethodPost, "/v1/zoo/search", map[string]any{"query": "Feline animal", "topK": 6})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[searchResponse](t, w)
	assert.Equal(t, "Feline animal", resp.Query)
	require.Len(t, resp.Similarities, 3)
	var got []string
	for _, s := range resp.Similarities {
		got = append(got, s.Data)
	}
	assert.ElementsMatch(t, zoo, got)
}

func TestAddDocuments(t *testing.T) {
	t.Run("oversized document rejects the whole batch", func(t *testing.T) {
		f := setupServer(t)
		texts := make([]string, 10)
		for i := range texts {
			texts[i] = fmt.Sprintf("short document %d", i)
		}
		texts[4] = strings.Repeat("word ", 60)

		w := f.do(t, http.MethodPost, "/v1/docs", documents(texts...))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode[map[string]string](t, w)
		assert.Contains(t, body["error"], "#4")
		assert.Equal(t, 0, f.embedder.CallCount())
		assert.Equal(t, 0, datasetCount(t, f, "docs"))

		w = f.do(t, http.MethodPost, "/v1/docs/search", map[string]any{"query": "short document 1"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[searchResponse](t, w).Similarities)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := setupServer(t)
		w := f.do(t, http.MethodPost, "/v1/docs", `{"documents": [`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
	})

	t.Run("missing documents", func(t *testing.T) {
		f := setupServer(t)
		w := f.do(t, http.MethodPost, "/v1/docs", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty documents", func(t *testing.T) {
		f := setupServer(t)
		w := f.do(t, http.MethodPost, "/v1/docs", `{"documents": []}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[addResponse](t, w).Results)
		assert.Equal(t, 0, f.embedder.CallCount())
	})

	t.Run("metadata round trip", func(t *testing.T) {
		f := setupServer(t)
		body := map[string]any{"documents": []map[string]any{
			{"data": "tagged", "metadata": map[string]any{"source": "a", "page": 3}},
		}}
		w := f.do(t, http.MethodPost, "/v1/docs", body)
		require.Equal(t, http.StatusOK, w.Code)
		results := decode[addResponse](t, w).Results
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].Metadata["source"])
		assert.EqualValues(t, 3, results[0].Metadata["page"])
	})

	t.Run("storeData false keeps text out of the store", func(t *testing.T) {
		f := setupServer(t)
		w := f.do(t, http.MethodPost, "/v1/docs", map[string]any{
			"documents": []map[string]any{{"data": "secret text"}},
			"storeData": false,
		})
		require.Equal(t, http.StatusOK, w.Code)
		results := decode[addResponse](t, w).Results
		require.Len(t, results, 1)

		stored, err := f.store.Select(context.Background(), storage.SelectQuery{IDs: []string{results[0].ID}})
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Empty(t, stored[0].Data)
		assert.Equal(t, core.ContentHash("secret text"), stored[0].Hash)
	})

	t.Run("embedder failure is a server error", func(t *testing.T) {
		f := setupServer(t)
		f.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("provider down")
		}
		w := f.do(t, http.MethodPost, "/v1/docs", documents("hello"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, decode[map[string]string](t, w)["error"], "provider down")
	})
}

func TestDeleteDocuments(t *testing.T) {
	f := setupServer(t)
	w := f.do(t, http.MethodPost, "/v1/docs", documents("one", "two", "three"))
	require.Equal(t, http.StatusOK, w.Code)
	results := decode[addResponse](t, w).Results

	w = f.do(t, http.MethodDelete, "/v1/docs", map[string]any{"ids": []string{results[0].ID, results[2].ID}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
	assert.Equal(t, 1, datasetCount(t, f, "docs"))

	w = f.do(t, http.MethodDelete, "/v1/docs", `{"ids": []}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/v1/docs", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch(t *testing.T) {
	t.Run("topK capped by server ceiling", func(t *testing.T) {
		f := setupServer(t)
		texts := make([]string, 12)
		for i := range texts {
			texts[i] = fmt.Sprintf("document number %d", i)
		}
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/docs", documents(texts...)).Code)

		w := f.do(t, http.MethodPost, "/v1/docs/search", map[string]any{"query": "document", "topK": 100})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[searchResponse](t, w).Similarities, search.DefaultMaxTopK)
	})

	t.Run("empty query skips embedder", func(t *testing.T) {
		f := setupServer(t)
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/docs", documents("hello")).Code)
		f.embedder.Reset()

		w := f.do(t, http.MethodPost, "/v1/docs/search", map[string]any{"query": ""})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"query": "", "similarities": []}`, w.Body.String())
		assert.Equal(t, 0, f.embedder.CallCount())
	})

	t.Run("where filter", func(t *testing.T) {
		f := setupServer(t)
		body := map[string]any{"documents": []map[string]any{
			{"data": "alpha one", "metadata": map[string]any{"source": "a"}},
			{"data": "beta one", "metadata": map[string]any{"source": "b"}},
			{"data": "alpha two", "metadata": map[string]any{"source": "a"}},
		}}
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/docs", body).Code)

		for _, query := range []string{"beta one", "alpha", "anything"} {
			w := f.do(t, http.MethodPost, "/v1/docs/search", map[string]any{
				"query": query,
				"where": map[string]any{"source": "a"},
			})
			require.Equal(t, http.StatusOK, w.Code)
			sims := decode[searchResponse](t, w).Similarities
			assert.Len(t, sims, 2)
			for _, s := range sims {
				assert.Equal(t, "a", s.Metadata["source"], query)
			}
		}
	})

	t.Run("oversized query", func(t *testing.T) {
		f := setupServer(t)
		w := f.do(t, http.MethodPost, "/v1/docs/search", map[string]any{"query": strings.Repeat("word ", 60)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestClearDataset(t *testing.T) {
	f := setupServer(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/a", documents("first", "second")).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/b", documents("third")).Code)

	w := f.do(t, http.MethodGet, "/v1/a/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	assert.Equal(t, 0, datasetCount(t, f, "a"))
	assert.Equal(t, 1, datasetCount(t, f, "b"))

	w = f.do(t, http.MethodPost, "/v1/a/search", map[string]any{"query": "first"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[searchResponse](t, w).Similarities)
}

func TestListDatasets(t *testing.T) {
	f := setupServer(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/b", documents("x")).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/a", documents("y", "z")).Code)

	w := f.do(t, http.MethodGet, "/v1/datasets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[datasetsResponse](t, w)
	require.Len(t, resp.Datasets, 2)
	assert.Equal(t, "a", resp.Datasets[0].DatasetID)
	assert.Equal(t, 2, resp.Datasets[0].DocumentsCount)
	assert.NotNil(t, resp.Datasets[0].CreatedAt)
	assert.Equal(t, "b", resp.Datasets[1].DatasetID)
}

func TestTenantScoping(t *testing.T) {
	f := setupServer(t, WithMiddleware(HeaderTenant("X-Tenant")))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/notes", documents("shared text"), "X-Tenant", "alice").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/notes", documents("shared text", "bob only"), "X-Tenant", "bob").Code)

	assert.Equal(t, 1, datasetCount(t, f, "notes", "X-Tenant", "alice"))
	assert.Equal(t, 2, datasetCount(t, f, "notes", "X-Tenant", "bob"))
	assert.Equal(t, 3, datasetCount(t, f, "notes"))

	w := f.do(t, http.MethodPost, "/v1/notes/search", map[string]any{"query": "bob only"}, "X-Tenant", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	sims := decode[searchResponse](t, w).Similarities
	require.Len(t, sims, 1)
	assert.Equal(t, "shared text", sims[0].Data)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/notes/clear", nil, "X-Tenant", "bob").Code)
	assert.Equal(t, 1, datasetCount(t, f, "notes"))
}

func TestCustomTenantMiddleware(t *testing.T) {
	var seen string
	f := setupServer(t, WithMiddleware(
		func(c *gin.Context) { SetTenantID(c, "fixed") },
		func(c *gin.Context) { seen = TenantID(c) },
	))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/datasets", nil).Code)
	assert.Equal(t, "fixed", seen)
}

func TestHealthAndRequestID(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = f.do(t, http.MethodGet, "/health", nil, RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("served when configured", func(t *testing.T) {
		f := setupServer(t, WithMetrics(metrics.New("")))
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)

		w := f.do(t, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `embedbase_http_requests_total{method="GET",path="/health",status="200"} 1`)
	})

	t.Run("absent otherwise", func(t *testing.T) {
		f := setupServer(t)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/metrics", nil).Code)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrapped: %w", core.ErrValidation)))
	assert.Equal(t, http.StatusBadRequest, statusFor(&ingestion.OversizedError{Indexes: []int{0}, Excerpts: []string{"x"}}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(storage.ErrStore))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
