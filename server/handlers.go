package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/ingestion"
	"github.com/poiesic/embedbase/search"
)

type documentInput struct {
	Data     *string        `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type addRequest struct {
	Documents []documentInput `json:"documents"`
	StoreData *bool           `json:"storeData,omitempty"`
}

type documentResult struct {
	ID        string         `json:"id"`
	Data      string         `json:"data"`
	Embedding []float32      `json:"embedding"`
	Hash      string         `json:"hash"`
	Metadata  map[string]any `json:"metadata"`
}

type addResponse struct {
	Results []documentResult `json:"results"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

type searchRequest struct {
	Query string         `json:"query"`
	TopK  int            `json:"topK,omitempty"`
	Where map[string]any `json:"where,omitempty"`
}

type similarity struct {
	Score     float32        `json:"score"`
	ID        string         `json:"id"`
	Data      string         `json:"data"`
	Hash      string         `json:"hash"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

type searchResponse struct {
	Query        string       `json:"query"`
	Similarities []similarity `json:"similarities"`
}

type datasetInfo struct {
	DatasetID      string     `json:"datasetId"`
	DocumentsCount int        `json:"documentsCount"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}

type datasetsResponse struct {
	Datasets []datasetInfo `json:"datasets"`
}

var errMissingDocuments = fmt.Errorf("%w: documents is required", core.ErrValidation)

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, core.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", RequestID(c), "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// bind decodes the JSON body, reporting malformed input as a validation error.
func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		s.fail(c, fmt.Errorf("%w: malformed request body: %w", core.ErrValidation, err))
		return false
	}
	return true
}

func (s *Server) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.storeTimeout)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) addDocuments(c *gin.Context) {
	var req addRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Documents == nil {
		s.fail(c, errMissingDocuments)
		return
	}

	storeData := true
	if req.StoreData != nil {
		storeData = *req.StoreData
	}
	candidates := make([]ingestion.Candidate, len(req.Documents))
	for i, d := range req.Documents {
		candidates[i] = ingestion.Candidate{Data: d.Data, Metadata: d.Metadata}
	}

	docs, err := s.pipeline.Add(c.Request.Context(), ingestion.AddRequest{
		DatasetID: c.Param("datasetId"),
		TenantID:  TenantID(c),
		Documents: candidates,
		StoreData: storeData,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := addResponse{Results: make([]documentResult, len(docs))}
	for i, d := range docs {
		resp.Results[i] = documentResult{
			ID:        d.ID,
			Data:      d.Data,
			Embedding: d.Embedding,
			Hash:      d.Hash,
			Metadata:  d.Metadata,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteDocuments(c *gin.Context) {
	var req deleteRequest
	if !s.bind(c, &req) {
		return
	}
	datasetID := c.Param("datasetId")
	if err := core.ValidateDatasetID(datasetID); err != nil {
		s.fail(c, err)
		return
	}
	if len(req.IDs) > 0 {
		ctx, cancel := s.storeContext(c)
		defer cancel()
		if err := s.store.Delete(ctx, req.IDs, datasetID, TenantID(c)); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if !s.bind(c, &req) {
		return
	}

	matches, err := s.searcher.Search(c.Request.Context(), search.Query{
		Text:      req.Query,
		TopK:      req.TopK,
		DatasetID: c.Param("datasetId"),
		TenantID:  TenantID(c),
		Where:     req.Where,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := searchResponse{Query: req.Query, Similarities: make([]similarity, len(matches))}
	for i, m := range matches {
		resp.Similarities[i] = similarity{
			Score:     m.Score,
			ID:        m.ID,
			Data:      m.Data,
			Hash:      m.Hash,
			Embedding: m.Embedding,
			Metadata:  m.Metadata,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) clearDataset(c *gin.Context) {
	datasetID := c.Param("datasetId")
	if err := core.ValidateDatasetID(datasetID); err != nil {
		s.fail(c, err)
		return
	}
	ctx, cancel := s.storeContext(c)
	defer cancel()
	if err := s.store.Clear(ctx, datasetID, TenantID(c)); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("dataset cleared", "dataset", datasetID, "tenant", TenantID(c), "request_id", RequestID(c))
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) listDatasets(c *gin.Context) {
	ctx, cancel := s.storeContext(c)
	defer cancel()
	datasets, err := s.store.Datasets(ctx, TenantID(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := datasetsResponse{Datasets: make([]datasetInfo, len(datasets))}
	for i, d := range datasets {
		resp.Datasets[i] = datasetInfo{DatasetID: d.DatasetID, DocumentsCount: d.DocumentsCount}
		if !d.CreatedAt.IsZero() {
			createdAt := d.CreatedAt.UTC()
			resp.Datasets[i].CreatedAt = &createdAt
		}
	}
	c.JSON(http.StatusOK, resp)
}
