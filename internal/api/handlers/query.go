package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mindmesh-ai/mindmesh/internal/api"
	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/service"
)

type RetrievalService interface {
	Query(ctx context.Context, input service.QueryInput) ([]domain.RetrievalResult, error)
}

type QueryHandler struct {
	svc RetrievalService
}

func NewQueryHandler(svc RetrievalService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	CollectionIDs []string `json:"collection_ids"`
	Question      string   `json:"question"`
	TopK          int      `json:"top_k"`
	Threshold     float64  `json:"threshold"`
}

type QueryResultResponse struct {
	Similarity float64              `json:"similarity"`
	Content    string               `json:"content"`
	Metadata   domain.ChunkMetadata `json:"metadata"`
}

type QueryResponse struct {
	Results []QueryResultResponse `json:"results"`
}

// Query runs one similarity search. Results crossing the HTTP boundary are
// always sanitized; an empty result set is a 200, not an error.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = 5
	}

	results, err := h.svc.Query(r.Context(), service.QueryInput{
		CollectionIDs: req.CollectionIDs,
		QueryText:     req.Question,
		TopK:          topK,
		Threshold:     req.Threshold,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	sanitized := service.Sanitize(results)
	resp := &QueryResponse{Results: make([]QueryResultResponse, 0, len(sanitized))}
	for _, res := range sanitized {
		resp.Results = append(resp.Results, QueryResultResponse{
			Similarity: res.Similarity,
			Content:    res.Content,
			Metadata:   res.Metadata,
		})
	}
	api.Success(w, http.StatusOK, resp)
}
