package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mindmesh-ai/mindmesh/internal/api"
	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/pagination"
	"github.com/mindmesh-ai/mindmesh/internal/service"
)

// OwnerHeader carries the caller identity forwarded by the surrounding
// platform. Authentication itself happens upstream of this service.
const OwnerHeader = "X-Owner-ID"

type CollectionService interface {
	Create(ctx context.Context, input service.CreateCollectionInput) (*domain.Collection, error)
	GetByID(ctx context.Context, id string) (*domain.Collection, error)
	List(ctx context.Context, input service.ListCollectionsInput) (*pagination.PageResult[*domain.Collection], error)
	Update(ctx context.Context, input service.UpdateCollectionInput) (*domain.Collection, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, id string) (int64, error)
}

type CollectionHandler struct {
	svc CollectionService
}

func NewCollectionHandler(svc CollectionService) *CollectionHandler {
	return &CollectionHandler{svc: svc}
}

type CreateCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

type UpdateCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

type CollectionResponse struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Visibility     string `json:"visibility"`
	EmbeddingModel string `json:"embedding_model"`
	CreatedAt      string `json:"created_at"`
}

type CollectionListResponse struct {
	Items      []*CollectionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
	HasMore    bool                  `json:"has_more"`
}

type CollectionStatsResponse struct {
	CollectionID string `json:"collection_id"`
	ChunkCount   int64  `json:"chunk_count"`
}

func collectionToResponse(c *domain.Collection) *CollectionResponse {
	return &CollectionResponse{
		ID:             c.ID,
		OwnerID:        c.OwnerID,
		Name:           c.Name,
		Description:    c.Description,
		Visibility:     string(c.Visibility),
		EmbeddingModel: c.EmbeddingModel,
		CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerHeader)
	if ownerID == "" {
		api.Error(w, http.StatusBadRequest, "missing "+OwnerHeader+" header")
		return
	}

	var req CreateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	collection, err := h.svc.Create(r.Context(), service.CreateCollectionInput{
		OwnerID:     ownerID,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  domain.Visibility(req.Visibility),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, collectionToResponse(collection))
}

func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	collection, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, collectionToResponse(collection))
}

func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerHeader)
	if ownerID == "" {
		api.Error(w, http.StatusBadRequest, "missing "+OwnerHeader+" header")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.svc.List(r.Context(), service.ListCollectionsInput{
		OwnerID: ownerID,
		Cursor:  r.URL.Query().Get("cursor"),
		Limit:   limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &CollectionListResponse{
		Items:      make([]*CollectionResponse, 0, len(page.Items)),
		NextCursor: page.Cursor,
		HasMore:    page.HasMore,
	}
	for _, c := range page.Items {
		resp.Items = append(resp.Items, collectionToResponse(c))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req UpdateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	collection, err := h.svc.Update(r.Context(), service.UpdateCollectionInput{
		CollectionID: id,
		Name:         req.Name,
		Description:  req.Description,
		Visibility:   domain.Visibility(req.Visibility),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, collectionToResponse(collection))
}

func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CollectionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	count, err := h.svc.Stats(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, &CollectionStatsResponse{CollectionID: id, ChunkCount: count})
}
