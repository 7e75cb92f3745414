package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mindmesh-ai/mindmesh/internal/api"
	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/ingest"
	"github.com/mindmesh-ai/mindmesh/internal/pagination"
	"github.com/mindmesh-ai/mindmesh/internal/service"
)

type IngestionService interface {
	IngestBatch(ctx context.Context, input service.BatchInput) []service.BatchOutcome
	ListFiles(ctx context.Context, collectionID, cursor string, limit int) (*pagination.PageResult[*domain.IngestedFile], error)
	DeleteFile(ctx context.Context, fileID string) error
}

type IngestHandler struct {
	svc IngestionService
}

func NewIngestHandler(svc IngestionService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// IngestSourceRequest is one URL-based source in a JSON batch.
type IngestSourceRequest struct {
	Plugin string         `json:"plugin"`
	URL    string         `json:"url"`
	Params map[string]any `json:"params"`
}

// IngestBatchRequest ingests URL-based sources into a collection. File
// uploads use the multipart form variant of the same endpoint.
type IngestBatchRequest struct {
	Sources      []IngestSourceRequest `json:"sources"`
	ChunkSize    int                   `json:"chunk_size"`
	ChunkOverlap int                   `json:"chunk_overlap"`
	Strategy     string                `json:"strategy"`
}

// IngestOutcomeResponse is the per-file entry of a batch response. A failed
// file reports its error without affecting siblings.
type IngestOutcomeResponse struct {
	Filename   string `json:"filename"`
	FileID     string `json:"file_id,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
}

type IngestBatchResponse struct {
	Results []IngestOutcomeResponse `json:"results"`
}

type FileResponse struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	Filename     string `json:"filename"`
	ByteSize     int64  `json:"byte_size"`
	ContentType  string `json:"content_type,omitempty"`
	Plugin       string `json:"plugin"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Strategy     string `json:"strategy"`
	SourceURL    string `json:"source_url,omitempty"`
	ChunkCount   int    `json:"chunk_count"`
	CreatedAt    string `json:"created_at"`
}

type FileListResponse struct {
	Items      []*FileResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}

func fileToResponse(f *domain.IngestedFile) *FileResponse {
	return &FileResponse{
		ID:           f.ID,
		CollectionID: f.CollectionID,
		Filename:     f.Filename,
		ByteSize:     f.ByteSize,
		ContentType:  f.ContentType,
		Plugin:       f.Plugin,
		ChunkSize:    f.ChunkSize,
		ChunkOverlap: f.ChunkOverlap,
		Strategy:     string(f.Strategy),
		SourceURL:    f.SourceURL,
		ChunkCount:   f.ChunkCount,
		CreatedAt:    f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Ingest accepts either a multipart form of uploaded files or a JSON list of
// URL sources and runs them as one batch. Per-file failures are reported in
// the per-file results; the batch itself succeeds whenever it was runnable.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "id")
	if collectionID == "" {
		api.Error(w, http.StatusBadRequest, "collection id is required")
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var input service.BatchInput
	var err error
	switch mediaType {
	case "multipart/form-data":
		input, err = parseMultipartBatch(r, collectionID)
	default:
		input, err = parseJSONBatch(r, collectionID)
	}
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(input.Items) == 0 {
		api.Error(w, http.StatusBadRequest, "no sources provided")
		return
	}

	outcomes := h.svc.IngestBatch(r.Context(), input)

	resp := &IngestBatchResponse{Results: make([]IngestOutcomeResponse, 0, len(outcomes))}
	for _, o := range outcomes {
		entry := IngestOutcomeResponse{Filename: o.Filename}
		if o.Err != nil {
			entry.Error = o.Err.Error()
			entry.ErrorCode = domainCode(o.Err)
		} else {
			entry.FileID = o.Result.FileID
			entry.ChunkCount = o.Result.ChunkCount
		}
		resp.Results = append(resp.Results, entry)
	}
	api.Success(w, http.StatusOK, resp)
}

func domainCode(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func parseMultipartBatch(r *http.Request, collectionID string) (service.BatchInput, error) {
	// the router's MaxBodyBytes middleware bounds the memory impact
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return service.BatchInput{}, err
	}

	input := service.BatchInput{CollectionID: collectionID}
	if err := parseChunkConfig(r.FormValue("chunk_size"), r.FormValue("chunk_overlap"), r.FormValue("strategy"), &input); err != nil {
		return service.BatchInput{}, err
	}

	pluginName := r.FormValue("plugin")
	if pluginName == "" {
		pluginName = "file"
	}

	var params map[string]any
	if raw := r.FormValue("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return service.BatchInput{}, err
		}
	}

	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			return service.BatchInput{}, err
		}
		input.Items = append(input.Items, service.BatchItem{
			PluginName: pluginName,
			Source: ingest.Source{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Reader:      f,
			},
			Params: params,
		})
	}
	return input, nil
}

func parseJSONBatch(r *http.Request, collectionID string) (service.BatchInput, error) {
	var req IngestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return service.BatchInput{}, err
	}

	input := service.BatchInput{
		CollectionID: collectionID,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
		Strategy:     domain.ChunkingStrategy(req.Strategy),
	}
	for _, src := range req.Sources {
		pluginName := src.Plugin
		if pluginName == "" {
			pluginName = "web"
		}
		input.Items = append(input.Items, service.BatchItem{
			PluginName: pluginName,
			Source:     ingest.Source{URL: src.URL},
			Params:     src.Params,
		})
	}
	return input, nil
}

func parseChunkConfig(size, overlap, strategy string, input *service.BatchInput) error {
	if size != "" {
		parsed, err := strconv.Atoi(size)
		if err != nil {
			return err
		}
		input.ChunkSize = parsed
	}
	if overlap != "" {
		parsed, err := strconv.Atoi(overlap)
		if err != nil {
			return err
		}
		input.ChunkOverlap = parsed
	}
	input.Strategy = domain.ChunkingStrategy(strategy)
	return nil
}

func (h *IngestHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "id")
	if collectionID == "" {
		api.Error(w, http.StatusBadRequest, "collection id is required")
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

	page, err := h.svc.ListFiles(r.Context(), collectionID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &FileListResponse{
		Items:      make([]*FileResponse, 0, len(page.Items)),
		NextCursor: page.Cursor,
		HasMore:    page.HasMore,
	}
	for _, f := range page.Items {
		resp.Items = append(resp.Items, fileToResponse(f))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *IngestHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if fileID == "" {
		api.Error(w, http.StatusBadRequest, "file id is required")
		return
	}

	if err := h.svc.DeleteFile(r.Context(), fileID); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
