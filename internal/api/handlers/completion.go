package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mindmesh-ai/mindmesh/internal/api"
	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/service"
)

type CompletionService interface {
	Complete(ctx context.Context, input service.CompleteInput) (*service.CompletionStream, error)
}

type AssistantReader interface {
	List(ctx context.Context) ([]*domain.Assistant, error)
	GetByID(ctx context.Context, id string) (*domain.Assistant, error)
}

type CompletionHandler struct {
	svc        CompletionService
	assistants AssistantReader
}

func NewCompletionHandler(svc CompletionService, assistants AssistantReader) *CompletionHandler {
	return &CompletionHandler{svc: svc, assistants: assistants}
}

type CompleteRequest struct {
	Question string           `json:"question"`
	History  []domain.Message `json:"history"`
	Stream   bool             `json:"stream"`
}

type CompleteResponse struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
	Degraded  bool              `json:"degraded"`
}

type AssistantResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	CollectionIDs []string `json:"collection_ids"`
	TopK          int      `json:"top_k"`
	Threshold     float64  `json:"threshold"`
	TokenBudget   int      `json:"token_budget"`
	CreatedAt     string   `json:"created_at"`
}

func assistantToResponse(a *domain.Assistant) *AssistantResponse {
	return &AssistantResponse{
		ID:            a.ID,
		Name:          a.Name,
		Provider:      string(a.Provider),
		Model:         a.Model,
		CollectionIDs: a.CollectionIDs,
		TopK:          a.TopK,
		Threshold:     a.Threshold,
		TokenBudget:   a.TokenBudget,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *CompletionHandler) ListAssistants(w http.ResponseWriter, r *http.Request) {
	assistants, err := h.assistants.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*AssistantResponse, 0, len(assistants))
	for _, a := range assistants {
		resp = append(resp, assistantToResponse(a))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *CompletionHandler) GetAssistant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	assistant, err := h.assistants.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, assistantToResponse(assistant))
}

// Complete answers one question with an assistant. With `stream` set the
// response is server-sent events: token events as the provider produces
// them, a citations event after end-of-stream, then done. Without it the
// whole answer is buffered into one JSON response.
func (h *CompletionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	assistantID := chi.URLParam(r, "id")
	if assistantID == "" {
		api.Error(w, http.StatusBadRequest, "assistant id is required")
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stream, err := h.svc.Complete(r.Context(), service.CompleteInput{
		AssistantID: assistantID,
		Question:    req.Question,
		History:     req.History,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if req.Stream {
		h.streamSSE(w, r, stream)
		return
	}
	h.buffered(w, stream)
}

func (h *CompletionHandler) buffered(w http.ResponseWriter, stream *service.CompletionStream) {
	var answer strings.Builder
	for token := range stream.Tokens() {
		answer.WriteString(token)
	}
	if err := stream.Err(); err != nil {
		api.HandleError(w, err)
		return
	}

	citations := stream.Citations()
	if citations == nil {
		citations = []domain.Citation{}
	}
	api.Success(w, http.StatusOK, &CompleteResponse{
		Answer:    answer.String(),
		Citations: citations,
		Degraded:  stream.Degraded(),
	})
}

func (h *CompletionHandler) streamSSE(w http.ResponseWriter, r *http.Request, stream *service.CompletionStream) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for token := range stream.Tokens() {
		writeSSE(w, "token", map[string]string{"token": token})
		flusher.Flush()
	}

	if err := stream.Err(); err != nil {
		// tokens already delivered stand; the error event tells the caller
		// the answer is incomplete
		writeSSE(w, "error", map[string]string{
			"error": err.Error(),
			"code":  domainCode(err),
		})
		flusher.Flush()
		return
	}

	citations := stream.Citations()
	if citations == nil {
		citations = []domain.Citation{}
	}
	writeSSE(w, "citations", citations)
	writeSSE(w, "done", map[string]bool{"degraded": stream.Degraded()})
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
