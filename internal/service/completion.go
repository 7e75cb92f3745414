package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/llm"
	"github.com/mindmesh-ai/mindmesh/internal/telemetry"
)

// CompletionState tracks where a request is in its lifecycle. The happy path
// runs ResolvingConfig through Completed in order; Failed and Cancelled are
// reachable from any prior state.
type CompletionState string

const (
	StateResolvingConfig CompletionState = "resolving_config"
	StateRetrieving      CompletionState = "retrieving"
	StateAssembling      CompletionState = "assembling"
	StateDispatching     CompletionState = "dispatching"
	StateStreaming       CompletionState = "streaming"
	StateCompleted       CompletionState = "completed"
	StateFailed          CompletionState = "failed"
	StateCancelled       CompletionState = "cancelled"
)

// CompletionService drives one end-to-end answer: resolve the assistant's
// configuration, retrieve grounding context, assemble the prompt, dispatch
// to the matching connector, and stream tokens back with citations attached
// after end-of-stream.
type CompletionService struct {
	assistantRepo AssistantRepositoryInterface
	retrieval     *RetrievalService
	connectors    *llm.Registry
	audit         *AuditService
}

func NewCompletionService(
	assistantRepo AssistantRepositoryInterface,
	retrieval *RetrievalService,
	connectors *llm.Registry,
	audit *AuditService,
) *CompletionService {
	return &CompletionService{
		assistantRepo: assistantRepo,
		retrieval:     retrieval,
		connectors:    connectors,
		audit:         audit,
	}
}

// CompleteInput is one completion request.
type CompleteInput struct {
	AssistantID string           `json:"assistant_id"`
	Question    string           `json:"question"`
	History     []domain.Message `json:"history"`
}

// CompletionStream delivers tokens as the provider produces them. Citations,
// State, and Err are only meaningful after Tokens() closes; citations are
// attached only on a clean end-of-stream.
type CompletionStream struct {
	tokens    chan string
	citations []domain.Citation
	degraded  bool
	state     CompletionState
	err       error
}

func (c *CompletionStream) Tokens() <-chan string {
	return c.tokens
}

// Citations lists the sources behind the surviving context chunks, in prompt
// order. Empty when the stream failed or the answer was ungrounded.
func (c *CompletionStream) Citations() []domain.Citation {
	return c.citations
}

// Degraded reports whether retrieval failed and the answer proceeded without
// grounding context.
func (c *CompletionStream) Degraded() bool {
	return c.degraded
}

func (c *CompletionStream) State() CompletionState {
	return c.state
}

func (c *CompletionStream) Err() error {
	return c.err
}

// Complete runs the pre-streaming states synchronously and returns a stream
// for the rest. A nil error means dispatch succeeded and tokens are coming;
// failures before dispatch are returned directly. Cancelling ctx cancels the
// upstream provider call; tokens already delivered stand.
func (s *CompletionService) Complete(ctx context.Context, input CompleteInput) (*CompletionStream, error) {
	ctx, span := telemetry.StartSpan(ctx, "CompletionService.Complete", telemetry.SpanAttributes{
		AssistantID: input.AssistantID,
		Operation:   "complete",
	})
	defer span.End()

	started := time.Now()

	if input.Question == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "question must not be empty")
	}

	// ResolvingConfig
	assistant, err := s.assistantRepo.GetByID(ctx, input.AssistantID)
	if err != nil {
		s.recordFailure(ctx, input, nil, started, err)
		return nil, err
	}

	// Unknown provider is a configuration error; fail before any network
	// call is made on the assistant's behalf.
	connector, err := s.connectors.Get(assistant.Provider)
	if err != nil {
		s.recordFailure(ctx, input, assistant, started, err)
		return nil, err
	}

	// Retrieving. An assistant without collections answers ungrounded by
	// design of its configuration; a retrieval failure degrades to the same
	// empty context rather than aborting the answer.
	var results []domain.RetrievalResult
	degraded := false
	if assistant.HasCollections() {
		results, err = s.retrieval.Query(ctx, QueryInput{
			CollectionIDs: assistant.CollectionIDs,
			QueryText:     input.Question,
			TopK:          assistant.TopK,
			Threshold:     assistant.Threshold,
		})
		if err != nil {
			degraded = true
			results = nil
			log.Printf("completion: retrieval degraded for assistant %s: %v", assistant.ID, err)
			telemetry.CaptureError(ctx, err, map[string]string{
				"assistant_id": assistant.ID,
				"operation":    "retrieve",
			})
		}
	}

	// Assembling
	prompt := Assemble(AssembleInput{
		SystemPrompt: assistant.SystemPrompt,
		Results:      results,
		History:      input.History,
		Criteria:     assistant.Criteria,
		UserMessage:  input.Question,
		TokenBudget:  assistant.TokenBudget,
	})

	// Dispatching
	providerStream, err := connector.Complete(ctx, llm.Request{
		System:   prompt.System,
		Messages: prompt.Messages,
		Model:    assistant.Model,
	})
	if err != nil {
		s.recordFailure(ctx, input, assistant, started, err)
		return nil, err
	}

	// Streaming
	out := &CompletionStream{
		tokens:   make(chan string, 32),
		degraded: degraded,
		state:    StateStreaming,
	}
	go s.pump(ctx, input, assistant, prompt, providerStream, out, started)
	return out, nil
}

// pump forwards provider tokens to the caller, settles the terminal state,
// and writes the audit entry. Citations attach only after a clean
// end-of-stream.
func (s *CompletionService) pump(
	ctx context.Context,
	input CompleteInput,
	assistant *domain.Assistant,
	prompt *Prompt,
	providerStream *llm.Stream,
	out *CompletionStream,
	started time.Time,
) {
	for token := range providerStream.Tokens() {
		select {
		case out.tokens <- token:
		case <-ctx.Done():
			// drain so the connector goroutine can observe cancellation
			for range providerStream.Tokens() {
			}
		}
	}

	err := providerStream.Err()
	if err == nil && ctx.Err() != nil {
		err = domain.NewDomainErrorWithCause(domain.ErrCodeCancelled, "completion cancelled by caller", ctx.Err())
	}

	status := CompletionCompleted
	switch {
	case err == nil:
		out.state = StateCompleted
		out.citations = prompt.Citations
	case errors.Is(err, domain.ErrCancelled):
		out.state = StateCancelled
		out.err = err
		status = CompletionCancelled
	default:
		out.state = StateFailed
		out.err = err
		status = CompletionFailed
	}
	close(out.tokens)

	entry := CompletionLogEntry{
		AssistantID:       assistant.ID,
		Provider:          assistant.Provider,
		Model:             assistant.Model,
		Question:          input.Question,
		ContextChunks:     prompt.ContextCount,
		RetrievalDegraded: out.degraded,
		Citations:         out.citations,
		Status:            status,
		ErrorCode:         errorCode(err),
		DurationMs:        time.Since(started).Milliseconds(),
	}
	// the request context may already be cancelled; audit on its own
	s.audit.Record(context.WithoutCancel(ctx), entry)
}

func (s *CompletionService) recordFailure(ctx context.Context, input CompleteInput, assistant *domain.Assistant, started time.Time, err error) {
	entry := CompletionLogEntry{
		AssistantID: input.AssistantID,
		Question:    input.Question,
		Status:      CompletionFailed,
		ErrorCode:   errorCode(err),
		DurationMs:  time.Since(started).Milliseconds(),
	}
	if assistant != nil {
		entry.Provider = assistant.Provider
		entry.Model = assistant.Model
	}
	s.audit.Record(ctx, entry)
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return domain.ErrCodeInternalError
}
