package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/llm"
)

// MockAssistantRepository is a mock implementation of AssistantRepositoryInterface
type MockAssistantRepository struct {
	mock.Mock
}

func (m *MockAssistantRepository) GetByID(ctx context.Context, id string) (*domain.Assistant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Assistant), args.Error(1)
}

func (m *MockAssistantRepository) List(ctx context.Context) ([]*domain.Assistant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Assistant), args.Error(1)
}

// capturingAuditRepo records audit entries for assertions.
type capturingAuditRepo struct {
	mu      sync.Mutex
	entries []CompletionLogEntry
	done    chan struct{}
}

func newCapturingAuditRepo() *capturingAuditRepo {
	return &capturingAuditRepo{done: make(chan struct{}, 8)}
}

func (c *capturingAuditRepo) CreateCompletionLog(_ context.Context, entry CompletionLogEntry) (string, error) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
	c.done <- struct{}{}
	return "log-1", nil
}

// waitForEntry blocks until one audit write has landed.
func (c *capturingAuditRepo) waitForEntry(t *testing.T) CompletionLogEntry {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit entry")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[len(c.entries)-1]
}

// scriptedConnector emits a fixed token sequence, then ends with finalErr.
type scriptedConnector struct {
	provider domain.Provider
	tokens   []string
	finalErr error

	mu     sync.Mutex
	gotReq llm.Request
}

func (c *scriptedConnector) Provider() domain.Provider {
	return c.provider
}

func (c *scriptedConnector) Complete(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	c.mu.Lock()
	c.gotReq = req
	c.mu.Unlock()

	out := llm.NewStream()
	go func() {
		for _, token := range c.tokens {
			if !out.Send(ctx, token) {
				out.Close(domain.NewDomainErrorWithCause(domain.ErrCodeCancelled, "completion cancelled by caller", ctx.Err()))
				return
			}
		}
		out.Close(c.finalErr)
	}()
	return out, nil
}

func (c *scriptedConnector) request() llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gotReq
}

// blockingConnector sends one token then holds the stream open until its
// context is cancelled.
type blockingConnector struct {
	provider domain.Provider
}

func (c *blockingConnector) Provider() domain.Provider {
	return c.provider
}

func (c *blockingConnector) Complete(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	out := llm.NewStream()
	go func() {
		out.Send(ctx, "partial")
		<-ctx.Done()
		out.Close(domain.NewDomainErrorWithCause(domain.ErrCodeCancelled, "completion cancelled by caller", ctx.Err()))
	}()
	return out, nil
}

type completionFixture struct {
	assistants  *MockAssistantRepository
	collections *MockCollectionRepository
	chunks      *MockChunkRepository
	audit       *capturingAuditRepo
	service     *CompletionService
}

func newCompletionFixture(t *testing.T, connectors ...llm.Connector) *completionFixture {
	t.Helper()
	f := &completionFixture{
		assistants:  new(MockAssistantRepository),
		collections: new(MockCollectionRepository),
		chunks:      new(MockChunkRepository),
		audit:       newCapturingAuditRepo(),
	}
	retrieval := NewRetrievalService(f.collections, f.chunks, &fakeEmbedder{})
	f.service = NewCompletionService(f.assistants, retrieval, llm.NewRegistry(connectors...), NewAuditService(f.audit))
	return f
}

func groundedAssistant() *domain.Assistant {
	return &domain.Assistant{
		ID:            "asst-1",
		Name:          "study helper",
		SystemPrompt:  "You answer from course material.",
		Provider:      domain.ProviderOpenAI,
		Model:         "gpt-4o-mini",
		CollectionIDs: []string{"coll-1"},
		TopK:          3,
		Threshold:     0.5,
	}
}

func drainCompletion(t *testing.T, stream *CompletionStream) string {
	t.Helper()
	var b strings.Builder
	for token := range stream.Tokens() {
		b.WriteString(token)
	}
	return b.String()
}

func TestCompletionService_GroundedHappyPath(t *testing.T) {
	connector := &scriptedConnector{
		provider: domain.ProviderOpenAI,
		tokens:   []string{"The ", "answer ", "is 42."},
	}
	f := newCompletionFixture(t, connector)

	assistant := groundedAssistant()
	f.assistants.On("GetByID", mock.Anything, "asst-1").Return(assistant, nil)
	f.collections.On("GetByIDs", mock.Anything, []string{"coll-1"}).Return([]*domain.Collection{
		{ID: "coll-1", EmbeddingModel: "text-embedding-ada-002"},
	}, nil)
	f.chunks.On("SearchNearest", mock.Anything, "coll-1", mock.Anything, 3).Return([]domain.RetrievalResult{
		{
			Similarity: 0.91,
			Content:    "the answer to everything is 42",
			Metadata: domain.ChunkMetadata{
				DocumentID: "file-1",
				Filename:   "answers.txt",
				ChunkIndex: 0,
				ChunkCount: 1,
			},
		},
	}, nil)

	stream, err := f.service.Complete(context.Background(), CompleteInput{
		AssistantID: "asst-1",
		Question:    "what is the answer?",
	})
	require.NoError(t, err)

	got := drainCompletion(t, stream)
	assert.Equal(t, "The answer is 42.", got)
	assert.Equal(t, StateCompleted, stream.State())
	require.NoError(t, stream.Err())
	assert.False(t, stream.Degraded())

	require.Len(t, stream.Citations(), 1)
	assert.Equal(t, "answers.txt", stream.Citations()[0].Filename)

	req := connector.request()
	assert.Contains(t, req.System, "You answer from course material.")
	assert.Contains(t, req.System, "the answer to everything is 42")
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, "what is the answer?", req.Messages[len(req.Messages)-1].Content)

	entry := f.audit.waitForEntry(t)
	assert.Equal(t, CompletionCompleted, entry.Status)
	assert.Equal(t, 1, entry.ContextChunks)
	assert.False(t, entry.RetrievalDegraded)
	assert.Len(t, entry.Citations, 1)
}

func TestCompletionService_NoCollectionsSkipsRetrieval(t *testing.T) {
	connector := &scriptedConnector{provider: domain.ProviderOpenAI, tokens: []string{"hi"}}
	f := newCompletionFixture(t, connector)

	assistant := groundedAssistant()
	assistant.CollectionIDs = nil
	f.assistants.On("GetByID", mock.Anything, "asst-1").Return(assistant, nil)

	stream, err := f.service.Complete(context.Background(), CompleteInput{
		AssistantID: "asst-1",
		Question:    "hello",
	})
	require.NoError(t, err)
	drainCompletion(t, stream)

	assert.Equal(t, StateCompleted, stream.State())
	assert.False(t, stream.Degraded())
	assert.Empty(t, stream.Citations())
	f.chunks.AssertNotCalled(t, "SearchNearest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	entry := f.audit.waitForEntry(t)
	assert.Equal(t, 0, entry.ContextChunks)
	assert.False(t, entry.RetrievalDegraded)
}

func TestCompletionService_RetrievalFailureDegrades(t *testing.T) {
	connector := &scriptedConnector{provider: domain.ProviderOpenAI, tokens: []string{"ungrounded answer"}}
	f := newCompletionFixture(t, connector)

	f.assistants.On("GetByID", mock.Anything, "asst-1").Return(groundedAssistant(), nil)
	f.collections.On("GetByIDs", mock.Anything, []string{"coll-1"}).Return(nil, assert.AnError)

	stream, err := f.service.Complete(context.Background(), CompleteInput{
		AssistantID: "asst-1",
		Question:    "what is the answer?",
	})
	require.NoError(t, err)

	got := drainCompletion(t, stream)
	assert.Equal(t, "ungrounded answer", got)
	assert.Equal(t, StateCompleted, stream.State())
	assert.True(t, stream.Degraded())
	assert.Empty(t, stream.Citations())

	entry := f.audit.waitForEntry(t)
	assert.Equal(t, CompletionCompleted, entry.Status)
	assert.True(t, entry.RetrievalDegraded)
	assert.Equal(t, 0, entry.ContextChunks)
}

func TestCompletionService_UnknownProviderFailsFast(t *testing.T) {
	f := newCompletionFixture(t) // no connectors configured

	f.assistants.On("GetByID", mock.Anything, "asst-1").Return(groundedAssistant(), nil)

	_, err := f.service.Complete(context.Background(), CompleteInput{
		AssistantID: "asst-1",
		Question:    "hi",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	f.collections.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)

	entry := f.audit.waitForEntry(t)
	assert.Equal(t, CompletionFailed, entry.Status)
	assert.Equal(t, domain.ErrCodeUnknownProvider, entry.ErrorCode)
}

func TestCompletionService_UnknownAssistant(t *testing.T) {
	f := newCompletionFixture(t, &scriptedConnector{provider: domain.ProviderOpenAI})

	f.assistants.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrAssistantNotFound)

	_, err := f.service.Complete(context.Background(), CompleteInput{
		AssistantID: "missing",
		Question:    "hi",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAssistantNotFound)
}

func TestCompletionService_EmptyQuestion(t *testing.T) {
	f := newCompletionFixture(t, &scriptedConnector{provider: domain.ProviderOpenAI})

	_, err := f.service.Complete(context.Background(), CompleteInput{AssistantID: "asst-1"})
	require.Error(t, err)
	f.assistants.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestCompletionService_MidStreamFailure(t *testing.T) {
	connector := &scriptedConnector{
		provider: domain.ProviderOpenAI,
		tokens:   []string{"partial ", "output"},
		finalErr: domain.NewDomainErrorWithCause(domain.ErrCodeProviderError, "connection reset", assert.AnError),
	}
	f := newCompletionFixture(t, connector)

	assistant := groundedAssistant()
	assistant.CollectionIDs = nil
	f.assistants.On("GetByID", mock.Anything, "asst-1").Return(assistant, nil)

	stream, err := f.service.Complete(context.Background(), CompleteInput{
		AssistantID: "asst-1",
		Question:    "hi",
	})
	require.NoError(t, err)

	got := drainCompletion(t, stream)
	// tokens delivered before the failure stand
	assert.Equal(t, "partial output", got)
	assert.Equal(t, StateFailed, stream.State())
	assert.ErrorIs(t, stream.Err(), domain.ErrProvider)
	assert.Empty(t, stream.Citations())

	entry := f.audit.waitForEntry(t)
	assert.Equal(t, CompletionFailed, entry.Status)
	assert.Equal(t, domain.ErrCodeProviderError, entry.ErrorCode)
	assert.Empty(t, entry.Citations)
}

func TestCompletionService_CallerCancellation(t *testing.T) {
	connector := &blockingConnector{provider: domain.ProviderOpenAI}
	f := newCompletionFixture(t, connector)

	assistant := groundedAssistant()
	assistant.CollectionIDs = nil
	f.assistants.On("GetByID", mock.Anything, "asst-1").Return(assistant, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := f.service.Complete(ctx, CompleteInput{
		AssistantID: "asst-1",
		Question:    "hi",
	})
	require.NoError(t, err)

	first, ok := <-stream.Tokens()
	require.True(t, ok)
	assert.Equal(t, "partial", first)

	cancel()
	for range stream.Tokens() {
	}

	assert.Equal(t, StateCancelled, stream.State())
	assert.ErrorIs(t, stream.Err(), domain.ErrCancelled)
	assert.Empty(t, stream.Citations())

	entry := f.audit.waitForEntry(t)
	assert.Equal(t, CompletionCancelled, entry.Status)
	assert.Equal(t, domain.ErrCodeCancelled, entry.ErrorCode)
}
