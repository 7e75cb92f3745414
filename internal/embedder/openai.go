package embedder

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrEmptyBatch is returned when no texts are supplied
	ErrEmptyBatch = errors.New("texts cannot be empty")
	// ErrWrongDimensions is returned when an embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// EmbeddingAPI defines the slice of the OpenAI client used here, so tests
// can substitute a fake.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	api        EmbeddingAPI
	model      openai.EmbeddingModel
	dimensions int
}

// Config holds explicit configuration for the embedder.
type Config struct {
	APIKey     string
	Model      openai.EmbeddingModel
	Dimensions int
}

// NewOpenAIEmbedder creates an embedder using defaults.
func NewOpenAIEmbedder(apiKey string) *OpenAIEmbedder {
	return NewOpenAIEmbedderWithConfig(Config{APIKey: apiKey})
}

// NewOpenAIEmbedderWithConfig creates an embedder with explicit configuration.
func NewOpenAIEmbedderWithConfig(cfg Config) *OpenAIEmbedder {
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}
	return &OpenAIEmbedder{
		api:        openai.NewClient(cfg.APIKey),
		model:      model,
		dimensions: dims,
	}
}

// NewOpenAIEmbedderFromEnv creates an embedder using the OPENAI_API_KEY
// environment variable.
func NewOpenAIEmbedderFromEnv() (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewOpenAIEmbedder(apiKey), nil
}

// NewOpenAIEmbedderWithAPI creates an embedder over an explicit API
// implementation. Used by tests.
func NewOpenAIEmbedderWithAPI(api EmbeddingAPI, model openai.EmbeddingModel, dimensions int) *OpenAIEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &OpenAIEmbedder{api: api, model: model, dimensions: dimensions}
}

// Model returns the embedding model identifier.
func (e *OpenAIEmbedder) Model() string {
	return string(e.model)
}

// Embed generates embeddings for a batch of texts in one API call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("text at index %d is empty", i)
		}
	}

	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, e.dimensions, len(d.Embedding))
		}
		out[i] = d.Embedding
	}
	return out, nil
}
