package service

import (
	"context"
	"sort"
	"strings"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/telemetry"
)

// RetrievalService answers similarity queries across one or more collections.
// It is read-only and safe for arbitrary concurrent use.
type RetrievalService struct {
	collectionRepo CollectionRepositoryInterface
	chunkRepo      ChunkRepositoryInterface
	embedder       Embedder
}

func NewRetrievalService(
	collectionRepo CollectionRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	embedder Embedder,
) *RetrievalService {
	return &RetrievalService{
		collectionRepo: collectionRepo,
		chunkRepo:      chunkRepo,
		embedder:       embedder,
	}
}

// QueryInput represents one retrieval invocation.
type QueryInput struct {
	CollectionIDs []string
	QueryText     string
	TopK          int
	Threshold     float64
}

// Query embeds the question, fans out to each target collection, and merges
// results by similarity descending. Equal scores keep the order collections
// were passed in, then the store's native order within a collection; the
// sort is stable, no secondary key is invented. An empty result is a valid
// state, not an error.
func (s *RetrievalService) Query(ctx context.Context, input QueryInput) ([]domain.RetrievalResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Query", telemetry.SpanAttributes{
		Operation: "query",
	})
	defer span.End()

	if strings.TrimSpace(input.QueryText) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query text cannot be empty")
	}
	if input.Threshold < 0 || input.Threshold > 1 {
		return nil, domain.ErrInvalidThreshold
	}
	if input.TopK <= 0 || len(input.CollectionIDs) == 0 {
		return []domain.RetrievalResult{}, nil
	}

	collections, err := s.collectionRepo.GetByIDs(ctx, input.CollectionIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		if c.EmbeddingModel != s.embedder.Model() {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingModelMismatch,
				"collection "+c.ID+" is pinned to embedding model "+c.EmbeddingModel,
				domain.ErrEmbeddingModelMismatch)
		}
	}

	vectors, err := s.embedder.Embed(ctx, []string{input.QueryText})
	if err != nil {
		return nil, err
	}
	queryVec := vectors[0]

	merged := make([]domain.RetrievalResult, 0, input.TopK*len(collections))
	for _, c := range collections {
		results, err := s.chunkRepo.SearchNearest(ctx, c.ID, queryVec, input.TopK)
		if err != nil {
			return nil, err
		}
		merged = append(merged, results...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})

	// inclusive threshold: a result exactly at the boundary is kept
	filtered := merged[:0]
	for _, r := range merged {
		if r.Similarity >= input.Threshold {
			filtered = append(filtered, r)
		}
	}

	if len(filtered) > input.TopK {
		filtered = filtered[:input.TopK]
	}
	return filtered, nil
}

// Sanitize strips trusted-side metadata fields before results cross the
// server boundary. Callers outside the process never see raw source paths.
func Sanitize(results []domain.RetrievalResult) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, len(results))
	for i, r := range results {
		r.Metadata = r.Metadata.Sanitized()
		out[i] = r
	}
	return out
}
