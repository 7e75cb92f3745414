package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

func testCollection(id, model string) *domain.Collection {
	return &domain.Collection{
		ID:             id,
		OwnerID:        "owner-1",
		Name:           "Coll " + id,
		Visibility:     domain.VisibilityPrivate,
		EmbeddingModel: model,
		CreatedAt:      time.Now().UTC(),
	}
}

func retrievalResult(similarity float64, content string) domain.RetrievalResult {
	return domain.RetrievalResult{
		Similarity: similarity,
		Content:    content,
		Metadata: domain.ChunkMetadata{
			DocumentID: "file-1",
			Filename:   "doc.txt",
			SourcePath: "/var/uploads/doc.txt",
		},
	}
}

func TestRetrievalService_Query_MergesAndSorts(t *testing.T) {
	collRepo := new(MockCollectionRepository)
	chunkRepo := new(MockChunkRepository)
	embedder := &fakeEmbedder{}
	svc := NewRetrievalService(collRepo, chunkRepo, embedder)

	collA := testCollection("coll-a", embedder.Model())
	collB := testCollection("coll-b", embedder.Model())

	collRepo.On("GetByIDs", mock.Anything, []string{"coll-a", "coll-b"}).
		Return([]*domain.Collection{collA, collB}, nil)
	chunkRepo.On("SearchNearest", mock.Anything, "coll-a", mock.Anything, 3).
		Return([]domain.RetrievalResult{retrievalResult(0.9, "a high"), retrievalResult(0.5, "a low")}, nil)
	chunkRepo.On("SearchNearest", mock.Anything, "coll-b", mock.Anything, 3).
		Return([]domain.RetrievalResult{retrievalResult(0.7, "b mid")}, nil)

	results, err := svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-a", "coll-b"},
		QueryText:     "question",
		TopK:          3,
		Threshold:     0.0,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a high", results[0].Content)
	assert.Equal(t, "b mid", results[1].Content)
	assert.Equal(t, "a low", results[2].Content)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestRetrievalService_Query_EqualScoresKeepCollectionOrder(t *testing.T) {
	collRepo := new(MockCollectionRepository)
	chunkRepo := new(MockChunkRepository)
	embedder := &fakeEmbedder{}
	svc := NewRetrievalService(collRepo, chunkRepo, embedder)

	collA := testCollection("coll-a", embedder.Model())
	collB := testCollection("coll-b", embedder.Model())

	// caller passes b before a; equal scores must preserve that order
	collRepo.On("GetByIDs", mock.Anything, []string{"coll-b", "coll-a"}).
		Return([]*domain.Collection{collB, collA}, nil)
	chunkRepo.On("SearchNearest", mock.Anything, "coll-b", mock.Anything, 2).
		Return([]domain.RetrievalResult{retrievalResult(0.8, "from b")}, nil)
	chunkRepo.On("SearchNearest", mock.Anything, "coll-a", mock.Anything, 2).
		Return([]domain.RetrievalResult{retrievalResult(0.8, "from a")}, nil)

	results, err := svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-b", "coll-a"},
		QueryText:     "question",
		TopK:          2,
		Threshold:     0.0,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "from b", results[0].Content)
	assert.Equal(t, "from a", results[1].Content)
}

func TestRetrievalService_Query_ThresholdInclusive(t *testing.T) {
	collRepo := new(MockCollectionRepository)
	chunkRepo := new(MockChunkRepository)
	embedder := &fakeEmbedder{}
	svc := NewRetrievalService(collRepo, chunkRepo, embedder)

	coll := testCollection("coll-a", embedder.Model())
	collRepo.On("GetByIDs", mock.Anything, []string{"coll-a"}).
		Return([]*domain.Collection{coll}, nil)
	chunkRepo.On("SearchNearest", mock.Anything, "coll-a", mock.Anything, 5).
		Return([]domain.RetrievalResult{
			retrievalResult(0.9, "keep"),
			retrievalResult(0.7, "boundary"),
			retrievalResult(0.69, "drop"),
		}, nil)

	results, err := svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-a"},
		QueryText:     "question",
		TopK:          5,
		Threshold:     0.7,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "keep", results[0].Content)
	assert.Equal(t, "boundary", results[1].Content)
}

func TestRetrievalService_Query_TopKTruncates(t *testing.T) {
	collRepo := new(MockCollectionRepository)
	chunkRepo := new(MockChunkRepository)
	embedder := &fakeEmbedder{}
	svc := NewRetrievalService(collRepo, chunkRepo, embedder)

	coll := testCollection("coll-a", embedder.Model())
	collRepo.On("GetByIDs", mock.Anything, []string{"coll-a"}).
		Return([]*domain.Collection{coll}, nil)
	chunkRepo.On("SearchNearest", mock.Anything, "coll-a", mock.Anything, 1).
		Return([]domain.RetrievalResult{retrievalResult(0.9, "only")}, nil)

	results, err := svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-a"},
		QueryText:     "question",
		TopK:          1,
		Threshold:     0.0,
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRetrievalService_Query_EmptyResultIsNotAnError(t *testing.T) {
	collRepo := new(MockCollectionRepository)
	chunkRepo := new(MockChunkRepository)
	embedder := &fakeEmbedder{}
	svc := NewRetrievalService(collRepo, chunkRepo, embedder)

	coll := testCollection("coll-a", embedder.Model())
	collRepo.On("GetByIDs", mock.Anything, []string{"coll-a"}).
		Return([]*domain.Collection{coll}, nil)
	chunkRepo.On("SearchNearest", mock.Anything, "coll-a", mock.Anything, 5).
		Return([]domain.RetrievalResult{}, nil)

	results, err := svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-a"},
		QueryText:     "question",
		TopK:          5,
		Threshold:     0.7,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrievalService_Query_ZeroTopK(t *testing.T) {
	svc := NewRetrievalService(new(MockCollectionRepository), new(MockChunkRepository), &fakeEmbedder{})

	results, err := svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-a"},
		QueryText:     "question",
		TopK:          0,
		Threshold:     0.5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrievalService_Query_Validation(t *testing.T) {
	svc := NewRetrievalService(new(MockCollectionRepository), new(MockChunkRepository), &fakeEmbedder{})

	_, err := svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-a"},
		QueryText:     "   ",
		TopK:          5,
	})
	require.Error(t, err)

	_, err = svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-a"},
		QueryText:     "ok",
		TopK:          5,
		Threshold:     1.5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)
}

func TestRetrievalService_Query_ModelMismatch(t *testing.T) {
	collRepo := new(MockCollectionRepository)
	svc := NewRetrievalService(collRepo, new(MockChunkRepository), &fakeEmbedder{model: "text-embedding-3-large"})

	coll := testCollection("coll-a", "text-embedding-ada-002")
	collRepo.On("GetByIDs", mock.Anything, []string{"coll-a"}).
		Return([]*domain.Collection{coll}, nil)

	_, err := svc.Query(context.Background(), QueryInput{
		CollectionIDs: []string{"coll-a"},
		QueryText:     "question",
		TopK:          5,
	})
	assert.ErrorIs(t, err, domain.ErrEmbeddingModelMismatch)
}

func TestSanitize_StripsSourcePath(t *testing.T) {
	results := []domain.RetrievalResult{retrievalResult(0.9, "content")}
	require.NotEmpty(t, results[0].Metadata.SourcePath)

	sanitized := Sanitize(results)
	assert.Empty(t, sanitized[0].Metadata.SourcePath)
	assert.Equal(t, "doc.txt", sanitized[0].Metadata.Filename)

	// original slice untouched
	assert.NotEmpty(t, results[0].Metadata.SourcePath)
}
