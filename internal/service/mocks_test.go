package service

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/pagination"
)

// MockCollectionRepository is a mock implementation of CollectionRepositoryInterface
type MockCollectionRepository struct {
	mock.Mock
}

func (m *MockCollectionRepository) Create(ctx context.Context, c *domain.Collection) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCollectionRepository) GetByID(ctx context.Context, id string) (*domain.Collection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockCollectionRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Collection, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Collection), args.Error(1)
}

func (m *MockCollectionRepository) ListByOwner(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Collection], error) {
	args := m.Called(ctx, ownerID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.Collection]), args.Error(1)
}

func (m *MockCollectionRepository) Update(ctx context.Context, c *domain.Collection) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCollectionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockFileRepository is a mock implementation of FileRepositoryInterface
type MockFileRepository struct {
	mock.Mock
}

func (m *MockFileRepository) Create(ctx context.Context, f *domain.IngestedFile) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFileRepository) GetByID(ctx context.Context, id string) (*domain.IngestedFile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestedFile), args.Error(1)
}

func (m *MockFileRepository) ListByCollection(ctx context.Context, collectionID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.IngestedFile], error) {
	args := m.Called(ctx, collectionID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.IngestedFile]), args.Error(1)
}

func (m *MockFileRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) SearchNearest(ctx context.Context, collectionID string, embedding []float32, limit int) ([]domain.RetrievalResult, error) {
	args := m.Called(ctx, collectionID, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievalResult), args.Error(1)
}

func (m *MockChunkRepository) DeleteByFile(ctx context.Context, fileID string) (int64, error) {
	args := m.Called(ctx, fileID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkRepository) DeleteByCollection(ctx context.Context, collectionID string) (int64, error) {
	args := m.Called(ctx, collectionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkRepository) CountByCollection(ctx context.Context, collectionID string) (int64, error) {
	args := m.Called(ctx, collectionID)
	return args.Get(0).(int64), args.Error(1)
}

// fakeTxRunner runs the callback against the supplied repositories without a
// real transaction.
type fakeTxRunner struct {
	files  FileRepositoryInterface
	chunks ChunkRepositoryInterface
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	return fn(f)
}

func (f *fakeTxRunner) Files() FileRepositoryInterface {
	return f.files
}

func (f *fakeTxRunner) Chunks() ChunkRepositoryInterface {
	return f.chunks
}

// fakeEmbedder returns a deterministic vector per text.
type fakeEmbedder struct {
	model string
	err   error
}

func (f *fakeEmbedder) Model() string {
	if f.model == "" {
		return "text-embedding-ada-002"
	}
	return f.model
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// seqUUIDGen hands out predictable ids for assertions.
type seqUUIDGen struct {
	n int
}

func (g *seqUUIDGen) NewString() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}
