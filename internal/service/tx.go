package service

import (
	"context"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/pagination"
)

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Files() FileRepositoryInterface
	Chunks() ChunkRepositoryInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// CollectionRepositoryInterface defines the repository interface for collection persistence
type CollectionRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Collection) error
	GetByID(ctx context.Context, id string) (*domain.Collection, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Collection, error)
	ListByOwner(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Collection], error)
	Update(ctx context.Context, c *domain.Collection) error
	Delete(ctx context.Context, id string) error
}

// FileRepositoryInterface defines the repository interface for ingested file persistence
type FileRepositoryInterface interface {
	Create(ctx context.Context, f *domain.IngestedFile) error
	GetByID(ctx context.Context, id string) (*domain.IngestedFile, error)
	ListByCollection(ctx context.Context, collectionID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.IngestedFile], error)
	Delete(ctx context.Context, id string) error
}

// ChunkRepositoryInterface defines the repository interface for chunk persistence and search
type ChunkRepositoryInterface interface {
	InsertBatch(ctx context.Context, chunks []domain.Chunk) error
	SearchNearest(ctx context.Context, collectionID string, embedding []float32, limit int) ([]domain.RetrievalResult, error)
	DeleteByFile(ctx context.Context, fileID string) (int64, error)
	DeleteByCollection(ctx context.Context, collectionID string) (int64, error)
	CountByCollection(ctx context.Context, collectionID string) (int64, error)
}

// AssistantRepositoryInterface defines read access to assistant configuration
type AssistantRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Assistant, error)
	List(ctx context.Context) ([]*domain.Assistant, error)
}

// Embedder turns a batch of texts into vectors with a stable model identity.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
