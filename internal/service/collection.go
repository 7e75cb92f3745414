package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/pagination"
	"github.com/mindmesh-ai/mindmesh/internal/telemetry"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// CollectionService handles business logic for collections
type CollectionService struct {
	collectionRepo CollectionRepositoryInterface
	chunkRepo      ChunkRepositoryInterface
	embeddingModel string
	uuidGen        UUIDGenerator
}

// NewCollectionService creates a new CollectionService instance. embeddingModel
// is stamped onto new collections and pins which vectors they may ever hold.
func NewCollectionService(
	collectionRepo CollectionRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	embeddingModel string,
) *CollectionService {
	return &CollectionService{
		collectionRepo: collectionRepo,
		chunkRepo:      chunkRepo,
		embeddingModel: embeddingModel,
		uuidGen:        &DefaultUUIDGenerator{},
	}
}

// CreateCollectionInput represents the input for creating a collection
type CreateCollectionInput struct {
	OwnerID     string
	Name        string
	Description string
	Visibility  domain.Visibility
}

// UpdateCollectionInput represents the input for updating a collection
type UpdateCollectionInput struct {
	CollectionID string
	Name         string
	Description  string
	Visibility   domain.Visibility
}

type ListCollectionsInput struct {
	OwnerID string
	Cursor  string
	Limit   int
}

// Create creates a new collection pinned to the configured embedding model.
func (s *CollectionService) Create(ctx context.Context, input CreateCollectionInput) (*domain.Collection, error) {
	ctx, span := telemetry.StartSpan(ctx, "CollectionService.Create", telemetry.SpanAttributes{
		Operation: "create",
	})
	defer span.End()

	c := &domain.Collection{
		ID:             s.uuidGen.NewString(),
		OwnerID:        input.OwnerID,
		Name:           input.Name,
		Description:    input.Description,
		Visibility:     input.Visibility,
		EmbeddingModel: s.embeddingModel,
		CreatedAt:      time.Now().UTC(),
	}
	if c.Visibility == "" {
		c.Visibility = domain.VisibilityPrivate
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.collectionRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID retrieves a collection by ID
func (s *CollectionService) GetByID(ctx context.Context, id string) (*domain.Collection, error) {
	return s.collectionRepo.GetByID(ctx, id)
}

// List returns the collections visible to an owner, newest first.
func (s *CollectionService) List(ctx context.Context, input ListCollectionsInput) (*pagination.PageResult[*domain.Collection], error) {
	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return s.collectionRepo.ListByOwner(ctx, input.OwnerID, cursor, input.Limit)
}

// Update changes a collection's mutable fields. The embedding model is
// immutable once set.
func (s *CollectionService) Update(ctx context.Context, input UpdateCollectionInput) (*domain.Collection, error) {
	ctx, span := telemetry.StartSpan(ctx, "CollectionService.Update", telemetry.SpanAttributes{
		CollectionID: input.CollectionID,
		Operation:    "update",
	})
	defer span.End()

	c, err := s.collectionRepo.GetByID(ctx, input.CollectionID)
	if err != nil {
		return nil, err
	}

	if input.Name != "" {
		c.Name = input.Name
	}
	c.Description = input.Description
	if input.Visibility != "" {
		c.Visibility = input.Visibility
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.collectionRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a collection with all its files and chunks.
func (s *CollectionService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "CollectionService.Delete", telemetry.SpanAttributes{
		CollectionID: id,
		Operation:    "delete",
	})
	defer span.End()

	// chunks and files go with the collection via FK cascade; the explicit
	// delete keeps the vector table small even if cascades are disabled
	if _, err := s.chunkRepo.DeleteByCollection(ctx, id); err != nil {
		return err
	}
	return s.collectionRepo.Delete(ctx, id)
}

// Stats reports the chunk count of one collection.
func (s *CollectionService) Stats(ctx context.Context, id string) (int64, error) {
	if _, err := s.collectionRepo.GetByID(ctx, id); err != nil {
		return 0, err
	}
	return s.chunkRepo.CountByCollection(ctx, id)
}
