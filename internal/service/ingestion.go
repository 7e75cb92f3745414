package service

import (
	"bytes"
	"context"
	"io"
	"log"
	"time"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/ingest"
	"github.com/mindmesh-ai/mindmesh/internal/pagination"
	"github.com/mindmesh-ai/mindmesh/internal/telemetry"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64
)

// ArchiveStore keeps the raw uploaded bytes of a file, keyed by file id, so
// a source can later be re-ingested with different chunking parameters.
type ArchiveStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// IngestionService drives the write path: plugin → chunker → embedder →
// atomic commit of one file with all its chunks.
type IngestionService struct {
	collectionRepo CollectionRepositoryInterface
	fileRepo       FileRepositoryInterface
	chunkRepo      ChunkRepositoryInterface
	txRunner       TxRunner
	embedder       Embedder
	registry       *ingest.Registry
	locks          *KeyedMutex
	archive        ArchiveStore // optional
	uuidGen        UUIDGenerator
}

func NewIngestionService(
	collectionRepo CollectionRepositoryInterface,
	fileRepo FileRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	txRunner TxRunner,
	embedder Embedder,
	registry *ingest.Registry,
) *IngestionService {
	return &IngestionService{
		collectionRepo: collectionRepo,
		fileRepo:       fileRepo,
		chunkRepo:      chunkRepo,
		txRunner:       txRunner,
		embedder:       embedder,
		registry:       registry,
		locks:          NewKeyedMutex(),
		uuidGen:        &DefaultUUIDGenerator{},
	}
}

// WithArchive attaches an archive store for raw source bytes.
func (s *IngestionService) WithArchive(archive ArchiveStore) *IngestionService {
	s.archive = archive
	return s
}

// IngestInput represents one source to ingest into a collection.
type IngestInput struct {
	CollectionID string
	PluginName   string
	Source       ingest.Source
	Params       map[string]any
	ChunkSize    int
	ChunkOverlap int
	Strategy     domain.ChunkingStrategy
}

// IngestResult is the per-file outcome callers receive.
type IngestResult struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
}

// Ingest converts one source into chunks and commits them atomically. A
// re-ingested source always creates a new file record; there is no implicit
// overwrite or content dedup.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		CollectionID: input.CollectionID,
		Plugin:       input.PluginName,
		Operation:    "ingest",
	})
	defer span.End()

	collection, err := s.collectionRepo.GetByID(ctx, input.CollectionID)
	if err != nil {
		return nil, err
	}
	if collection.EmbeddingModel != s.embedder.Model() {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingModelMismatch,
			"collection is pinned to embedding model "+collection.EmbeddingModel,
			domain.ErrEmbeddingModelMismatch)
	}

	plugin, err := s.registry.Get(input.PluginName)
	if err != nil {
		return nil, err
	}
	params, err := ingest.ValidateParams(plugin.Schema(), input.Params)
	if err != nil {
		return nil, err
	}

	size := input.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	overlap := input.ChunkOverlap
	if input.ChunkSize == 0 && input.ChunkOverlap == 0 {
		overlap = DefaultChunkOverlap
	}
	strategy := input.Strategy
	if strategy == "" {
		strategy = domain.StrategyFixed
	}

	// buffer upload sources so we know the byte size and can archive them
	var raw []byte
	source := input.Source
	if source.Reader != nil {
		raw, err = io.ReadAll(source.Reader)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeSourceUnavailable,
				"failed to read source "+source.Filename, domain.ErrSourceUnavailable)
		}
		source.Reader = bytes.NewReader(raw)
	}

	units, err := plugin.Ingest(ctx, source, params)
	if err != nil {
		return nil, err
	}

	pieces, err := ingest.Chunk(units, strategy, size, overlap)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fileID := s.uuidGen.NewString()

	filename := source.Filename
	if filename == "" {
		filename = source.URL
	}

	file := &domain.IngestedFile{
		ID:           fileID,
		CollectionID: collection.ID,
		Filename:     filename,
		ByteSize:     int64(len(raw)),
		ContentType:  source.ContentType,
		Plugin:       input.PluginName,
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Strategy:     strategy,
		SourceURL:    source.URL,
		ChunkCount:   len(pieces),
		CreatedAt:    now,
	}

	chunks, err := s.embedPieces(ctx, collection.ID, file, pieces, now)
	if err != nil {
		return nil, err
	}

	// serialize the commit per collection; readers see zero or all chunks
	s.locks.Lock(collection.ID)
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Files().Create(ctx, file); err != nil {
			return err
		}
		return repos.Chunks().InsertBatch(ctx, chunks)
	})
	s.locks.Unlock(collection.ID)
	if err != nil {
		return nil, err
	}

	if s.archive != nil && len(raw) > 0 {
		if archiveErr := s.archive.Put(ctx, archiveKey(fileID), source.ContentType, raw); archiveErr != nil {
			// the file is already committed; archiving is best-effort
			log.Printf("ingest: failed to archive source for file %s: %v", fileID, archiveErr)
			telemetry.CaptureError(ctx, archiveErr)
		}
	}

	return &IngestResult{FileID: fileID, Filename: filename, ChunkCount: len(pieces)}, nil
}

func (s *IngestionService) embedPieces(ctx context.Context, collectionID string, file *domain.IngestedFile, pieces []ingest.Piece, now time.Time) ([]domain.Chunk, error) {
	if len(pieces) == 0 {
		return nil, nil
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{
			ID:           s.uuidGen.NewString(),
			CollectionID: collectionID,
			FileID:       file.ID,
			Index:        p.Index,
			Count:        p.Count,
			Content:      p.Text,
			Metadata: domain.ChunkMetadata{
				DocumentID:         file.ID,
				Filename:           file.Filename,
				ChunkIndex:         p.Index,
				ChunkCount:         p.Count,
				ChunkingStrategy:   string(file.Strategy),
				EmbeddingModel:     s.embedder.Model(),
				Source:             p.Source.URL,
				SourcePath:         p.Source.Path,
				TimestampRange:     p.Source.TimestampRange,
				IngestionTimestamp: now,
			},
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}
	return chunks, nil
}

// BatchItem is one source within a batch upload.
type BatchItem struct {
	PluginName string
	Source     ingest.Source
	Params     map[string]any
}

// BatchInput ingests several sources into one collection with shared
// chunking configuration.
type BatchInput struct {
	CollectionID string
	Items        []BatchItem
	ChunkSize    int
	ChunkOverlap int
	Strategy     domain.ChunkingStrategy
}

// BatchOutcome is the per-file entry of a batch result. Err is nil on
// success; a failed file never aborts its siblings.
type BatchOutcome struct {
	Filename string
	Result   *IngestResult
	Err      error
}

// IngestBatch runs each item independently and returns the per-file
// outcomes in input order.
func (s *IngestionService) IngestBatch(ctx context.Context, input BatchInput) []BatchOutcome {
	outcomes := make([]BatchOutcome, 0, len(input.Items))
	for _, item := range input.Items {
		filename := item.Source.Filename
		if filename == "" {
			filename = item.Source.URL
		}

		result, err := s.Ingest(ctx, IngestInput{
			CollectionID: input.CollectionID,
			PluginName:   item.PluginName,
			Source:       item.Source,
			Params:       item.Params,
			ChunkSize:    input.ChunkSize,
			ChunkOverlap: input.ChunkOverlap,
			Strategy:     input.Strategy,
		})
		if err != nil {
			log.Printf("ingest: batch item %q failed: %v", filename, err)
		}
		outcomes = append(outcomes, BatchOutcome{Filename: filename, Result: result, Err: err})
	}
	return outcomes
}

// DeleteFile removes an ingested file together with all its chunks.
func (s *IngestionService) DeleteFile(ctx context.Context, fileID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.DeleteFile", telemetry.SpanAttributes{
		FileID:    fileID,
		Operation: "delete_file",
	})
	defer span.End()

	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return err
	}

	s.locks.Lock(file.CollectionID)
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.Chunks().DeleteByFile(ctx, fileID); err != nil {
			return err
		}
		return repos.Files().Delete(ctx, fileID)
	})
	s.locks.Unlock(file.CollectionID)
	if err != nil {
		return err
	}

	if s.archive != nil {
		if archiveErr := s.archive.Delete(ctx, archiveKey(fileID)); archiveErr != nil {
			log.Printf("ingest: failed to delete archived source for file %s: %v", fileID, archiveErr)
		}
	}
	return nil
}

// ListFiles returns the ingested files of a collection, newest first.
func (s *IngestionService) ListFiles(ctx context.Context, collectionID, cursor string, limit int) (*pagination.PageResult[*domain.IngestedFile], error) {
	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	if _, err := s.collectionRepo.GetByID(ctx, collectionID); err != nil {
		return nil, err
	}
	return s.fileRepo.ListByCollection(ctx, collectionID, c, limit)
}

func archiveKey(fileID string) string {
	return "sources/" + fileID
}
