package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/pagination"
)

type FileRepository struct {
	db dbtx
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{db: pool}
}

func NewFileRepositoryWithTx(tx pgx.Tx) *FileRepository {
	return &FileRepository{db: tx}
}

func (r *FileRepository) Create(ctx context.Context, f *domain.IngestedFile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO files (id, collection_id, filename, byte_size, content_type, plugin, chunk_size, chunk_overlap, strategy, source_url, chunk_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		f.ID, f.CollectionID, f.Filename, f.ByteSize, nullableString(f.ContentType), f.Plugin,
		f.ChunkSize, f.ChunkOverlap, f.Strategy, nullableString(f.SourceURL), f.ChunkCount, f.CreatedAt,
	)
	return err
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (*domain.IngestedFile, error) {
	var f domain.IngestedFile
	var contentType, sourceURL *string
	err := r.db.QueryRow(ctx,
		`SELECT id, collection_id, filename, byte_size, content_type, plugin, chunk_size, chunk_overlap, strategy, source_url, chunk_count, created_at
		 FROM files WHERE id = $1`,
		id,
	).Scan(&f.ID, &f.CollectionID, &f.Filename, &f.ByteSize, &contentType, &f.Plugin,
		&f.ChunkSize, &f.ChunkOverlap, &f.Strategy, &sourceURL, &f.ChunkCount, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFileNotFound
		}
		return nil, err
	}
	if contentType != nil {
		f.ContentType = *contentType
	}
	if sourceURL != nil {
		f.SourceURL = *sourceURL
	}
	return &f, nil
}

func (r *FileRepository) ListByCollection(ctx context.Context, collectionID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.IngestedFile], error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, collection_id, filename, byte_size, content_type, plugin, chunk_size, chunk_overlap, strategy, source_url, chunk_count, created_at
			 FROM files
			 WHERE collection_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			collectionID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, collection_id, filename, byte_size, content_type, plugin, chunk_size, chunk_overlap, strategy, source_url, chunk_count, created_at
			 FROM files
			 WHERE collection_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			collectionID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanFileRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var next string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		next = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &pagination.PageResult[*domain.IngestedFile]{
		Items:   items,
		Cursor:  next,
		HasMore: hasMore,
	}, nil
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

func scanFileRows(rows pgx.Rows) ([]*domain.IngestedFile, error) {
	var results []*domain.IngestedFile
	for rows.Next() {
		var f domain.IngestedFile
		var contentType, sourceURL *string
		if err := rows.Scan(&f.ID, &f.CollectionID, &f.Filename, &f.ByteSize, &contentType, &f.Plugin,
			&f.ChunkSize, &f.ChunkOverlap, &f.Strategy, &sourceURL, &f.ChunkCount, &f.CreatedAt); err != nil {
			return nil, err
		}
		if contentType != nil {
			f.ContentType = *contentType
		}
		if sourceURL != nil {
			f.SourceURL = *sourceURL
		}
		results = append(results, &f)
	}
	return results, rows.Err()
}
