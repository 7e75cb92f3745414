package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// ChunkRepository handles persistence of chunk embeddings and similarity
// search against them.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// InsertBatch writes the chunks of one ingested file. Callers run it inside
// a transaction together with the file record so a collection never holds a
// partially ingested file.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		_, err = r.db.Exec(ctx,
			`INSERT INTO chunks (id, collection_id, file_id, chunk_index, chunk_count, content, metadata, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, c.CollectionID, c.FileID, c.Index, c.Count, c.Content, metadataJSON,
			pgvector.NewVector(c.Embedding), c.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SearchNearest returns up to limit chunks of one collection ordered by
// cosine similarity to the query embedding, most similar first. Similarity
// is 1 - cosine distance, so identical vectors score 1.0.
func (r *ChunkRepository) SearchNearest(ctx context.Context, collectionID string, embedding []float32, limit int) ([]domain.RetrievalResult, error) {
	if limit <= 0 {
		return []domain.RetrievalResult{}, nil
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx,
		`SELECT content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 WHERE collection_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, collectionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.RetrievalResult, 0, limit)
	for rows.Next() {
		var res domain.RetrievalResult
		var metadataJSON []byte
		if err := rows.Scan(&res.Content, &metadataJSON, &res.Similarity); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metadataJSON, &res.Metadata); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *ChunkRepository) DeleteByFile(ctx context.Context, fileID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (r *ChunkRepository) DeleteByCollection(ctx context.Context, collectionID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE collection_id = $1`, collectionID)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (r *ChunkRepository) CountByCollection(ctx context.Context, collectionID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection_id = $1`,
		collectionID,
	).Scan(&count)
	return count, err
}

// DeleteOrphans removes chunks whose file or collection record no longer
// exists. The janitor worker calls this periodically.
func (r *ChunkRepository) DeleteOrphans(ctx context.Context) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM chunks
		 WHERE file_id NOT IN (SELECT id FROM files)
		    OR collection_id NOT IN (SELECT id FROM collections)`,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
