package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/pagination"
)

type CollectionRepository struct {
	db dbtx
}

func NewCollectionRepository(pool *pgxpool.Pool) *CollectionRepository {
	return &CollectionRepository{db: pool}
}

func NewCollectionRepositoryWithTx(tx pgx.Tx) *CollectionRepository {
	return &CollectionRepository{db: tx}
}

func (r *CollectionRepository) Create(ctx context.Context, c *domain.Collection) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO collections (id, owner_id, name, description, visibility, embedding_model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.OwnerID, c.Name, nullableString(c.Description), c.Visibility, c.EmbeddingModel, c.CreatedAt,
	)
	return err
}

func (r *CollectionRepository) GetByID(ctx context.Context, id string) (*domain.Collection, error) {
	var c domain.Collection
	var description *string
	err := r.db.QueryRow(ctx,
		`SELECT id, owner_id, name, description, visibility, embedding_model, created_at
		 FROM collections WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &description, &c.Visibility, &c.EmbeddingModel, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCollectionNotFound
		}
		return nil, err
	}
	if description != nil {
		c.Description = *description
	}
	return &c, nil
}

// GetByIDs resolves a set of collections, preserving the caller's order.
// A missing id yields ErrCollectionNotFound.
func (r *CollectionRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Collection, error) {
	if len(ids) == 0 {
		return []*domain.Collection{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, name, description, visibility, embedding_model, created_at
		 FROM collections WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*domain.Collection, len(ids))
	for rows.Next() {
		var c domain.Collection
		var description *string
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &description, &c.Visibility, &c.EmbeddingModel, &c.CreatedAt); err != nil {
			return nil, err
		}
		if description != nil {
			c.Description = *description
		}
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*domain.Collection, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, domain.ErrCollectionNotFound
		}
		ordered = append(ordered, c)
	}
	return ordered, nil
}

func (r *CollectionRepository) ListByOwner(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Collection], error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, owner_id, name, description, visibility, embedding_model, created_at
			 FROM collections
			 WHERE (owner_id = $1 OR visibility = 'tenant') AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			ownerID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, owner_id, name, description, visibility, embedding_model, created_at
			 FROM collections
			 WHERE owner_id = $1 OR visibility = 'tenant'
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			ownerID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanCollectionRows(rows)
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

	return &pagination.PageResult[*domain.Collection]{
		Items:   items,
		Cursor:  next,
		HasMore: hasMore,
	}, nil
}

func (r *CollectionRepository) Update(ctx context.Context, c *domain.Collection) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE collections SET name = $1, description = $2, visibility = $3 WHERE id = $4`,
		c.Name, nullableString(c.Description), c.Visibility, c.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrCollectionNotFound
	}
	return nil
}

func (r *CollectionRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrCollectionNotFound
	}
	return nil
}

func scanCollectionRows(rows pgx.Rows) ([]*domain.Collection, error) {
	var results []*domain.Collection
	for rows.Next() {
		var c domain.Collection
		var description *string
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &description, &c.Visibility, &c.EmbeddingModel, &c.CreatedAt); err != nil {
			return nil, err
		}
		if description != nil {
			c.Description = *description
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}
