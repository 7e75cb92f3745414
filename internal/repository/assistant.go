package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// AssistantRepository stores assistant configuration records. The completion
// path only reads them; writes exist for administration and seeding.
type AssistantRepository struct {
	db dbtx
}

func NewAssistantRepository(pool *pgxpool.Pool) *AssistantRepository {
	return &AssistantRepository{db: pool}
}

func NewAssistantRepositoryWithTx(tx pgx.Tx) *AssistantRepository {
	return &AssistantRepository{db: tx}
}

func (r *AssistantRepository) Create(ctx context.Context, a *domain.Assistant) error {
	criteriaJSON, err := json.Marshal(a.Criteria)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO assistants (id, name, system_prompt, provider, model, collection_ids, top_k, threshold, token_budget, criteria, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Name, a.SystemPrompt, a.Provider, a.Model, a.CollectionIDs,
		a.TopK, a.Threshold, a.TokenBudget, criteriaJSON, a.CreatedAt,
	)
	return err
}

func (r *AssistantRepository) GetByID(ctx context.Context, id string) (*domain.Assistant, error) {
	var a domain.Assistant
	var criteriaJSON []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, name, system_prompt, provider, model, collection_ids, top_k, threshold, token_budget, criteria, created_at
		 FROM assistants WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.Provider, &a.Model, &a.CollectionIDs,
		&a.TopK, &a.Threshold, &a.TokenBudget, &criteriaJSON, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssistantNotFound
		}
		return nil, err
	}
	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &a.Criteria); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (r *AssistantRepository) List(ctx context.Context) ([]*domain.Assistant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, system_prompt, provider, model, collection_ids, top_k, threshold, token_budget, criteria, created_at
		 FROM assistants ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Assistant
	for rows.Next() {
		var a domain.Assistant
		var criteriaJSON []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.Provider, &a.Model, &a.CollectionIDs,
			&a.TopK, &a.Threshold, &a.TokenBudget, &criteriaJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(criteriaJSON) > 0 {
			if err := json.Unmarshal(criteriaJSON, &a.Criteria); err != nil {
				return nil, err
			}
		}
		results = append(results, &a)
	}
	return results, rows.Err()
}

func (r *AssistantRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM assistants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssistantNotFound
	}
	return nil
}
