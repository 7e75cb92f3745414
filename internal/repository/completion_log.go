package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindmesh-ai/mindmesh/internal/service"
)

// CompletionLogRepository stores completion audit entries for evaluation and
// debugging of grounded answers.
type CompletionLogRepository struct {
	pool *pgxpool.Pool
}

func NewCompletionLogRepository(pool *pgxpool.Pool) *CompletionLogRepository {
	return &CompletionLogRepository{pool: pool}
}

func (r *CompletionLogRepository) CreateCompletionLog(ctx context.Context, entry service.CompletionLogEntry) (string, error) {
	citationsJSON, _ := json.Marshal(entry.Citations)

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO completion_log (assistant_id, provider, model, question_length, context_chunks, retrieval_degraded, citations, status, error_code, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		entry.AssistantID,
		string(entry.Provider),
		entry.Model,
		len(entry.Question),
		entry.ContextChunks,
		entry.RetrievalDegraded,
		citationsJSON,
		string(entry.Status),
		nullableString(entry.ErrorCode),
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// PruneOlderThan deletes audit entries past the retention window. The
// janitor worker calls this periodically.
func (r *CompletionLogRepository) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM completion_log WHERE created_at < NOW() - ($1 * INTERVAL '1 day')`,
		days,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
