package service

import (
	"context"
	"log"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// CompletionStatus is the terminal state recorded per completion.
type CompletionStatus string

const (
	CompletionCompleted CompletionStatus = "completed"
	CompletionFailed    CompletionStatus = "failed"
	CompletionCancelled CompletionStatus = "cancelled"
)

// CompletionLogEntry is the audit record written after every completion
// attempt, including degraded (ungrounded) ones.
type CompletionLogEntry struct {
	AssistantID       string
	Provider          domain.Provider
	Model             string
	Question          string
	ContextChunks     int
	RetrievalDegraded bool
	Citations         []domain.Citation
	Status            CompletionStatus
	ErrorCode         string
	DurationMs        int64
}

// CompletionLogRepositoryInterface persists completion audit entries.
type CompletionLogRepositoryInterface interface {
	CreateCompletionLog(ctx context.Context, entry CompletionLogEntry) (string, error)
}

// AuditService records completion outcomes. Logging failures never fail the
// completion they describe.
type AuditService struct {
	repo CompletionLogRepositoryInterface
}

func NewAuditService(repo CompletionLogRepositoryInterface) *AuditService {
	return &AuditService{repo: repo}
}

// Record writes one audit entry, swallowing persistence errors.
func (s *AuditService) Record(ctx context.Context, entry CompletionLogEntry) {
	if s == nil || s.repo == nil {
		return
	}
	if _, err := s.repo.CreateCompletionLog(ctx, entry); err != nil {
		log.Printf("audit: failed to record completion for assistant %s: %v", entry.AssistantID, err)
	}
}
