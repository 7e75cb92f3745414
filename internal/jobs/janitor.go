package jobs

import (
	"context"
	"log"
)

// JanitorRepository covers the maintenance queries the janitor runs.
type JanitorRepository interface {
	// DeleteOrphans removes chunk rows whose file or collection is gone.
	DeleteOrphans(ctx context.Context) (int64, error)
}

// AuditPruner removes completion log entries past the retention window.
type AuditPruner interface {
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// Janitor sweeps orphaned chunks and expired audit entries. Orphans only
// appear after a crash between partial cascades; the sweep keeps the vector
// index from accumulating unreachable rows.
type Janitor struct {
	chunks        JanitorRepository
	audit         AuditPruner
	retentionDays int
}

func NewJanitor(chunks JanitorRepository, audit AuditPruner, retentionDays int) *Janitor {
	return &Janitor{chunks: chunks, audit: audit, retentionDays: retentionDays}
}

// ProcessJobs runs one sweep. It satisfies JobProcessor so the janitor can
// run under the polling Worker.
func (j *Janitor) ProcessJobs(ctx context.Context) error {
	removed, err := j.chunks.DeleteOrphans(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("janitor: removed %d orphaned chunks", removed)
	}

	if j.audit != nil && j.retentionDays > 0 {
		pruned, err := j.audit.PruneOlderThan(ctx, j.retentionDays)
		if err != nil {
			return err
		}
		if pruned > 0 {
			log.Printf("janitor: pruned %d expired completion log entries", pruned)
		}
	}
	return nil
}
