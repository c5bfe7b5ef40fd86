package queue

import (
	"context"
	"time"

	"github.com/pawpress/server/internal/domain"
)

// StuckThreshold flags processing jobs whose last update is older than this
// as likely crashed workers awaiting lease reclamation.
const StuckThreshold = 5 * time.Minute

// Stats is the read-only operator view of queue health.
type Stats struct {
	CountsByStatus   map[domain.JobStatus]int `json:"counts_by_status"`
	OldestQueuedAgeS float64                  `json:"oldest_queued_age_s"`
	StuckProcessing  int                      `json:"stuck_processing"`
	RecentJobs       []JobSummary             `json:"recent_jobs"`
}

// JobSummary is the monitor's per-job row, stripped of payloads.
type JobSummary struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"`
	Kind      domain.JobKind   `json:"kind"`
	Status    domain.JobStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Monitor aggregates diagnostic reads. It never mutates the queue.
type Monitor struct {
	jobs domain.JobStore
}

// NewMonitor builds the diagnostic view.
func NewMonitor(jobs domain.JobStore) *Monitor {
	return &Monitor{jobs: jobs}
}

// Stats collects the aggregate counts, oldest queued age, stuck-running
// count, and a recent job list.
func (m *Monitor) Stats(ctx context.Context, recentLimit int) (*Stats, error) {
	counts, err := m.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	oldest, err := m.jobs.OldestQueuedAge(ctx)
	if err != nil {
		return nil, err
	}
	stuck, err := m.jobs.CountStuckProcessing(ctx, StuckThreshold)
	if err != nil {
		return nil, err
	}
	recent, err := m.jobs.ListRecent(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		CountsByStatus:   counts,
		OldestQueuedAgeS: oldest.Seconds(),
		StuckProcessing:  stuck,
	}
	for _, job := range recent {
		stats.RecentJobs = append(stats.RecentJobs, JobSummary{
			ID:        job.ID.String(),
			TenantID:  job.TenantID,
			Kind:      job.Kind,
			Status:    job.Status,
			Attempts:  job.Attempts,
			Error:     job.ErrorMessage,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}
	return stats, nil
}
