package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/sqlinline"
)

// EventRepositoryPG implements domain.EventStore over PostgreSQL. The table
// is append-only; there is deliberately no update or delete path.
type EventRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewEventRepository creates an event store backed by PostgreSQL.
func NewEventRepository(sql infra.SQLExecutor) *EventRepositoryPG {
	return &EventRepositoryPG{sql: sql}
}

func (r *EventRepositoryPG) Append(ctx context.Context, event *domain.JobEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJobEvent,
		event.ID,
		event.JobID,
		event.StepID,
		event.EventType,
		event.Message,
		nullableBytes(event.Metadata),
	)
	return err
}

func (r *EventRepositoryPG) ListRecent(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.JobEvent, error) {
	if limit <= 0 || limit > domain.DefaultEventWindow {
		limit = domain.DefaultEventWindow
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecentJobEvents, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.JobEvent
	for rows.Next() {
		var ev domain.JobEvent
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.StepID, &ev.EventType, &ev.Message, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ domain.EventStore = (*EventRepositoryPG)(nil)
