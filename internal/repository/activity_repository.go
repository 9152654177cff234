package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safeexaminer/proctor-backend/internal/model"
)

// ActivityRepository handles read access to persisted activity events.
// Writes go through the persistence worker, not this repository.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// ListRecentByStudent retrieves the most recent activity events for one
// monitor session, newest first.
func (r *ActivityRepository) ListRecentByStudent(ctx context.Context, studentID string, limit int) ([]model.ActivityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, event_type, severity, detail, metadata, recorded_at
		 FROM activity_events
		 WHERE student_id = $1
		 ORDER BY recorded_at DESC
		 LIMIT $2`, studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

// ListRecent retrieves the most recent activity events across all sessions.
func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]model.ActivityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, event_type, severity, detail, metadata, recorded_at
		 FROM activity_events
		 ORDER BY recorded_at DESC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanActivityRows(rows pgxRows) ([]model.ActivityEvent, error) {
	events := make([]model.ActivityEvent, 0)
	for rows.Next() {
		var ev model.ActivityEvent
		var rawMeta []byte
		if err := rows.Scan(&ev.StudentID, &ev.Type, &ev.Severity, &ev.Detail, &rawMeta, &ev.Timestamp); err != nil {
			return nil, err
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
