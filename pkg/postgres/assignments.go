package postgres

import (
	"context"
	"fmt"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

func (r reader) ListRoomAssignments(ctx context.Context, jobID int64) ([]model.RoomAssignment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, job_id, worker_id, unit_type, unit_number, label
		FROM room_assignments
		WHERE job_id = $1
		ORDER BY id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query room assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.RoomAssignment
	for rows.Next() {
		var a model.RoomAssignment
		if err := rows.Scan(&a.ID, &a.JobID, &a.WorkerID, &a.Unit.Type, &a.Unit.Number, &a.Unit.Label); err != nil {
			return nil, fmt.Errorf("failed to scan room assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room assignments: %w", err)
	}
	return assignments, nil
}

// InsertRoomAssignments relies on the (job_id, unit_type, unit_number) unique
// constraint; a violation surfaces as db.ErrConflict.
func (t *Tx) InsertRoomAssignments(ctx context.Context, assignments []model.RoomAssignment) error {
	for i := range assignments {
		a := &assignments[i]
		err := t.tx.QueryRow(ctx, `
			INSERT INTO room_assignments (job_id, worker_id, unit_type, unit_number, label)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, a.JobID, a.WorkerID, a.Unit.Type, a.Unit.Number, a.Unit.Label).Scan(&a.ID)
		if err != nil {
			return mapError(err, fmt.Sprintf("failed to insert %s %d", a.Unit.Type, a.Unit.Number))
		}
	}
	return nil
}
