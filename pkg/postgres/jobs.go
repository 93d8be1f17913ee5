package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

const jobColumns = `
	id, appointment_id, total_required, confirmed_count, status, coordinator_id,
	auto_generated, estimated_minutes, created_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	err := row.Scan(&j.ID, &j.AppointmentID, &j.TotalRequired, &j.ConfirmedCount, &j.Status, &j.CoordinatorID,
		&j.AutoGenerated, &j.EstimatedMinutes, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r reader) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	job, err := scanJob(r.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`+r.lockClause, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("job %d", id))
	}
	return job, nil
}

func (r reader) GetJobByAppointment(ctx context.Context, appointmentID int64) (*model.Job, error) {
	job, err := scanJob(r.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE appointment_id = $1`+r.lockClause, appointmentID))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("job for appointment %d", appointmentID))
	}
	return job, nil
}

func (t *Tx) InsertJob(ctx context.Context, job *model.Job) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO jobs (appointment_id, total_required, confirmed_count, status, coordinator_id,
			auto_generated, estimated_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, job.AppointmentID, job.TotalRequired, job.ConfirmedCount, job.Status, job.CoordinatorID,
		job.AutoGenerated, job.EstimatedMinutes, job.CreatedAt).Scan(&job.ID)
	if err != nil {
		return mapError(err, "failed to insert job")
	}
	return nil
}

func (t *Tx) UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE jobs SET status = $2 WHERE id = $1`, jobID, status)
	if err != nil {
		return mapError(err, "failed to update job status")
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows, fmt.Sprintf("job %d", jobID))
	}
	return nil
}

// IncrementConfirmed takes a slot only while one remains. The condition is
// evaluated by the UPDATE itself, so it holds even without the row lock.
func (t *Tx) IncrementConfirmed(ctx context.Context, jobID int64) (*model.Job, bool, error) {
	job, err := scanJob(t.tx.QueryRow(ctx, `
		UPDATE jobs SET
			confirmed_count = confirmed_count + 1,
			status = CASE WHEN confirmed_count + 1 >= total_required THEN 'filled' ELSE status END
		WHERE id = $1 AND confirmed_count < total_required AND status IN ('open', 'filled')
		RETURNING `+jobColumns, jobID))
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, mapError(err, "failed to increment confirmed count")
	}

	current, err := t.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (d *DB) ListOpenJobs(ctx context.Context, fromDate string) ([]model.Job, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT j.id, j.appointment_id, j.total_required, j.confirmed_count, j.status, j.coordinator_id,
			j.auto_generated, j.estimated_minutes, j.created_at
		FROM jobs j
		JOIN appointments a ON a.id = j.appointment_id
		WHERE j.status = 'open' AND NOT a.cancelled AND NOT a.completed AND a.date >= $1::date
		ORDER BY j.id
	`, fromDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query open jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open jobs: %w", err)
	}
	return jobs, nil
}
