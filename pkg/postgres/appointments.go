package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

const appointmentColumns = `
	id, home_id, requester_id, date::text, starts_at, price_cents, completed, cancelled,
	assigned_worker_id, coordination_state, client_response,
	response_expires_at, backup_expires_at, last_reminder_at, reminders_sent`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.HomeID, &a.RequesterID, &a.Date, &a.StartsAt, &a.PriceCents, &a.Completed, &a.Cancelled,
		&a.AssignedWorkerID, &a.State, &a.ClientResponse,
		&a.ResponseExpiresAt, &a.BackupExpiresAt, &a.LastReminderAt, &a.RemindersSent)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r reader) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`+r.lockClause, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("appointment %d", id))
	}
	return appt, nil
}

func (t *Tx) UpdateAppointment(ctx context.Context, appt *model.Appointment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments SET
			assigned_worker_id = $2,
			coordination_state = $3,
			client_response = $4,
			response_expires_at = $5,
			backup_expires_at = $6,
			last_reminder_at = $7,
			reminders_sent = $8,
			completed = $9,
			cancelled = $10
		WHERE id = $1
	`, appt.ID, appt.AssignedWorkerID, appt.State, appt.ClientResponse,
		appt.ResponseExpiresAt, appt.BackupExpiresAt, appt.LastReminderAt, appt.RemindersSent,
		appt.Completed, appt.Cancelled)
	if err != nil {
		return mapError(err, "failed to update appointment")
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows, fmt.Sprintf("appointment %d", appt.ID))
	}
	return nil
}

func (d *DB) queryAppointments(ctx context.Context, what, where string, args ...any) ([]model.Appointment, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}
	return appts, nil
}

func (d *DB) FindExpiredClientResponses(ctx context.Context, now time.Time) ([]model.Appointment, error) {
	return d.queryAppointments(ctx, "expired client responses",
		`coordination_state = 'awaiting_client' AND response_expires_at < $1`, now)
}

func (d *DB) FindTimedOutBackups(ctx context.Context, now time.Time) ([]model.Appointment, error) {
	return d.queryAppointments(ctx, "timed out backups",
		`coordination_state = 'backup_notified' AND NOT cancelled AND NOT completed AND backup_expires_at < $1`, now)
}

func (d *DB) FindUnassignedBetween(ctx context.Context, fromDate, toDate string, remindedBefore time.Time) ([]model.Appointment, error) {
	return d.queryAppointments(ctx, "unassigned appointments",
		`coordination_state <> 'assigned' AND NOT cancelled AND NOT completed
		 AND date BETWEEN $1::date AND $2::date
		 AND (last_reminder_at IS NULL OR last_reminder_at < $3)`, fromDate, toDate, remindedBefore)
}
