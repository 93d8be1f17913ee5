package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

func (d *DB) InsertNotification(ctx context.Context, n *model.Notification) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, type, title, body, appointment_id, job_id,
			action_required, actioned, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, n.ID, n.RecipientID, n.Type, n.Title, n.Body, n.AppointmentID, n.JobID,
		n.ActionRequired, n.Actioned, n.ExpiresAt, n.CreatedAt)
	if err != nil {
		return mapError(err, "failed to insert notification")
	}
	return nil
}

// MarkNotificationsActioned closes open action-required notifications for an appointment.
// An empty types list matches every type.
func (d *DB) MarkNotificationsActioned(ctx context.Context, appointmentID int64, types []string) (int, error) {
	query := `
		UPDATE notifications SET actioned = TRUE
		WHERE appointment_id = $1 AND action_required AND NOT actioned`
	args := []any{appointmentID}
	if len(types) > 0 {
		query += ` AND type = ANY($2)`
		args = append(args, types)
	}

	tag, err := d.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications actioned: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ExpireNotifications closes action-required notifications whose deadline has passed
func (d *DB) ExpireNotifications(ctx context.Context, now time.Time) (int, error) {
	tag, err := d.pool.Exec(ctx, `
		UPDATE notifications SET actioned = TRUE
		WHERE action_required AND NOT actioned AND expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
