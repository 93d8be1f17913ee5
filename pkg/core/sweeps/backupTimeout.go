package sweeps

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

const SweepBackupTimeout = "backup_timeout"

// ProcessBackupTimeouts asks the requester to choose between cancelling and opening
// to the pool when no backup worker accepted in time. Escalated appointments leave
// the backup_notified state, so a second run finds nothing to do.
func (s *Sweeper) ProcessBackupTimeouts(ctx context.Context) Summary {
	ctx, span := tracing.StartSpan(ctx, "sweeps.BackupTimeout")
	now := s.now().UTC()
	sum := Summary{Sweep: SweepBackupTimeout, Timestamp: now}

	appts, err := s.db.FindTimedOutBackups(ctx, now)
	if err != nil {
		s.logger.Error("Failed to find timed out backups", zap.Error(err))
		sum.Errors++
		tracing.EndSpan(span, err)
		return sum
	}

	s.logger.Debug("Found timed out backups", zap.Int("count", len(appts)))

	for _, candidate := range appts {
		var appt *model.Appointment
		err := s.db.InTx(ctx, func(tx db.Tx) error {
			var err error
			appt, err = tx.GetAppointment(ctx, candidate.ID)
			if err != nil {
				return fmt.Errorf("failed to get appointment: %w", err)
			}
			if !appt.BackupNotified() || appt.Cancelled || appt.Completed ||
				appt.BackupExpiresAt == nil || !appt.BackupExpiresAt.Before(now) {
				return errStale
			}
			if err := appt.EscalateToClient(now.Add(s.responseWindow)); err != nil {
				return err
			}
			return tx.UpdateAppointment(ctx, appt)
		})
		if o := s.classify(sum.Sweep, "appointment_id", candidate.ID, err); o != outcomeProcessed {
			sum.record(o)
			continue
		}
		sum.record(outcomeProcessed)

		expires := *appt.ResponseExpiresAt
		s.send(ctx, &sum, notify.Message{
			RecipientID:    appt.RequesterID,
			Title:          "Action needed: no backup cleaner available",
			Body:           fmt.Sprintf("No backup cleaner accepted your cleaning on %s. Choose to cancel or open it to the public pool by %s.", appt.Date, expires.Format(time.RFC1123)),
			Payload:        notify.Payload{Type: notify.TypeBackupTimeout, AppointmentID: appt.ID},
			ActionRequired: true,
			ExpiresAt:      &expires,
			Email:          true,
		})
	}

	s.logSummary(sum)
	tracing.EndSpan(span, nil)
	return sum
}
