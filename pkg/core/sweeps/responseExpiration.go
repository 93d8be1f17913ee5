package sweeps

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

const SweepResponseExpiration = "response_expiration"

// errStale marks a candidate whose state moved on between the scan and the lock
var errStale = errors.New("record changed since scan")

// ProcessResponseExpirations closes requester escalations that were not answered in time
func (s *Sweeper) ProcessResponseExpirations(ctx context.Context) Summary {
	ctx, span := tracing.StartSpan(ctx, "sweeps.ResponseExpiration")
	now := s.now().UTC()
	sum := Summary{Sweep: SweepResponseExpiration, Timestamp: now}

	appts, err := s.db.FindExpiredClientResponses(ctx, now)
	if err != nil {
		s.logger.Error("Failed to find expired client responses", zap.Error(err))
		sum.Errors++
		tracing.EndSpan(span, err)
		return sum
	}

	s.logger.Debug("Found expired client responses", zap.Int("count", len(appts)))

	for _, candidate := range appts {
		var appt *model.Appointment
		err := s.db.InTx(ctx, func(tx db.Tx) error {
			var err error
			appt, err = tx.GetAppointment(ctx, candidate.ID)
			if err != nil {
				return fmt.Errorf("failed to get appointment: %w", err)
			}
			if !appt.ClientResponsePending() || appt.ResponseExpiresAt == nil || !appt.ResponseExpiresAt.Before(now) {
				return errStale
			}
			if err := appt.ExpireClientResponse(); err != nil {
				return err
			}
			return tx.UpdateAppointment(ctx, appt)
		})
		if o := s.classify(sum.Sweep, "appointment_id", candidate.ID, err); o != outcomeProcessed {
			sum.record(o)
			continue
		}
		sum.record(outcomeProcessed)

		s.send(ctx, &sum, notify.Message{
			RecipientID: appt.RequesterID,
			Title:       "No response received",
			Body:        fmt.Sprintf("We didn't hear back about your cleaning on %s, so the request has lapsed.", appt.Date),
			Payload:     notify.Payload{Type: notify.TypeResponseExpired, AppointmentID: appt.ID},
			Email:       true,
		})
		if _, err := s.db.MarkNotificationsActioned(ctx, appt.ID, []string{notify.TypeBackupTimeout}); err != nil {
			sum.NotifyErrors++
			s.logger.Warn("Failed to mark notifications actioned", zap.Int64("appointment_id", appt.ID), zap.Error(err))
		}
	}

	if expired, err := s.db.ExpireNotifications(ctx, now); err != nil {
		sum.NotifyErrors++
		s.logger.Warn("Failed to expire notifications", zap.Error(err))
	} else if expired > 0 {
		s.logger.Debug("Expired stale notifications", zap.Int("count", expired))
	}

	s.logSummary(sum)
	tracing.EndSpan(span, nil)
	return sum
}

// classify turns a per-record transaction result into an outcome and logs failures
func (s *Sweeper) classify(sweep, idField string, id int64, err error) outcome {
	switch {
	case err == nil:
		return outcomeProcessed
	case errors.Is(err, errStale):
		s.logger.Debug("Skipping record changed since scan", zap.String("sweep", sweep), zap.Int64(idField, id))
		return outcomeSkipped
	default:
		s.logger.Error("Failed to process record", zap.String("sweep", sweep), zap.Int64(idField, id), zap.Error(err))
		return outcomeFailed
	}
}
