package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

// EscalationChoice is the requester's answer when no backup worker accepted
type EscalationChoice string

const (
	ChoiceOpenToPool EscalationChoice = "open_to_pool"
	ChoiceCancel     EscalationChoice = "cancel"
)

func (c EscalationChoice) IsValid() bool {
	return c == ChoiceOpenToPool || c == ChoiceCancel
}

// RespondToEscalation applies the requester's choice to an escalated appointment.
// A late answer after the response window closed is still accepted.
func (s *Service) RespondToEscalation(ctx context.Context, actor model.Actor, appointmentID int64, choice EscalationChoice) (appt *model.Appointment, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.RespondToEscalation",
		attribute.Int64("appointment_id", appointmentID), attribute.String("choice", string(choice)))
	defer func() { tracing.EndSpan(span, err) }()

	if !choice.IsValid() {
		return nil, fmt.Errorf("%w: unknown escalation choice %q", ErrInvalidInput, choice)
	}

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		appt, err = tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
			}
			return fmt.Errorf("failed to get appointment: %w", err)
		}
		if actor.Role != model.RoleAdmin && actor.ID != appt.RequesterID {
			return fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
		}
		if appt.State != model.StateAwaitingClient && appt.State != model.StateResponseExpired {
			return fmt.Errorf("appointment %d is %s and has no open escalation: %w", appt.ID, appt.State, ErrNotPending)
		}

		switch choice {
		case ChoiceOpenToPool:
			err = appt.OpenToPool()
		case ChoiceCancel:
			err = appt.Unassign()
			appt.Cancelled = true
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("failed to update appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Escalation answered",
		zap.Int64("appointment_id", appt.ID),
		zap.String("choice", string(choice)),
		zap.String("state", string(appt.State)))

	// The choice notice no longer needs an answer
	n, err := s.db.MarkNotificationsActioned(ctx, appt.ID, []string{notify.TypeBackupTimeout, notify.TypeResponseExpired})
	if err != nil {
		s.logger.Warn("Failed to mark escalation notifications actioned",
			zap.Int64("appointment_id", appt.ID), zap.Error(err))
	} else if n > 0 {
		s.logger.Debug("Marked escalation notifications actioned", zap.Int("count", n))
	}
	return appt, nil
}
