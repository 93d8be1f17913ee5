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

const SweepUnassignedReminder = "unassigned_reminder"

const (
	UrgencyUrgent = "urgent"
	UrgencyHigh   = "high"
	UrgencyNormal = "normal"
)

// Urgency scales a reminder by how many days remain before the appointment
func Urgency(daysUntil int) string {
	switch {
	case daysUntil <= 1:
		return UrgencyUrgent
	case daysUntil == 2:
		return UrgencyHigh
	default:
		return UrgencyNormal
	}
}

// startOfDay returns midnight of t's day in loc
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ProcessUnassignedReminders reminds requesters about appointments in the next few days
// that still have no worker. Each appointment is reminded at most once per day.
func (s *Sweeper) ProcessUnassignedReminders(ctx context.Context) Summary {
	ctx, span := tracing.StartSpan(ctx, "sweeps.UnassignedReminder")
	now := s.now()
	sum := Summary{Sweep: SweepUnassignedReminder, Timestamp: now.UTC()}

	today := startOfDay(now, s.loc)
	from := today.Format("2006-01-02")
	to := today.AddDate(0, 0, s.horizonDays).Format("2006-01-02")

	appts, err := s.db.FindUnassignedBetween(ctx, from, to, today)
	if err != nil {
		s.logger.Error("Failed to find unassigned appointments", zap.Error(err))
		sum.Errors++
		tracing.EndSpan(span, err)
		return sum
	}

	s.logger.Debug("Found unassigned appointments",
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("count", len(appts)))

	for _, candidate := range appts {
		day, err := time.ParseInLocation("2006-01-02", candidate.Date, s.loc)
		if err != nil {
			s.logger.Error("Appointment has an unparseable date",
				zap.Int64("appointment_id", candidate.ID),
				zap.String("date", candidate.Date),
				zap.Error(err))
			sum.record(outcomeFailed)
			continue
		}
		daysUntil := int((day.Sub(today) + 12*time.Hour) / (24 * time.Hour))

		var appt *model.Appointment
		err = s.db.InTx(ctx, func(tx db.Tx) error {
			var err error
			appt, err = tx.GetAppointment(ctx, candidate.ID)
			if err != nil {
				return fmt.Errorf("failed to get appointment: %w", err)
			}
			if appt.HasBeenAssigned() || appt.Cancelled || appt.Completed || appt.ReminderSentSince(today) {
				return errStale
			}
			appt.RecordReminder(now.UTC())
			return tx.UpdateAppointment(ctx, appt)
		})
		if o := s.classify(sum.Sweep, "appointment_id", candidate.ID, err); o != outcomeProcessed {
			sum.record(o)
			continue
		}
		sum.record(outcomeProcessed)

		urgency := Urgency(daysUntil)
		s.send(ctx, &sum, notify.Message{
			RecipientID: appt.RequesterID,
			Title:       reminderTitle(urgency),
			Body:        fmt.Sprintf("Your cleaning on %s still has no cleaner assigned (%s).", appt.Date, daysLabel(daysUntil)),
			Payload:     notify.Payload{Type: notify.TypeUnassignedReminder, AppointmentID: appt.ID, Urgency: urgency},
			Email:       urgency != UrgencyNormal,
		})
	}

	s.logSummary(sum)
	tracing.EndSpan(span, nil)
	return sum
}

func reminderTitle(urgency string) string {
	switch urgency {
	case UrgencyUrgent:
		return "Urgent: no cleaner assigned"
	case UrgencyHigh:
		return "Reminder: no cleaner assigned yet"
	default:
		return "Your upcoming cleaning needs a cleaner"
	}
}

func daysLabel(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
