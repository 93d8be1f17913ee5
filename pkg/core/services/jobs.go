package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

// CreateJobInput describes a new multi-worker job
type CreateJobInput struct {
	AppointmentID    int64
	TotalRequired    int
	CoordinatorID    int64 // 0 for a system-generated job with no coordinating worker
	AutoGenerated    bool
	EstimatedMinutes int
}

// CreateJob opens a job for an appointment. The coordinator, when set, occupies one slot.
func (s *Service) CreateJob(ctx context.Context, actor model.Actor, in CreateJobInput) (job *model.Job, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.CreateJob", attribute.Int64("appointment_id", in.AppointmentID))
	defer func() { tracing.EndSpan(span, err) }()

	if in.TotalRequired < 2 {
		return nil, fmt.Errorf("%w: a job needs at least 2 workers, got %d", ErrInvalidInput, in.TotalRequired)
	}
	if in.EstimatedMinutes < 0 {
		return nil, fmt.Errorf("%w: estimated minutes must not be negative", ErrInvalidInput)
	}

	s.logger.Debug("Creating job",
		zap.Int64("appointment_id", in.AppointmentID),
		zap.Int("total_required", in.TotalRequired),
		zap.Int64("coordinator_id", in.CoordinatorID))

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		appt, err := tx.GetAppointment(ctx, in.AppointmentID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("appointment %d: %w", in.AppointmentID, ErrNotFound)
			}
			return fmt.Errorf("failed to get appointment: %w", err)
		}

		switch {
		case actor.Role == model.RoleAdmin:
		case in.CoordinatorID != 0 && actor.ID == in.CoordinatorID && appt.AssignedWorkerID == actor.ID:
		case actor.ID == appt.RequesterID:
			if in.CoordinatorID != 0 && in.CoordinatorID != appt.AssignedWorkerID {
				return fmt.Errorf("%w: coordinator must be the assigned worker", ErrInvalidInput)
			}
		default:
			return fmt.Errorf("appointment %d: %w", in.AppointmentID, ErrNotFound)
		}

		if appt.Cancelled || appt.Completed {
			return fmt.Errorf("appointment %d is no longer active: %w", appt.ID, ErrJobClosed)
		}

		job = &model.Job{
			AppointmentID:    appt.ID,
			TotalRequired:    in.TotalRequired,
			Status:           model.JobStatusOpen,
			CoordinatorID:    in.CoordinatorID,
			AutoGenerated:    in.AutoGenerated,
			EstimatedMinutes: in.EstimatedMinutes,
			CreatedAt:        s.now().UTC(),
		}
		if in.CoordinatorID != 0 {
			job.ConfirmedCount = 1
		}

		if err := tx.InsertJob(ctx, job); err != nil {
			if errors.Is(err, db.ErrConflict) {
				return fmt.Errorf("%w: appointment %d already has a job", ErrInvalidInput, appt.ID)
			}
			return fmt.Errorf("failed to insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job created",
		zap.Int64("job_id", job.ID),
		zap.Int64("appointment_id", job.AppointmentID),
		zap.Int("remaining_slots", job.RemainingSlots()))
	return job, nil
}

// CancelJob closes a job as cancelled and declines its pending requests
func (s *Service) CancelJob(ctx context.Context, actor model.Actor, jobID int64) (*model.Job, error) {
	return s.closeJob(ctx, actor, jobID, model.JobStatusCancelled, "job cancelled")
}

// CompleteJob closes a job as completed and declines its pending requests
func (s *Service) CompleteJob(ctx context.Context, actor model.Actor, jobID int64) (*model.Job, error) {
	return s.closeJob(ctx, actor, jobID, model.JobStatusCompleted, "job completed")
}

func (s *Service) closeJob(ctx context.Context, actor model.Actor, jobID int64, status model.JobStatus, reason string) (job *model.Job, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.CloseJob",
		attribute.Int64("job_id", jobID), attribute.String("status", string(status)))
	defer func() { tracing.EndSpan(span, err) }()

	var declined []model.JoinRequest
	var expiredOffers []model.Offer

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		var appt *model.Appointment
		job, appt, err = loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if !isManager(actor, *job, *appt) {
			return fmt.Errorf("job %d: %w", jobID, ErrNotFound)
		}
		if job.IsClosed() {
			return fmt.Errorf("job %d is already %s: %w", jobID, job.Status, ErrJobClosed)
		}

		if err := tx.UpdateJobStatus(ctx, jobID, status); err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}
		job.Status = status

		declined, err = declinePending(ctx, tx, jobID, 0, reason, s.now().UTC())
		if err != nil {
			return err
		}

		// Pending offers for a closed job can never be accepted
		offers, err := tx.ListOffersForJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to list offers: %w", err)
		}
		for i := range offers {
			if offers[i].Status != model.OfferStatusPending {
				continue
			}
			offers[i].Status = model.OfferStatusExpired
			if err := tx.UpdateOffer(ctx, &offers[i]); err != nil {
				return fmt.Errorf("failed to expire offer %d: %w", offers[i].ID, err)
			}
			expiredOffers = append(expiredOffers, offers[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job closed",
		zap.Int64("job_id", jobID),
		zap.String("status", string(status)),
		zap.Int("declined_requests", len(declined)),
		zap.Int("expired_offers", len(expiredOffers)))

	msgs := make([]notify.Message, 0, len(declined)+len(expiredOffers))
	for _, req := range declined {
		msgs = append(msgs, declinedMessage(req, job))
	}
	for _, offer := range expiredOffers {
		msgs = append(msgs, notify.Message{
			RecipientID: offer.CandidateID,
			Title:       "Offer withdrawn",
			Body:        fmt.Sprintf("The offer for job %d is no longer available (%s).", jobID, reason),
			Payload:     notify.Payload{Type: notify.TypeOfferExpired, AppointmentID: job.AppointmentID, JobID: jobID},
		})
	}
	s.notifyAll(ctx, msgs...)
	return job, nil
}

// declinePending declines every pending request of a job except keepID
func declinePending(ctx context.Context, tx db.Tx, jobID, keepID int64, reason string, now time.Time) ([]model.JoinRequest, error) {
	reqs, err := tx.ListJoinRequestsForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}

	var declined []model.JoinRequest
	for i := range reqs {
		req := &reqs[i]
		if req.ID == keepID || req.Status != model.RequestStatusPending {
			continue
		}
		req.Status = model.RequestStatusDeclined
		req.DeclineReason = reason
		req.DecidedBy = model.SystemActorID
		req.DecidedAt = &now
		if err := tx.UpdateJoinRequest(ctx, req); err != nil {
			return nil, fmt.Errorf("failed to decline join request %d: %w", req.ID, err)
		}
		declined = append(declined, *req)
	}
	return declined, nil
}

// GetJob loads a job for a viewer and reports whether the viewer is confirmed on it.
// Workers who are not involved only see jobs that are open in the pool.
func (s *Service) GetJob(ctx context.Context, actor model.Actor, jobID int64) (*model.JobDetail, bool, error) {
	detail, err := s.loadDetail(ctx, jobID)
	if err != nil {
		return nil, false, err
	}

	confirmed, err := s.isConfirmed(ctx, actor, detail)
	if err != nil {
		return nil, false, err
	}
	if !confirmed && (detail.Job.Status != model.JobStatusOpen || actor.Role != model.RoleWorker) {
		return nil, false, fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	return detail, confirmed, nil
}

// isConfirmed reports whether the actor manages the job or holds a confirmed slot on it
func (s *Service) isConfirmed(ctx context.Context, actor model.Actor, detail *model.JobDetail) (bool, error) {
	appt := detail.Appointment
	if isManager(actor, detail.Job, appt) || appt.AssignedWorkerID == actor.ID || appt.RequesterID == actor.ID {
		return true, nil
	}
	for _, a := range detail.Assignments {
		if a.WorkerID == actor.ID {
			return true, nil
		}
	}
	reqs, err := s.db.ListJoinRequests(ctx, db.JoinRequestFilter{CandidateID: actor.ID, Status: model.RequestStatusApproved})
	if err != nil {
		return false, fmt.Errorf("failed to list join requests: %w", err)
	}
	for _, r := range reqs {
		if r.JobID == detail.Job.ID {
			return true, nil
		}
	}
	return false, nil
}
