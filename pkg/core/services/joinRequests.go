package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/allocator"
	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

// ApproveResult represents the outcome of approving a join request
type ApproveResult struct {
	Request      *model.JoinRequest
	Job          *model.Job
	Assignments  []model.RoomAssignment
	AutoDeclined []model.JoinRequest
}

// Submit records a candidate's request to fill one slot of a job
func (s *Service) Submit(ctx context.Context, actor model.Actor, jobID int64, units []model.Unit) (req *model.JoinRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.SubmitJoinRequest",
		attribute.Int64("job_id", jobID), attribute.Int64("candidate_id", actor.ID))
	defer func() { tracing.EndSpan(span, err) }()

	if actor.Role != model.RoleWorker {
		return nil, fmt.Errorf("only workers can request to join a job: %w", ErrForbidden)
	}

	var job *model.Job
	var appt *model.Appointment

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		job, appt, err = loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.IsClosed() {
			return fmt.Errorf("job %d is %s: %w", jobID, job.Status, ErrJobClosed)
		}
		if job.RemainingSlots() == 0 {
			return fmt.Errorf("job %d: %w", jobID, ErrNoSlotsRemaining)
		}
		if job.CoordinatorID == actor.ID {
			return fmt.Errorf("%w: the coordinator cannot request to join their own job", ErrInvalidInput)
		}

		existing, err := tx.ListJoinRequestsForJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to list join requests: %w", err)
		}
		for _, r := range existing {
			if r.CandidateID != actor.ID {
				continue
			}
			switch r.Status {
			case model.RequestStatusPending:
				return fmt.Errorf("request %d: %w", r.ID, ErrDuplicatePending)
			case model.RequestStatusApproved:
				return fmt.Errorf("%w: candidate %d is already confirmed on job %d", ErrInvalidInput, actor.ID, jobID)
			}
		}

		home, err := loadHome(ctx, tx, appt.HomeID)
		if err != nil {
			return err
		}
		if err := allocator.Validate(home, units); err != nil {
			return allocationError(err)
		}

		now := s.now().UTC()
		req = &model.JoinRequest{
			JobID:         jobID,
			CandidateID:   actor.ID,
			ProposedUnits: units,
			Status:        model.RequestStatusPending,
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.requestTTL),
		}
		if err := tx.InsertJoinRequest(ctx, req); err != nil {
			if errors.Is(err, db.ErrConflict) {
				return fmt.Errorf("job %d: %w", jobID, ErrDuplicatePending)
			}
			return fmt.Errorf("failed to insert join request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Join request submitted",
		zap.Int64("request_id", req.ID),
		zap.Int64("job_id", jobID),
		zap.Int64("candidate_id", actor.ID),
		zap.Int("units", len(units)))

	expires := req.ExpiresAt
	s.notifyAll(ctx, notify.Message{
		RecipientID:    model.OwnerOf(*job, *appt),
		Title:          "New request to join your job",
		Body:           fmt.Sprintf("A worker asked to join the cleaning on %s. Respond before %s.", appt.Date, expires.Format(time.RFC1123)),
		Payload:        notify.Payload{Type: notify.TypeJoinRequestReceived, AppointmentID: appt.ID, JobID: jobID},
		ActionRequired: true,
		ExpiresAt:      &expires,
		Email:          true,
	})
	return req, nil
}

// decisionContext is a join request loaded and locked together with its job
type decisionContext struct {
	req  *model.JoinRequest
	job  *model.Job
	appt *model.Appointment
}

// requestJobID reads the job a request belongs to without taking a lock.
// Every workflow locks the job row before any of its request rows.
func (s *Service) requestJobID(ctx context.Context, requestID int64) (int64, error) {
	req, err := s.db.GetJoinRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, fmt.Errorf("join request %d: %w", requestID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to get join request: %w", err)
	}
	return req.JobID, nil
}

// lockRequest locks the job, then the request, and checks the request still belongs to the job
func lockRequest(ctx context.Context, tx db.Tx, jobID, requestID int64) (*decisionContext, error) {
	job, appt, err := loadJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	req, err := tx.GetJoinRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("join request %d: %w", requestID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	if req.JobID != jobID {
		return nil, fmt.Errorf("join request %d: %w", requestID, ErrNotFound)
	}
	return &decisionContext{req: req, job: job, appt: appt}, nil
}

// loadForDecision locks the job and the request and checks that the actor manages the job.
// Callers unrelated to the request see ErrNotFound; the candidate sees ErrForbidden.
func loadForDecision(ctx context.Context, tx db.Tx, actor model.Actor, jobID, requestID int64) (*decisionContext, error) {
	dc, err := lockRequest(ctx, tx, jobID, requestID)
	if err != nil {
		return nil, err
	}
	if !isManager(actor, *dc.job, *dc.appt) {
		if actor.ID == dc.req.CandidateID {
			return nil, fmt.Errorf("candidates cannot decide their own request: %w", ErrForbidden)
		}
		return nil, fmt.Errorf("join request %d: %w", requestID, ErrNotFound)
	}
	return dc, nil
}

// checkPending distinguishes an expired request from one already decided
func checkPending(req *model.JoinRequest, now time.Time) error {
	if req.Status == model.RequestStatusExpired || req.IsExpiredAt(now) {
		return fmt.Errorf("join request %d: %w", req.ID, ErrRequestExpired)
	}
	if req.Status != model.RequestStatusPending {
		return fmt.Errorf("join request %d is %s: %w", req.ID, req.Status, ErrNotPending)
	}
	return nil
}

// Approve confirms a candidate on the job: allocates their proposed units and takes one slot.
// The slot is re-checked at increment time, so concurrent approvals cannot overfill the job.
func (s *Service) Approve(ctx context.Context, actor model.Actor, requestID int64) (result *ApproveResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.ApproveJoinRequest", attribute.Int64("request_id", requestID))
	defer func() { tracing.EndSpan(span, err) }()

	jobID, err := s.requestJobID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var appt *model.Appointment

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		dc, err := loadForDecision(ctx, tx, actor, jobID, requestID)
		if err != nil {
			return err
		}
		req, job := dc.req, dc.job
		appt = dc.appt
		now := s.now().UTC()

		// Auto-declined because another approval took the last slot
		if req.Status == model.RequestStatusDeclined && req.DeclineReason == ReasonJobFilled && job.IsFilled() {
			return fmt.Errorf("job %d: %w", job.ID, ErrNoSlotsRemaining)
		}
		if err := checkPending(req, now); err != nil {
			return err
		}
		if job.IsClosed() {
			return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, ErrJobClosed)
		}
		if job.RemainingSlots() == 0 {
			return fmt.Errorf("job %d: %w", job.ID, ErrNoSlotsRemaining)
		}

		home, err := loadHome(ctx, tx, appt.HomeID)
		if err != nil {
			return err
		}
		assignments, err := allocator.Allocate(ctx, tx, job, home, req.CandidateID, req.ProposedUnits)
		if err != nil {
			return allocationError(err)
		}

		updated, ok, err := tx.IncrementConfirmed(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("failed to increment confirmed count: %w", err)
		}
		if !ok {
			return fmt.Errorf("job %d: %w", job.ID, ErrNoSlotsRemaining)
		}

		req.Status = model.RequestStatusApproved
		req.DecidedBy = actor.ID
		req.DecidedAt = &now
		if err := tx.UpdateJoinRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to update join request: %w", err)
		}

		// The first worker confirmed on an appointment nobody holds becomes its worker
		if appt.AssignedWorkerID == 0 && appt.State.CanTransition(model.StateAssigned) {
			if err := appt.Assign(req.CandidateID); err != nil {
				return err
			}
			if err := tx.UpdateAppointment(ctx, appt); err != nil {
				return fmt.Errorf("failed to update appointment: %w", err)
			}
		}

		result = &ApproveResult{Request: req, Job: updated, Assignments: assignments}
		if updated.IsFilled() {
			result.AutoDeclined, err = declinePending(ctx, tx, job.ID, req.ID, ReasonJobFilled, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Join request approved",
		zap.Int64("request_id", requestID),
		zap.Int64("job_id", result.Job.ID),
		zap.Int("confirmed", result.Job.ConfirmedCount),
		zap.Int("total_required", result.Job.TotalRequired),
		zap.Int("auto_declined", len(result.AutoDeclined)))

	msgs := []notify.Message{{
		RecipientID: result.Request.CandidateID,
		Title:       "You're confirmed",
		Body:        fmt.Sprintf("Your request to join the cleaning on %s was approved.", appt.Date),
		Payload:     notify.Payload{Type: notify.TypeJoinRequestApproved, AppointmentID: appt.ID, JobID: result.Job.ID},
		Email:       true,
	}}
	for _, r := range result.AutoDeclined {
		msgs = append(msgs, declinedMessage(r, result.Job))
	}
	s.notifyAll(ctx, msgs...)
	return result, nil
}

// Decline rejects a pending request with an optional reason
func (s *Service) Decline(ctx context.Context, actor model.Actor, requestID int64, reason string) (req *model.JoinRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.DeclineJoinRequest", attribute.Int64("request_id", requestID))
	defer func() { tracing.EndSpan(span, err) }()

	jobID, err := s.requestJobID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var job *model.Job

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		dc, err := loadForDecision(ctx, tx, actor, jobID, requestID)
		if err != nil {
			return err
		}
		req, job = dc.req, dc.job
		now := s.now().UTC()

		if err := checkPending(req, now); err != nil {
			return err
		}

		req.Status = model.RequestStatusDeclined
		req.DeclineReason = reason
		req.DecidedBy = actor.ID
		req.DecidedAt = &now
		if err := tx.UpdateJoinRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to update join request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Join request declined", zap.Int64("request_id", requestID), zap.String("reason", reason))
	s.notifyAll(ctx, declinedMessage(*req, job))
	return req, nil
}

// Cancel withdraws the candidate's own pending request
func (s *Service) Cancel(ctx context.Context, actor model.Actor, requestID int64) (req *model.JoinRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.CancelJoinRequest", attribute.Int64("request_id", requestID))
	defer func() { tracing.EndSpan(span, err) }()

	jobID, err := s.requestJobID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var job *model.Job
	var appt *model.Appointment

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		dc, err := lockRequest(ctx, tx, jobID, requestID)
		if err != nil {
			return err
		}
		req, job, appt = dc.req, dc.job, dc.appt
		if actor.ID != req.CandidateID {
			if actor.ID == model.OwnerOf(*job, *appt) {
				return fmt.Errorf("only the candidate can cancel a request: %w", ErrForbidden)
			}
			return fmt.Errorf("join request %d: %w", requestID, ErrNotFound)
		}
		if req.Status != model.RequestStatusPending {
			return fmt.Errorf("join request %d is %s: %w", req.ID, req.Status, ErrNotPending)
		}

		now := s.now().UTC()
		req.Status = model.RequestStatusCancelled
		req.DecidedBy = actor.ID
		req.DecidedAt = &now
		if err := tx.UpdateJoinRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to update join request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Join request cancelled", zap.Int64("request_id", requestID))
	s.notifyAll(ctx, notify.Message{
		RecipientID: model.OwnerOf(*job, *appt),
		Title:       "Join request withdrawn",
		Body:        fmt.Sprintf("A worker withdrew their request to join the cleaning on %s.", appt.Date),
		Payload:     notify.Payload{Type: notify.TypeJoinRequestCancelled, AppointmentID: appt.ID, JobID: job.ID},
	})
	return req, nil
}

// ListForCandidate returns the actor's own requests, optionally filtered by status
func (s *Service) ListForCandidate(ctx context.Context, actor model.Actor, status model.RequestStatus) ([]model.JoinRequest, error) {
	reqs, err := s.db.ListJoinRequests(ctx, db.JoinRequestFilter{CandidateID: actor.ID, Status: status})
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	return reqs, nil
}

// ListPendingForApprover returns pending requests on jobs the actor owns
func (s *Service) ListPendingForApprover(ctx context.Context, actor model.Actor) ([]model.JoinRequest, error) {
	reqs, err := s.db.ListJoinRequests(ctx, db.JoinRequestFilter{OwnerID: actor.ID, Status: model.RequestStatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	return reqs, nil
}

// ListForAppointment returns every request on the appointment's job.
// Only the job owner or an admin may list them.
func (s *Service) ListForAppointment(ctx context.Context, actor model.Actor, appointmentID int64) ([]model.JoinRequest, error) {
	job, err := s.db.GetJobByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("job for appointment %d: %w", appointmentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	appt, err := s.db.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if !isManager(actor, *job, *appt) {
		return nil, fmt.Errorf("job for appointment %d: %w", appointmentID, ErrNotFound)
	}

	reqs, err := s.db.ListJoinRequests(ctx, db.JoinRequestFilter{AppointmentID: appointmentID})
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	return reqs, nil
}

func declinedMessage(req model.JoinRequest, job *model.Job) notify.Message {
	body := "Your request to join the job was declined."
	if req.DeclineReason != "" {
		body = fmt.Sprintf("Your request to join the job was declined: %s.", req.DeclineReason)
	}
	return notify.Message{
		RecipientID: req.CandidateID,
		Title:       "Join request declined",
		Body:        body,
		Payload:     notify.Payload{Type: notify.TypeJoinRequestDeclined, AppointmentID: job.AppointmentID, JobID: job.ID},
	}
}
