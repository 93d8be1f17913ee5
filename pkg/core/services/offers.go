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

// PostOfferInput describes an offer of work to one candidate
type PostOfferInput struct {
	JobID             int64
	CandidateID       int64
	OfferType         model.OfferType
	CompensationCents int64
	Units             []model.Unit
	TTL               time.Duration // 0 uses the service default
}

// OffersResult is what a candidate sees when browsing work
type OffersResult struct {
	Personal  []model.OfferDetail
	Available []model.JobDetail
}

// PostOffer sends an offer for a job slot to a candidate
func (s *Service) PostOffer(ctx context.Context, actor model.Actor, in PostOfferInput) (offer *model.Offer, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.PostOffer",
		attribute.Int64("job_id", in.JobID), attribute.Int64("candidate_id", in.CandidateID))
	defer func() { tracing.EndSpan(span, err) }()

	if !in.OfferType.IsValid() {
		return nil, fmt.Errorf("%w: unknown offer type %q", ErrInvalidInput, in.OfferType)
	}
	if in.CandidateID <= 0 {
		return nil, fmt.Errorf("%w: an offer needs a candidate", ErrInvalidInput)
	}
	if in.CompensationCents < 0 {
		return nil, fmt.Errorf("%w: compensation must not be negative", ErrInvalidInput)
	}

	var appt *model.Appointment

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		var job *model.Job
		job, appt, err = loadJob(ctx, tx, in.JobID)
		if err != nil {
			return err
		}
		if !isManager(actor, *job, *appt) {
			return fmt.Errorf("job %d: %w", in.JobID, ErrNotFound)
		}
		if job.IsClosed() {
			return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, ErrJobClosed)
		}
		if job.RemainingSlots() == 0 {
			return fmt.Errorf("job %d: %w", job.ID, ErrNoSlotsRemaining)
		}
		if in.CandidateID == job.CoordinatorID {
			return fmt.Errorf("%w: cannot offer a job to its coordinator", ErrInvalidInput)
		}

		home, err := loadHome(ctx, tx, appt.HomeID)
		if err != nil {
			return err
		}
		if err := allocator.Validate(home, in.Units); err != nil {
			return allocationError(err)
		}

		ttl := in.TTL
		if ttl <= 0 {
			ttl = s.offerTTL
		}
		now := s.now().UTC()
		offer = &model.Offer{
			JobID:             job.ID,
			CandidateID:       in.CandidateID,
			OfferType:         in.OfferType,
			CompensationCents: in.CompensationCents,
			OfferedUnits:      in.Units,
			Status:            model.OfferStatusPending,
			CreatedAt:         now,
			ExpiresAt:         now.Add(ttl),
		}
		if err := tx.InsertOffer(ctx, offer); err != nil {
			return fmt.Errorf("failed to insert offer: %w", err)
		}

		// Backup offers on an unstaffed appointment start the backup window
		if offer.OfferType == model.OfferTypeBackup && appt.State.CanTransition(model.StateBackupNotified) {
			if err := appt.NotifyBackups(offer.ExpiresAt); err != nil {
				return err
			}
			if err := tx.UpdateAppointment(ctx, appt); err != nil {
				return fmt.Errorf("failed to update appointment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Offer posted",
		zap.Int64("offer_id", offer.ID),
		zap.Int64("job_id", offer.JobID),
		zap.Int64("candidate_id", offer.CandidateID),
		zap.String("type", string(offer.OfferType)))

	expires := offer.ExpiresAt
	s.notifyAll(ctx, notify.Message{
		RecipientID:    offer.CandidateID,
		Title:          "New job offer",
		Body:           fmt.Sprintf("You have been offered work on %s. The offer expires %s.", appt.Date, expires.Format(time.RFC1123)),
		Payload:        notify.Payload{Type: notify.TypeOfferReceived, AppointmentID: appt.ID, JobID: offer.JobID},
		ActionRequired: true,
		ExpiresAt:      &expires,
		Email:          true,
	})
	return offer, nil
}

// loadOfferForCandidate locks an offer that must belong to the actor
func loadOfferForCandidate(ctx context.Context, tx db.Tx, actor model.Actor, offerID int64, now time.Time) (*model.Offer, error) {
	offer, err := tx.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	if offer.CandidateID != actor.ID {
		return nil, fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
	}
	if offer.Status == model.OfferStatusExpired ||
		(offer.Status == model.OfferStatusPending && now.After(offer.ExpiresAt)) {
		return nil, fmt.Errorf("offer %d: %w", offerID, ErrRequestExpired)
	}
	if offer.Status != model.OfferStatusPending {
		return nil, fmt.Errorf("offer %d is %s: %w", offerID, offer.Status, ErrNotPending)
	}
	return offer, nil
}

// AcceptOffer turns a pending offer into a pending join request for the job owner to approve
func (s *Service) AcceptOffer(ctx context.Context, actor model.Actor, offerID int64) (req *model.JoinRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.AcceptOffer", attribute.Int64("offer_id", offerID))
	defer func() { tracing.EndSpan(span, err) }()

	// Read the offer's job unlocked so the job row is locked before the offer row
	peek, err := s.db.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	var job *model.Job
	var appt *model.Appointment

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		now := s.now().UTC()
		job, appt, err = loadJob(ctx, tx, peek.JobID)
		if err != nil {
			return err
		}
		offer, err := loadOfferForCandidate(ctx, tx, actor, offerID, now)
		if err != nil {
			return err
		}
		if offer.JobID != job.ID {
			return fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
		}
		if job.IsClosed() {
			return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, ErrJobClosed)
		}
		if job.RemainingSlots() == 0 {
			return fmt.Errorf("job %d: %w", job.ID, ErrNoSlotsRemaining)
		}

		offer.Status = model.OfferStatusAccepted
		if err := tx.UpdateOffer(ctx, offer); err != nil {
			return fmt.Errorf("failed to update offer: %w", err)
		}

		req = &model.JoinRequest{
			JobID:         job.ID,
			CandidateID:   actor.ID,
			ProposedUnits: offer.OfferedUnits,
			Status:        model.RequestStatusPending,
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.requestTTL),
		}
		if err := tx.InsertJoinRequest(ctx, req); err != nil {
			if errors.Is(err, db.ErrConflict) {
				return fmt.Errorf("job %d: %w", job.ID, ErrDuplicatePending)
			}
			return fmt.Errorf("failed to insert join request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Offer accepted",
		zap.Int64("offer_id", offerID),
		zap.Int64("request_id", req.ID),
		zap.Int64("job_id", job.ID))

	expires := req.ExpiresAt
	s.notifyAll(ctx, notify.Message{
		RecipientID:    model.OwnerOf(*job, *appt),
		Title:          "Offer accepted",
		Body:           fmt.Sprintf("A worker accepted your offer for %s and is waiting for approval.", appt.Date),
		Payload:        notify.Payload{Type: notify.TypeJoinRequestReceived, AppointmentID: appt.ID, JobID: job.ID},
		ActionRequired: true,
		ExpiresAt:      &expires,
		Email:          true,
	})
	return req, nil
}

// DeclineOffer turns down a pending offer
func (s *Service) DeclineOffer(ctx context.Context, actor model.Actor, offerID int64) (offer *model.Offer, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.DeclineOffer", attribute.Int64("offer_id", offerID))
	defer func() { tracing.EndSpan(span, err) }()

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		offer, err = loadOfferForCandidate(ctx, tx, actor, offerID, s.now().UTC())
		if err != nil {
			return err
		}
		offer.Status = model.OfferStatusDeclined
		if err := tx.UpdateOffer(ctx, offer); err != nil {
			return fmt.Errorf("failed to update offer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Offer declined", zap.Int64("offer_id", offerID))
	return offer, nil
}

// ListOffers returns the actor's pending offers and the open pool jobs they could request to join
func (s *Service) ListOffers(ctx context.Context, actor model.Actor) (*OffersResult, error) {
	result := &OffersResult{Personal: []model.OfferDetail{}, Available: []model.JobDetail{}}
	now := s.now().UTC()

	offers, err := s.db.ListOffersForCandidate(ctx, actor.ID, model.OfferStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}

	offered := make(map[int64]bool, len(offers))
	for _, offer := range offers {
		if now.After(offer.ExpiresAt) {
			continue
		}
		detail, err := s.loadDetail(ctx, offer.JobID)
		if err != nil {
			return nil, err
		}
		offered[offer.JobID] = true
		result.Personal = append(result.Personal, model.OfferDetail{Offer: offer, JobDetail: *detail})
	}

	if actor.Role != model.RoleWorker {
		return result, nil
	}

	jobs, err := s.db.ListOpenJobs(ctx, now.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to list open jobs: %w", err)
	}
	for _, job := range jobs {
		if job.RemainingSlots() == 0 || job.CoordinatorID == actor.ID || offered[job.ID] {
			continue
		}
		detail, err := s.loadDetail(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		result.Available = append(result.Available, *detail)
	}

	s.logger.Debug("Listed offers",
		zap.Int64("candidate_id", actor.ID),
		zap.Int("personal", len(result.Personal)),
		zap.Int("available", len(result.Available)))
	return result, nil
}

func (s *Service) loadDetail(ctx context.Context, jobID int64) (*model.JobDetail, error) {
	job, appt, err := loadJob(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	home, err := loadHome(ctx, s.db, appt.HomeID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.db.ListRoomAssignments(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room assignments: %w", err)
	}
	return &model.JobDetail{Job: *job, Appointment: *appt, Home: *home, Assignments: assignments}, nil
}
