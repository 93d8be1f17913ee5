package sweeps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

const SweepRequestExpiration = "request_expiration"

// ProcessRequestExpirations expires pending join requests and offers past their deadline.
// Decisions are recorded against the system actor.
func (s *Sweeper) ProcessRequestExpirations(ctx context.Context) Summary {
	ctx, span := tracing.StartSpan(ctx, "sweeps.RequestExpiration")
	now := s.now().UTC()
	sum := Summary{Sweep: SweepRequestExpiration, Timestamp: now}

	reqs, err := s.db.FindExpiredJoinRequests(ctx, now)
	if err != nil {
		s.logger.Error("Failed to find expired join requests", zap.Error(err))
		sum.Errors++
	}
	for _, candidate := range reqs {
		var req *model.JoinRequest
		var job *model.Job
		err := s.db.InTx(ctx, func(tx db.Tx) error {
			var err error
			// Job row first, matching the workflow lock order
			job, err = tx.GetJob(ctx, candidate.JobID)
			if err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}
			req, err = tx.GetJoinRequest(ctx, candidate.ID)
			if err != nil {
				return fmt.Errorf("failed to get join request: %w", err)
			}
			if !req.IsExpiredAt(now) {
				return errStale
			}
			req.Status = model.RequestStatusExpired
			req.DecidedBy = model.SystemActorID
			req.DecidedAt = &now
			return tx.UpdateJoinRequest(ctx, req)
		})
		if o := s.classify(sum.Sweep, "request_id", candidate.ID, err); o != outcomeProcessed {
			sum.record(o)
			continue
		}
		sum.record(outcomeProcessed)

		s.send(ctx, &sum, notify.Message{
			RecipientID: req.CandidateID,
			Title:       "Join request expired",
			Body:        "Your request to join a job expired before it was answered.",
			Payload:     notify.Payload{Type: notify.TypeJoinRequestExpired, AppointmentID: job.AppointmentID, JobID: job.ID},
		})
	}

	offers, err := s.db.FindExpiredOffers(ctx, now)
	if err != nil {
		s.logger.Error("Failed to find expired offers", zap.Error(err))
		sum.Errors++
	}
	for _, candidate := range offers {
		var offer *model.Offer
		var job *model.Job
		err := s.db.InTx(ctx, func(tx db.Tx) error {
			var err error
			job, err = tx.GetJob(ctx, candidate.JobID)
			if err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}
			offer, err = tx.GetOffer(ctx, candidate.ID)
			if err != nil {
				return fmt.Errorf("failed to get offer: %w", err)
			}
			if offer.Status != model.OfferStatusPending || !now.After(offer.ExpiresAt) {
				return errStale
			}
			offer.Status = model.OfferStatusExpired
			return tx.UpdateOffer(ctx, offer)
		})
		if o := s.classify(sum.Sweep, "offer_id", candidate.ID, err); o != outcomeProcessed {
			sum.record(o)
			continue
		}
		sum.record(outcomeProcessed)

		s.send(ctx, &sum, notify.Message{
			RecipientID: offer.CandidateID,
			Title:       "Offer expired",
			Body:        "A job offer you received has expired.",
			Payload:     notify.Payload{Type: notify.TypeOfferExpired, AppointmentID: job.AppointmentID, JobID: job.ID},
		})
	}

	s.logSummary(sum)
	tracing.EndSpan(span, nil)
	return sum
}
