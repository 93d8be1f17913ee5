package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/allocator"
	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

// AllocateRooms assigns further units to a worker already confirmed on the job
func (s *Service) AllocateRooms(ctx context.Context, actor model.Actor, jobID, workerID int64, units []model.Unit) (assignments []model.RoomAssignment, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.AllocateRooms",
		attribute.Int64("job_id", jobID), attribute.Int64("worker_id", workerID))
	defer func() { tracing.EndSpan(span, err) }()

	if len(units) == 0 {
		return nil, fmt.Errorf("%w: no units to allocate", ErrInvalidInput)
	}

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		job, appt, err := loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if !isManager(actor, *job, *appt) {
			return fmt.Errorf("job %d: %w", jobID, ErrNotFound)
		}
		if job.IsClosed() {
			return fmt.Errorf("job %d is %s: %w", jobID, job.Status, ErrJobClosed)
		}

		onJob := workerID == job.CoordinatorID
		if !onJob {
			reqs, err := tx.ListJoinRequestsForJob(ctx, jobID)
			if err != nil {
				return fmt.Errorf("failed to list join requests: %w", err)
			}
			for _, r := range reqs {
				if r.CandidateID == workerID && r.Status == model.RequestStatusApproved {
					onJob = true
					break
				}
			}
		}
		if !onJob {
			return fmt.Errorf("%w: worker %d is not confirmed on job %d", ErrInvalidInput, workerID, jobID)
		}

		home, err := loadHome(ctx, tx, appt.HomeID)
		if err != nil {
			return err
		}
		assignments, err = allocator.Allocate(ctx, tx, job, home, workerID, units)
		if err != nil {
			return allocationError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Rooms allocated",
		zap.Int64("job_id", jobID),
		zap.Int64("worker_id", workerID),
		zap.Int("units", len(assignments)))
	return assignments, nil
}
