package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/allocator"
	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
)

const (
	DefaultRequestTTL = 48 * time.Hour
	DefaultOfferTTL   = 24 * time.Hour
)

// Notifier delivers messages once a transaction has committed
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// Encrypter seals sensitive home fields before they are stored
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	RequestTTL time.Duration
	OfferTTL   time.Duration
	Clock      func() time.Time
	Encrypter  Encrypter // nil stores home fields as given
}

// Service runs the job coordination workflows against a store
type Service struct {
	db         db.Database
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time
	requestTTL time.Duration
	offerTTL   time.Duration
	encrypter  Encrypter
}

// New creates a workflow service
func New(database db.Database, notifier Notifier, logger *zap.Logger, opts Options) *Service {
	s := &Service{
		db:         database,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
		requestTTL: DefaultRequestTTL,
		offerTTL:   DefaultOfferTTL,
		encrypter:  opts.Encrypter,
	}
	if opts.Clock != nil {
		s.now = opts.Clock
	}
	if opts.RequestTTL > 0 {
		s.requestTTL = opts.RequestTTL
	}
	if opts.OfferTTL > 0 {
		s.offerTTL = opts.OfferTTL
	}
	return s
}

// notifyAll sends messages after commit. Failures are logged and never undo the mutation.
// It returns the number of messages that failed.
func (s *Service) notifyAll(ctx context.Context, msgs ...notify.Message) int {
	failed := 0
	for _, msg := range msgs {
		if err := s.notifier.Notify(ctx, msg); err != nil {
			failed++
			s.logger.Warn("Failed to send notification",
				zap.String("type", msg.Payload.Type),
				zap.Int64("recipient_id", msg.RecipientID),
				zap.Error(err))
		}
	}
	return failed
}

// loadJob reads a job with its appointment, mapping missing rows to ErrNotFound
func loadJob(ctx context.Context, r db.Reader, jobID int64) (*model.Job, *model.Appointment, error) {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, fmt.Errorf("job %d: %w", jobID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get job %d: %w", jobID, err)
	}
	appt, err := r.GetAppointment(ctx, job.AppointmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get appointment %d: %w", job.AppointmentID, err)
	}
	return job, appt, nil
}

func loadHome(ctx context.Context, r db.Reader, homeID int64) (*model.Home, error) {
	home, err := r.GetHome(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get home %d: %w", homeID, err)
	}
	return home, nil
}

// isManager reports whether the actor may manage the job (owner or admin)
func isManager(actor model.Actor, job model.Job, appt model.Appointment) bool {
	return actor.Role == model.RoleAdmin || actor.ID == model.OwnerOf(job, appt)
}

// allocationError maps allocator failures onto the public sentinels
func allocationError(err error) error {
	if errors.Is(err, allocator.ErrInvalidUnit) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
