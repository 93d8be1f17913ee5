// Package sweeps holds the periodic scans that move stalled appointments,
// requests and offers forward. Each sweep finds candidates, then re-checks and
// mutates every record in its own transaction, so a run can be repeated safely.
package sweeps

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
)

const (
	DefaultClientResponseWindow = 24 * time.Hour
	DefaultReminderHorizonDays  = 4
)

// Notifier delivers messages after a record's transaction has committed
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// Summary reports the outcome of one sweep run
type Summary struct {
	Sweep        string    `json:"sweep"`
	Processed    int       `json:"processed"`
	Skipped      int       `json:"skipped"`
	Errors       int       `json:"errors"`
	NotifyErrors int       `json:"notifyErrors"`
	Timestamp    time.Time `json:"timestamp"`
}

// Options configures a Sweeper. Zero values fall back to defaults.
type Options struct {
	// ClientResponseWindow is how long a requester has to answer a backup timeout
	ClientResponseWindow time.Duration
	// ReminderHorizonDays is how many days ahead the reminder sweep looks
	ReminderHorizonDays int
	// Location defines "today" for the reminder sweep
	Location *time.Location
	Clock    func() time.Time
}

// Sweeper runs the sweeps against a store
type Sweeper struct {
	db             db.Database
	notifier       Notifier
	logger         *zap.Logger
	now            func() time.Time
	responseWindow time.Duration
	horizonDays    int
	loc            *time.Location
}

// New creates a sweeper
func New(database db.Database, notifier Notifier, logger *zap.Logger, opts Options) *Sweeper {
	s := &Sweeper{
		db:             database,
		notifier:       notifier,
		logger:         logger,
		now:            time.Now,
		responseWindow: DefaultClientResponseWindow,
		horizonDays:    DefaultReminderHorizonDays,
		loc:            time.UTC,
	}
	if opts.Clock != nil {
		s.now = opts.Clock
	}
	if opts.ClientResponseWindow > 0 {
		s.responseWindow = opts.ClientResponseWindow
	}
	if opts.ReminderHorizonDays > 0 {
		s.horizonDays = opts.ReminderHorizonDays
	}
	if opts.Location != nil {
		s.loc = opts.Location
	}
	return s
}

// outcome of handling one record
type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (sum *Summary) record(o outcome) {
	switch o {
	case outcomeProcessed:
		sum.Processed++
	case outcomeSkipped:
		sum.Skipped++
	case outcomeFailed:
		sum.Errors++
	}
}

// send delivers a message and counts a failure on the summary without returning it
func (s *Sweeper) send(ctx context.Context, sum *Summary, msg notify.Message) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		sum.NotifyErrors++
		s.logger.Warn("Failed to send sweep notification",
			zap.String("sweep", sum.Sweep),
			zap.String("type", msg.Payload.Type),
			zap.Int64("recipient_id", msg.RecipientID),
			zap.Error(err))
	}
}

func (s *Sweeper) logSummary(sum Summary) {
	fields := []zap.Field{
		zap.String("sweep", sum.Sweep),
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors),
		zap.Int("notify_errors", sum.NotifyErrors),
	}
	if sum.Errors > 0 {
		s.logger.Warn("Sweep finished with errors", fields...)
		return
	}
	if sum.Processed > 0 {
		s.logger.Info("Sweep finished", fields...)
		return
	}
	s.logger.Debug("Sweep finished", fields...)
}
