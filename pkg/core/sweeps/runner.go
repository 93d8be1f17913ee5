package sweeps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
)

const (
	DefaultResponseExpirationInterval = time.Hour
	DefaultBackupTimeoutInterval      = time.Hour
	DefaultRequestExpirationInterval  = time.Hour
	DefaultReminderInterval           = 24 * time.Hour
)

// Schedule yields the next run after a given instant
type Schedule interface {
	Next(after time.Time) time.Time
}

// Every runs at a fixed interval
type Every time.Duration

func (e Every) Next(after time.Time) time.Time {
	return after.Add(time.Duration(e))
}

// RRuleSchedule runs on the occurrences of an RFC 5545 recurrence rule
type RRuleSchedule struct {
	rule *rrule.RRule
}

// ParseRRule builds a schedule from a rule such as "FREQ=DAILY;BYHOUR=8;BYMINUTE=0;BYSECOND=0".
// Occurrences are counted from dtstart.
func ParseRRule(expr string, dtstart time.Time) (*RRuleSchedule, error) {
	rule, err := rrule.StrToRRule(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rrule %q: %w", expr, err)
	}
	rule.DTStart(dtstart)
	return &RRuleSchedule{rule: rule}, nil
}

// Next returns the first occurrence strictly after the given instant, or the zero time when the rule is exhausted
func (r *RRuleSchedule) Next(after time.Time) time.Time {
	return r.rule.After(after, false)
}

// StartResponseExpiration runs the response expiration sweep now and then every interval
func (s *Sweeper) StartResponseExpiration(ctx context.Context, interval time.Duration) (stop func()) {
	return s.start(ctx, SweepResponseExpiration, Every(interval), true, s.ProcessResponseExpirations)
}

// StartBackupTimeout runs the backup timeout sweep now and then every interval
func (s *Sweeper) StartBackupTimeout(ctx context.Context, interval time.Duration) (stop func()) {
	return s.start(ctx, SweepBackupTimeout, Every(interval), true, s.ProcessBackupTimeouts)
}

// StartRequestExpiration runs the request expiration sweep now and then every interval
func (s *Sweeper) StartRequestExpiration(ctx context.Context, interval time.Duration) (stop func()) {
	return s.start(ctx, SweepRequestExpiration, Every(interval), true, s.ProcessRequestExpirations)
}

// StartUnassignedReminders runs the reminder sweep every interval.
// It does not run on start, so a restart never repeats a reminder.
func (s *Sweeper) StartUnassignedReminders(ctx context.Context, interval time.Duration) (stop func()) {
	return s.start(ctx, SweepUnassignedReminder, Every(interval), false, s.ProcessUnassignedReminders)
}

// StartUnassignedRemindersOn runs the reminder sweep on a schedule, again without an initial run
func (s *Sweeper) StartUnassignedRemindersOn(ctx context.Context, schedule Schedule) (stop func()) {
	return s.start(ctx, SweepUnassignedReminder, schedule, false, s.ProcessUnassignedReminders)
}

// start loops fn on its own goroutine until ctx is done or stop is called.
// stop blocks until any in-flight run has finished.
func (s *Sweeper) start(ctx context.Context, name string, schedule Schedule, immediate bool, fn func(context.Context) Summary) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		if immediate {
			fn(ctx)
		}

		for {
			now := s.now()
			next := schedule.Next(now)
			if next.IsZero() {
				s.logger.Info("Sweep schedule exhausted", zap.String("sweep", name))
				return
			}

			wait := next.Sub(now)
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				fn(ctx)
			}
		}
	}()

	s.logger.Debug("Sweep started", zap.String("sweep", name), zap.Bool("immediate", immediate))

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			s.logger.Debug("Sweep stopped", zap.String("sweep", name))
		})
	}
}
