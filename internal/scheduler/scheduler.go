package scheduler

import (
	"context"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/logging"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// Tick is one activation of the loop: the boundary it was scheduled for and
// the instant the loop actually woke up.
type Tick struct {
	Scheduled time.Time
	Woke      time.Time
}

type Job func(ctx context.Context, tick Tick) error

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Scheduler runs one job at a time on the boundaries of a trigger. A job
// that overruns makes the loop skip to the first boundary after it ends,
// missed boundaries are never queued.
type Scheduler struct {
	trigger quartz.Trigger
	clock   Clock
	logger  *zap.Logger
}

func New(trigger quartz.Trigger, logger *zap.Logger) *Scheduler {
	return NewWithClock(trigger, realClock{}, logger)
}

func NewWithClock(trigger quartz.Trigger, clock Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		trigger: trigger,
		clock:   clock,
		logger:  logging.Component("scheduler", logger),
	}
}

// Run blocks until ctx is cancelled or the job returns an error.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	s.logger.Info("scheduler started", zap.String("trigger", s.trigger.Description()))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.clock.Now()
		next, err := s.trigger.NextFireTime(now.UnixNano())
		if err != nil {
			return err
		}
		scheduled := time.Unix(0, next)
		if err := s.clock.Sleep(ctx, scheduled.Sub(now)); err != nil {
			return err
		}

		tick := Tick{Scheduled: scheduled, Woke: s.clock.Now()}
		if drift := tick.Woke.Sub(tick.Scheduled); drift > 0 {
			s.logger.Debug("tick", zap.Time("scheduled", tick.Scheduled), zap.Duration("drift", drift))
		}
		if err := job(ctx, tick); err != nil {
			return err
		}
	}
}
