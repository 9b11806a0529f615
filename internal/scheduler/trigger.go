package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/reugn/go-quartz/quartz"
)

const (
	MIN_INTERVAL = 1000 * time.Millisecond
	MAX_INTERVAL = 60000 * time.Millisecond
)

var ErrInvalidInterval = fmt.Errorf("interval must be between %d and %d ms", MIN_INTERVAL.Milliseconds(), MAX_INTERVAL.Milliseconds())

var _ quartz.Trigger = (*AlignedTrigger)(nil)

// AlignedTrigger fires on every multiple of the interval on the unix
// millisecond timeline, so a 10s interval fires at :00, :10, :20...
type AlignedTrigger struct {
	interval time.Duration
}

func NewAlignedTrigger(interval time.Duration) (*AlignedTrigger, error) {
	interval = interval.Truncate(time.Millisecond)
	if interval < MIN_INTERVAL || interval > MAX_INTERVAL {
		return nil, ErrInvalidInterval
	}
	return &AlignedTrigger{interval: interval}, nil
}

func (t *AlignedTrigger) Interval() time.Duration {
	return t.interval
}

// NextFireTime returns the first boundary strictly after prev (unix nanos).
func (t *AlignedTrigger) NextFireTime(prev int64) (int64, error) {
	if prev < 0 {
		return 0, errors.New("aligned trigger: negative time")
	}
	step := t.interval.Nanoseconds()
	return (prev/step + 1) * step, nil
}

func (t *AlignedTrigger) Description() string {
	return fmt.Sprintf("AlignedTrigger%s%s", quartz.Sep, t.interval)
}
