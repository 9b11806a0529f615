package status

import (
	"sync"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/cycle"
)

// cycles older than this many intervals make the daemon unhealthy
const STALE_INTERVALS = 3

type State struct {
	Cycles              int       `json:"cycles"`
	LastStatus          int       `json:"last_status"`
	LastCycle           time.Time `json:"last_cycle"`
	LastSuccess         time.Time `json:"last_success"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Tracker keeps the outcome of the latest cycles for the status server. It
// is fed from the cycle goroutine and read from HTTP handlers.
type Tracker struct {
	mu       sync.RWMutex
	interval time.Duration
	started  time.Time
	state    State
	now      func() time.Time
}

func NewTracker(interval time.Duration) *Tracker {
	return &Tracker{
		interval: interval,
		started:  time.Now(),
		now:      time.Now,
	}
}

func (t *Tracker) Observe(res cycle.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Cycles++
	t.state.LastStatus = res.Status
	t.state.LastCycle = res.Scheduled
	switch res.Status {
	case cycle.STATUS_OK:
		t.state.LastSuccess = res.Scheduled
		t.state.ConsecutiveFailures = 0
	case cycle.STATUS_DISABLED:
	default:
		t.state.ConsecutiveFailures++
	}
}

func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Healthy reports whether the last cycle succeeded or was skipped on
// purpose, and is recent. Before the first cycle the start time counts.
func (t *Tracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last := t.state.LastCycle
	if t.state.Cycles == 0 {
		last = t.started
	} else if t.state.LastStatus != cycle.STATUS_OK && t.state.LastStatus != cycle.STATUS_DISABLED {
		return false
	}
	return t.now().Sub(last) <= STALE_INTERVALS*t.interval
}
