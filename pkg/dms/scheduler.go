// Package dms implements the client-side dead-man's-switch: a single
// rolling deadline that triggers one cancel-all if liveness is not
// confirmed in time. The session renews it on every confirmed heartbeat;
// reconnect attempts do not count as liveness.
package dms

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperflow/pkg/metrics"
	"github.com/uhyunpark/hyperflow/pkg/util"
)

type State int

const (
	Disarmed State = iota
	Armed
	Fired
)

func (s State) String() string {
	switch s {
	case Disarmed:
		return "disarmed"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	default:
		return "unknown"
	}
}

// CancelAllFunc flattens all resting orders through the normal
// build/sign/submit pipeline.
type CancelAllFunc func(ctx context.Context) error

// Scheduler owns one deadline and one waiting goroutine; there is never a
// timer per armed period. Firing is one-shot: after it fires, an explicit
// Arm is required to reactivate.
type Scheduler struct {
	clock util.Clock
	fire  CancelAllFunc
	log   *zap.Logger

	mu       sync.Mutex
	state    State
	deadline time.Time
	running  bool
	renewCh  chan struct{}
	stopCh   chan struct{}
}

func NewScheduler(clock util.Clock, fire CancelAllFunc, log *zap.Logger) *Scheduler {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		clock:   clock,
		fire:    fire,
		log:     log,
		renewCh: make(chan struct{}, 1),
	}
}

// Arm sets the deadline d from now and starts the watch goroutine if one
// is not already running. Arming an already-armed scheduler replaces the
// deadline; arming after a fire reactivates it.
func (s *Scheduler) Arm(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = s.clock.Now().Add(d)
	s.state = Armed
	if !s.running {
		s.running = true
		s.stopCh = make(chan struct{})
		go s.watch(s.stopCh)
	} else {
		s.kick()
	}
}

// Renew pushes the deadline to d from now. Returns false when the
// scheduler is not armed (disarmed or already fired): a fired switch must
// be explicitly re-armed.
func (s *Scheduler) Renew(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return false
	}
	s.deadline = s.clock.Now().Add(d)
	s.kick()
	return true
}

// Cancel disarms the scheduler without firing. Idempotent.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
	s.state = Disarmed
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Deadline returns the current deadline; zero when not armed.
func (s *Scheduler) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return time.Time{}
	}
	return s.deadline
}

// kick wakes the watch goroutine so it re-reads the deadline.
// Callers hold s.mu.
func (s *Scheduler) kick() {
	select {
	case s.renewCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) watch(stop chan struct{}) {
	for {
		s.mu.Lock()
		if s.state != Armed {
			s.running = false
			s.mu.Unlock()
			return
		}
		remaining := s.deadline.Sub(s.clock.Now())
		s.mu.Unlock()

		select {
		case <-s.clock.After(remaining):
			s.mu.Lock()
			// a renew may have raced the timer; only fire when the
			// deadline really elapsed
			if s.state == Armed && !s.clock.Now().Before(s.deadline) {
				s.state = Fired
				s.running = false
				fire := s.fire
				s.mu.Unlock()

				metrics.DMSFiresTotal.Inc()
				s.log.Warn("dead-man's-switch fired, cancelling all resting orders")
				if fire != nil {
					if err := fire(context.Background()); err != nil {
						s.log.Error("dead-man's-switch cancel-all failed", zap.Error(err))
					}
				}
				return
			}
			s.mu.Unlock()
		case <-s.renewCh:
		case <-stop:
			return
		}
	}
}
