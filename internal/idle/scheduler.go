package idle

import (
	"sync"
	"time"
)

// Scheduler owns at most one pending follow-up callback. Arming always clears
// the previous timer first, and a cancelled callback never runs.
type Scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func NewScheduler() *Scheduler { return &Scheduler{} }

// Arm schedules fn after delay, replacing any pending callback.
func (s *Scheduler) Arm(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// Stop() cannot recall a callback that already started; the generation
		// check drops it instead.
		if s.gen != gen || s.timer == nil {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending callback. It reports whether one was pending.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked()
}

func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Scheduler) cancelLocked() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
	return true
}
