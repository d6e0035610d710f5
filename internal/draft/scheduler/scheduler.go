// Package scheduler owns the two save timers of an editing session: a debounce
// timer restarted on every edit and a periodic flush timer.
package scheduler

import (
	"sync"
	"time"
)

// Trigger names what asked for a save.
type Trigger string

const (
	TriggerDebounce Trigger = "debounce"
	TriggerPeriodic Trigger = "periodic"
	TriggerBlur     Trigger = "blur"
	TriggerClose    Trigger = "close"
	TriggerShutdown Trigger = "shutdown"
)

// Scheduler coalesces edits into debounce fires and emits periodic ticks.
// Fire is invoked outside the scheduler's lock.
type Scheduler struct {
	clock    Clock
	debounce time.Duration
	interval time.Duration
	fire     func(Trigger)

	mu            sync.Mutex
	stopped       bool
	debounceTimer Timer
	debounceSeq   uint64
	periodicTimer Timer
	periodicSeq   uint64
}

func New(clock Clock, debounce, interval time.Duration, fire func(Trigger)) *Scheduler {
	return &Scheduler{
		clock:    clock,
		debounce: debounce,
		interval: interval,
		fire:     fire,
	}
}

// Start arms the periodic timer. Calling it again while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.periodicTimer != nil {
		return
	}
	s.armPeriodicLocked()
}

func (s *Scheduler) armPeriodicLocked() {
	s.periodicSeq++
	seq := s.periodicSeq
	s.periodicTimer = s.clock.AfterFunc(s.interval, func() {
		s.mu.Lock()
		if s.stopped || seq != s.periodicSeq {
			s.mu.Unlock()
			return
		}
		s.armPeriodicLocked()
		s.mu.Unlock()

		s.fire(TriggerPeriodic)
	})
}

// Touch restarts the debounce window.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.debounceSeq++
	seq := s.debounceSeq
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = s.clock.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		// A timer that already fired can lose the race with Stop; only the most
		// recently armed callback may run.
		if s.stopped || seq != s.debounceSeq {
			s.mu.Unlock()
			return
		}
		s.debounceTimer = nil
		s.mu.Unlock()

		s.fire(TriggerDebounce)
	})
}

// Flush cancels a pending debounce so the caller can save right away. It
// reports whether a debounce was pending.
func (s *Scheduler) Flush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debounceSeq++
	if s.debounceTimer == nil {
		return false
	}
	s.debounceTimer.Stop()
	s.debounceTimer = nil
	return true
}

// Pending reports whether a debounce fire is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debounceTimer != nil
}

// Stop cancels both timers for good.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.debounceSeq++
	s.periodicSeq++
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	if s.periodicTimer != nil {
		s.periodicTimer.Stop()
		s.periodicTimer = nil
	}
}
