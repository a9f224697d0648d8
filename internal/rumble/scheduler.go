package rumble

import (
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"xboxbt-driver/internal/quirks"
)

const (
	// firmware crashes when fed rumble commands faster than this
	ThrottleDelay = 50 * time.Millisecond
	maxDelay      = time.Second
)

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// Stats counts scheduler activity.
type Stats struct {
	Sent    uint64
	Skipped uint64
	Failed  uint64
}

// Scheduler coalesces motor updates into at most one output report per
// throttle interval. Submit is safe from any goroutine.
type Scheduler struct {
	out    io.Writer
	quirks quirks.Set
	clock  Clock
	log    *zap.Logger

	mu            sync.Mutex
	pending       Motors
	shadow        Motors
	scheduled     bool
	throttleUntil time.Time
	timer         Timer
	closed        bool
	stats         Stats

	wg sync.WaitGroup
}

// NewScheduler returns a scheduler writing output reports to out.
func NewScheduler(out io.Writer, q quirks.Set, log *zap.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		out:    out,
		quirks: q,
		clock:  realClock{},
		log:    log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit merges m into the pending magnitudes and schedules a transmission
// unless one is already scheduled.
func (s *Scheduler) Submit(m Motors) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.pending = s.pending.Max(m)
	if s.scheduled {
		return
	}

	delay := s.throttleUntil.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	s.scheduled = true
	s.wg.Add(1)
	s.timer = s.clock.AfterFunc(delay, s.run)
}

// Pending returns the magnitudes waiting for transmission.
func (s *Scheduler) Pending() Motors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.mu.Lock()
	s.scheduled = false
	s.timer = nil
	if s.closed {
		s.mu.Unlock()
		return
	}

	enable := EnableAll
	if s.quirks.NoTriggerRumble() {
		s.pending.Left, s.pending.Right = 0, 0
		enable &^= EnableTriggers
	}
	if s.pending.Strong == s.shadow.Strong {
		enable &^= EnableStrong
	}
	if s.pending.Weak == s.shadow.Weak {
		enable &^= EnableWeak
	}
	if s.pending.Left == s.shadow.Left {
		enable &^= EnableLeft
	}
	if s.pending.Right == s.shadow.Right {
		enable &^= EnableRight
	}
	if enable == EnableNone {
		// pending equals what the motors already run at
		s.pending = Motors{}
		s.stats.Skipped++
		s.mu.Unlock()
		return
	}
	if s.quirks.NoMotorMask() {
		// firmware ignores the mask and reprograms every motor anyway
		enable = EnableAll
	}

	cmd := Command{
		Enable: wireMask(enable, s.quirks),
		Motors: s.pending,
		Pulse:  !s.quirks.NoPulse(),
	}
	s.shadow = s.pending
	s.pending = Motors{}
	s.throttleUntil = s.clock.Now().Add(ThrottleDelay)
	s.mu.Unlock()

	_, err := s.out.Write(cmd.Bytes())

	s.mu.Lock()
	if err != nil {
		s.stats.Failed++
	} else {
		s.stats.Sent++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("rumble write failed", zap.Error(err))
		return
	}
	s.log.Debug("rumble sent", zap.Stringer("motors", cmd.Motors), zap.Uint8("enable", uint8(cmd.Enable)))
}

// Flush waits until a scheduled transmission has been written. It returns
// at once when nothing is scheduled.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	idle := s.closed || !s.scheduled
	s.mu.Unlock()
	if idle {
		return
	}
	s.wg.Wait()
}

// Close cancels a scheduled transmission and waits for one in progress.
// Submit is a no-op afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil && s.timer.Stop() {
		s.scheduled = false
		s.wg.Done()
	}
	s.timer = nil
	s.mu.Unlock()

	s.wg.Wait()
}
