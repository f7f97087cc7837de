package internal

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultMaxRedrawRate is the redraw rate (Hz) used when none is configured.
const DefaultMaxRedrawRate = 30

// SchedulerState is the decode state of the redraw scheduler.
type SchedulerState int

const (
	StateIdle SchedulerState = iota
	StateDecodeInFlight
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecodeInFlight:
		return "decode_in_flight"
	default:
		return fmt.Sprintf("SchedulerState(%d)", int(s))
	}
}

// tickAction is what the presentation loop must do after a tick.
type tickAction int

const (
	tickNothing tickAction = iota // clean: nothing to draw
	tickLaunch                    // dirty and idle: start a decode
	tickOverrun                   // decode still running: warn, do not launch
)

// redrawScheduler bounds decode launches to one per tick and at most one in
// flight. It holds no timer itself; the presentation loop owns the ticker and
// feeds ticks in, so every transition happens on the presentation context.
// Fields are atomic only so Stats can read them from other goroutines.
type redrawScheduler struct {
	state  atomic.Int32
	rate   atomic.Int64
	period time.Duration

	launches   atomic.Uint64
	overruns   atomic.Uint64
	cleanTicks atomic.Uint64
}

func newRedrawScheduler(rate int) (*redrawScheduler, error) {
	s := &redrawScheduler{}
	if err := s.SetRate(rate); err != nil {
		return nil, err
	}
	return s, nil
}

// SetRate changes the redraw rate. The caller resets its ticker to Period().
func (s *redrawScheduler) SetRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRedrawRate, rate)
	}
	s.rate.Store(int64(rate))
	s.period = RedrawPeriod(rate)
	return nil
}

// RedrawPeriod returns the tick interval for a rate in Hz.
func RedrawPeriod(rate int) time.Duration {
	if rate <= 0 {
		rate = DefaultMaxRedrawRate
	}
	return time.Second / time.Duration(rate)
}

func (s *redrawScheduler) Rate() int             { return int(s.rate.Load()) }
func (s *redrawScheduler) Period() time.Duration { return s.period }
func (s *redrawScheduler) State() SchedulerState { return SchedulerState(s.state.Load()) }

// Tick evaluates one redraw tick. The in-flight check comes first: a busy
// worker is an overrun even when no new frame arrived.
func (s *redrawScheduler) Tick(dirty bool) tickAction {
	switch {
	case s.State() == StateDecodeInFlight:
		s.overruns.Add(1)
		return tickOverrun
	case !dirty:
		s.cleanTicks.Add(1)
		return tickNothing
	default:
		s.state.Store(int32(StateDecodeInFlight))
		s.launches.Add(1)
		return tickLaunch
	}
}

// Complete returns the scheduler to idle after a decode finished, whatever
// its outcome.
func (s *redrawScheduler) Complete() {
	s.state.Store(int32(StateIdle))
}
