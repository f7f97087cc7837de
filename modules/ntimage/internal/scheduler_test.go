package internal

import (
	"errors"
	"testing"
	"time"
)

func TestRedrawPeriod(t *testing.T) {
	tests := []struct {
		rate int
		want time.Duration
	}{
		{30, time.Second / 30},
		{1, time.Second},
		{1000, time.Millisecond},
		{0, time.Second / DefaultMaxRedrawRate},
	}
	for _, tt := range tests {
		if got := RedrawPeriod(tt.rate); got != tt.want {
			t.Errorf("RedrawPeriod(%d) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestSchedulerRejectsInvalidRate(t *testing.T) {
	for _, rate := range []int{0, -1} {
		if _, err := newRedrawScheduler(rate); !errors.Is(err, ErrInvalidRedrawRate) {
			t.Errorf("newRedrawScheduler(%d) error = %v", rate, err)
		}
	}

	s, _ := newRedrawScheduler(30)
	if err := s.SetRate(0); !errors.Is(err, ErrInvalidRedrawRate) {
		t.Errorf("SetRate(0) error = %v", err)
	}
	if s.Rate() != 30 {
		t.Errorf("failed SetRate changed rate to %d", s.Rate())
	}
	if err := s.SetRate(60); err != nil || s.Period() != time.Second/60 {
		t.Errorf("SetRate(60) = %v, period %v", err, s.Period())
	}
}

// TestSchedulerTransitions walks Idle -> DecodeInFlight -> Idle and checks
// that a busy worker turns every tick into exactly one overrun.
func TestSchedulerTransitions(t *testing.T) {
	s, _ := newRedrawScheduler(30)

	if got := s.Tick(false); got != tickNothing {
		t.Fatalf("clean tick = %v, want nothing", got)
	}
	if got := s.Tick(true); got != tickLaunch {
		t.Fatalf("dirty tick = %v, want launch", got)
	}
	if s.State() != StateDecodeInFlight {
		t.Fatalf("state = %v after launch", s.State())
	}

	for i := 0; i < 3; i++ {
		if got := s.Tick(i%2 == 0); got != tickOverrun {
			t.Fatalf("tick %d while in flight = %v, want overrun", i, got)
		}
	}

	s.Complete()
	if s.State() != StateIdle {
		t.Fatalf("state = %v after complete", s.State())
	}
	if got := s.Tick(true); got != tickLaunch {
		t.Fatalf("dirty tick after complete = %v, want launch", got)
	}

	if n := s.launches.Load(); n != 2 {
		t.Errorf("launches = %d, want 2", n)
	}
	if n := s.overruns.Load(); n != 3 {
		t.Errorf("overruns = %d, want 3", n)
	}
	if n := s.cleanTicks.Load(); n != 1 {
		t.Errorf("clean ticks = %d, want 1", n)
	}
}

func TestSlotGenerationsAndDrops(t *testing.T) {
	var s latestSlot

	if s.Dirty() {
		t.Fatal("empty slot should be clean")
	}

	g1, over := s.Put(monoFrame(2, 2))
	if g1 != 1 || over {
		t.Fatalf("first Put = %d/%v", g1, over)
	}
	g2, over := s.Put(monoFrame(2, 2))
	if g2 != 2 || !over {
		t.Fatalf("second Put = %d/%v, want 2/true (overwrote undecoded frame)", g2, over)
	}

	frame, gen, dirty := s.Take()
	if frame == nil || gen != 2 || !dirty {
		t.Fatalf("Take = %v/%d/%v", frame, gen, dirty)
	}

	// Taken but not yet displayed: replacing it is not a drop.
	if _, over := s.Put(monoFrame(2, 2)); over {
		t.Error("replacing a frame already handed to decode counted as drop")
	}

	s.MarkClean(2)
	if !s.Dirty() {
		t.Error("generation 3 is still pending")
	}
	s.MarkClean(3)
	if s.Dirty() {
		t.Error("slot should be clean after generation 3 displayed")
	}

	s.MarkClean(1)
	if s.Dirty() {
		t.Error("older MarkClean must not make the slot dirty again")
	}

	received, dropped := s.counters()
	if received != 3 || dropped != 1 {
		t.Errorf("counters = %d/%d, want 3/1", received, dropped)
	}
}

func TestSlotRejected(t *testing.T) {
	var s latestSlot
	gen, _ := s.Put(monoFrame(2, 2))
	s.Take()
	s.MarkRejected(gen)
	if s.Dirty() {
		t.Error("rejected generation should not be dirty")
	}
	s.Put(monoFrame(2, 2))
	if !s.Dirty() {
		t.Error("a newer frame should clear the rejected state")
	}
}

func TestSurfaceResizeIsSquare(t *testing.T) {
	d := newDisplaySurface(Viewport{})

	if !d.Resize(640, 480) {
		t.Fatal("first resize should change the viewport")
	}
	if vp := d.Viewport(); vp.Width != 480 || vp.Height != 480 {
		t.Errorf("viewport = %v, want 480x480", vp)
	}
	if d.Resize(480, 900) {
		t.Error("same square side should not count as a change")
	}
	d.Resize(-5, 10)
	if !d.Viewport().Empty() {
		t.Errorf("negative size should give an empty viewport, got %v", d.Viewport())
	}
}

func TestSurfaceDiscardsOlderGenerations(t *testing.T) {
	d := newDisplaySurface(Viewport{})

	if !d.Present(&Bitmap{Generation: 5}) {
		t.Fatal("first bitmap rejected")
	}
	if d.Present(&Bitmap{Generation: 4}) {
		t.Error("older generation accepted")
	}
	if !d.Present(&Bitmap{Generation: 5}) {
		t.Error("redraw of the displayed generation rejected")
	}
	if !d.Present(&Bitmap{Generation: 9}) {
		t.Error("newer generation rejected")
	}

	if d.DisplayedGeneration() != 9 {
		t.Errorf("displayed = %d, want 9", d.DisplayedGeneration())
	}
	if n := d.stale.Load(); n != 1 {
		t.Errorf("stale = %d, want 1", n)
	}
}
