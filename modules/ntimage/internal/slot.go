package internal

import (
	"sync"
)

// latestSlot holds the most recently delivered frame.
//
// Semantics:
//   - Single slot: a new frame replaces the previous one, never queued
//   - Generations: every Put assigns the next generation (starting at 1)
//   - Dirty: the latest generation has not been displayed yet
//   - Drops: a frame replaced before any decode picked it up counts as dropped
//
// Thread-safety: Put is called from the delivery context, everything else
// from the presentation context. The mutex is held only for pointer swaps.
type latestSlot struct {
	mu sync.Mutex

	frame      *RawFrame
	generation uint64 // generation of frame
	taken      uint64 // last generation handed to a decode
	clean      uint64 // highest generation successfully displayed
	rejected   uint64 // generation parked by a terminal decode failure

	received uint64
	dropped  uint64
}

// Put stores frame as the latest one and returns its generation and whether
// an undecoded frame was overwritten.
func (s *latestSlot) Put(frame *RawFrame) (gen uint64, overwrote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	overwrote = s.frame != nil && s.generation > s.taken && s.generation > s.clean
	if overwrote {
		s.dropped++
	}

	s.generation++
	s.received++
	s.frame = frame
	return s.generation, overwrote
}

// Take returns the latest frame, its generation and the dirty flag, and
// marks the generation as handed to a decode. The frame stays in the slot
// so it can be re-decoded (color map change, resize).
func (s *latestSlot) Take() (*RawFrame, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation > s.taken {
		s.taken = s.generation
	}
	return s.frame, s.generation, s.pending()
}

// Dirty reports whether a delivered frame still waits to be displayed.
func (s *latestSlot) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame != nil && s.pending()
}

func (s *latestSlot) pending() bool {
	return s.generation > s.clean && s.generation > s.rejected
}

// MarkClean records that gen was displayed. Older generations never lower
// the mark, so a slow completion cannot make a newer frame look clean.
func (s *latestSlot) MarkClean(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen > s.clean {
		s.clean = gen
	}
}

// MarkRejected parks gen: it stays in the slot but is no longer dirty, so
// ticks stop retrying it until a newer frame arrives.
func (s *latestSlot) MarkRejected(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen > s.rejected {
		s.rejected = gen
	}
}

// Generation returns the latest assigned generation.
func (s *latestSlot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Has reports whether any frame was delivered.
func (s *latestSlot) Has() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame != nil
}

func (s *latestSlot) counters() (received, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.dropped
}
