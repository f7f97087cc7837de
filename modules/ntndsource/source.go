// Package ntndsource produces NTNDArray records for the image widget:
// synthetic test patterns, replays of recordings, and the framing used to
// store them on disk.
//
// Recording format: a sequence of 4-byte big-endian length prefixes, each
// followed by a msgpack-encoded ntimage.Record. Files may be zstd compressed
// as a whole; readers detect this from the magic number.
package ntndsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

var (
	ErrAlreadyRunning = errors.New("ntndsource: source already running")
	ErrInvalidRate    = errors.New("ntndsource: rate must be > 0")
)

// Sink receives records from a source. It is called from the source
// goroutine and must not block for long.
type Sink func(rec *ntimage.Record)

// Source delivers records to a sink until stopped or exhausted.
type Source interface {
	// Start spawns the delivery goroutine and returns immediately.
	Start(ctx context.Context, sink Sink) error

	// Stop halts delivery and waits for the goroutine. Idempotent.
	Stop() error

	Stats() Stats
}

// Stats is a snapshot of source counters.
type Stats struct {
	Kind      string
	Emitted   uint64
	Errors    uint64
	Loops     uint64
	RateHz    float64
	FPSReal   float64
	Running   bool
	Done      bool
	StartedAt time.Time
}

// runner carries the Start/Stop lifecycle shared by the sources.
type runner struct {
	kind string
	rate float64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time

	emitted atomic.Uint64
	errors  atomic.Uint64
	loops   atomic.Uint64
	done    atomic.Bool
}

func (r *runner) period() time.Duration {
	return time.Duration(float64(time.Second) / r.rate)
}

// start launches loop in a goroutine. loop returns when the source is
// exhausted or ctx is done.
func (r *runner) start(ctx context.Context, loop func(ctx context.Context)) error {
	if r.rate <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, r.rate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.started = time.Now()
	r.done.Store(false)

	slog.Info("ntndsource: source starting", "kind", r.kind, "rate_hz", r.rate)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		loop(ctx)
	}()
	return nil
}

func (r *runner) stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()

	slog.Info("ntndsource: source stopped",
		"kind", r.kind,
		"emitted", r.emitted.Load(),
		"errors", r.errors.Load(),
		"duration", time.Since(r.started),
	)
	return nil
}

func (r *runner) stats() Stats {
	r.mu.Lock()
	running, started := r.running, r.started
	r.mu.Unlock()

	s := Stats{
		Kind:      r.kind,
		Emitted:   r.emitted.Load(),
		Errors:    r.errors.Load(),
		Loops:     r.loops.Load(),
		RateHz:    r.rate,
		Running:   running,
		Done:      r.done.Load(),
		StartedAt: started,
	}
	if running && s.Emitted > 0 {
		if elapsed := time.Since(started).Seconds(); elapsed > 0 {
			s.FPSReal = float64(s.Emitted) / elapsed
		}
	}
	return s
}
