// Package internal implements the NTNDArray image widget core.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// package.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slaclab/pydm-pva-widgets/modules/colormap"
	"github.com/slaclab/pydm-pva-widgets/modules/framebus"
)

// inboxSize bounds the presentation inbox (decode completions and posted
// property changes).
const inboxSize = 64

// Widget turns a stream of raw frames into displayable bitmaps.
//
// Goroutine topology:
//   - 1 presentation loop: redraw ticks, completions, property changes
//   - 1 decode worker (pool of one): runs decode tasks, posts results back
//   - N external: delivery (Publish/Receive) and UI callers
//
// Thread-safety: all exported methods are safe for concurrent use.
type Widget struct {
	cfg Config

	slot    latestSlot
	sched   *redrawScheduler
	surface *displaySurface
	bus     *framebus.Bus[*Bitmap]

	// --- Presentation-owned state (touched only on the loop) ---

	table           ColorTable
	redrawRequested bool
	ticker          *time.Ticker

	// --- Readable from any goroutine ---

	colorMap atomic.Pointer[string]
	rate     atomic.Int64

	malformed      atomic.Uint64
	succeeded      atomic.Uint64
	degenerate     atomic.Uint64
	failures       [FailureUnknown + 1]atomic.Uint64
	lastDecodeNs   atomic.Int64
	lastBitmapUnix atomic.Int64

	// --- Lifecycle ---

	inbox    chan func()
	jobs     chan decodeJob
	loopDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
	running   bool
	stopped   atomic.Bool
}

// NewWidget validates cfg and builds a stopped widget.
func NewWidget(cfg Config) (*Widget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sched, err := newRedrawScheduler(cfg.MaxRedrawRate)
	if err != nil {
		return nil, err
	}

	m, err := cfg.ColorMaps.Get(cfg.ColorMap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownColorMap, err)
	}

	w := &Widget{
		cfg:     cfg,
		sched:   sched,
		surface: newDisplaySurface(cfg.Viewport),
		bus:     framebus.New[*Bitmap](),
		table:   BuildColorTable(m.Stops),
		inbox:   make(chan func(), inboxSize),
		jobs:    make(chan decodeJob, 1),
	}
	name := cfg.ColorMap
	w.colorMap.Store(&name)
	w.rate.Store(int64(cfg.MaxRedrawRate))
	return w, nil
}

// Start spawns the presentation loop and the decode worker. Non-blocking.
// A widget can be started once.
func (w *Widget) Start(ctx context.Context) error {
	w.startedMu.Lock()
	defer w.startedMu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.ticker = time.NewTicker(w.sched.Period())
	w.loopDone = make(chan struct{})
	w.started = true
	w.running = true

	w.wg.Add(2)
	go w.presentationLoop()
	go w.decodeWorker()

	slog.Info("ntimage: widget started",
		"max_redraw_rate", w.sched.Rate(),
		"color_map", w.ColorMap(),
		"normalization", w.cfg.Normalization.String(),
	)
	return nil
}

// Stop shuts down both goroutines and waits for them. A decode in flight
// runs to completion; its result is discarded. Idempotent.
func (w *Widget) Stop() error {
	w.startedMu.Lock()
	if !w.running {
		w.startedMu.Unlock()
		return nil
	}
	w.running = false
	w.stopped.Store(true)
	w.cancel()
	w.startedMu.Unlock()

	w.wg.Wait()
	w.ticker.Stop()
	w.bus.Close()

	slog.Info("ntimage: widget stopped", "displayed_generation", w.surface.DisplayedGeneration())
	return nil
}

// Publish stores frame as the latest one. Never blocks and never queues:
// an undecoded previous frame is replaced. No-op after Stop.
//
// Contract: frame.Data MUST NOT be modified after Publish.
func (w *Widget) Publish(frame *RawFrame) {
	if frame == nil || w.stopped.Load() {
		return
	}

	gen, overwrote := w.slot.Put(frame)
	if !overwrote {
		return
	}

	dropped := gen - 1
	trace := frame.TraceID
	w.tryPost(func() {
		w.emit(Event{Kind: EventFrameDropped, Generation: dropped, TraceID: trace})
	})
}

// Receive converts an inbound record and publishes it. Malformed records are
// counted and dropped.
func (w *Widget) Receive(rec *Record) {
	if w.stopped.Load() {
		return
	}

	frame, err := FrameFromRecord(rec)
	if err != nil {
		w.malformed.Add(1)
		slog.Debug("ntimage: dropping malformed record", "error", err)
		return
	}
	w.Publish(frame)
}

// Resize updates the viewport to a square of side min(w, h).
func (w *Widget) Resize(width, height int) {
	w.post(func() {
		if !w.surface.Resize(width, height) {
			return
		}
		vp := w.surface.Viewport()
		slog.Debug("ntimage: viewport resized", "width", vp.Width, "height", vp.Height)
		if w.cfg.RedrawOnResize && w.slot.Has() {
			w.redrawRequested = true
		}
	})
}

// SetColorMap selects a map from the configured set. The current frame is
// redrawn with the new table on the next tick.
func (w *Widget) SetColorMap(name string) error {
	m, err := w.cfg.ColorMaps.Get(name)
	if err != nil {
		if errors.Is(err, colormap.ErrUnknownMap) {
			return fmt.Errorf("%w: %q", ErrUnknownColorMap, name)
		}
		return err
	}

	table := BuildColorTable(m.Stops)
	w.colorMap.Store(&name)
	w.post(func() {
		w.table = table
		if w.slot.Has() {
			w.redrawRequested = true
		}
		slog.Debug("ntimage: color map changed", "color_map", name, "entries", len(table))
	})
	return nil
}

// ColorMap returns the selected color map name.
func (w *Widget) ColorMap() string {
	return *w.colorMap.Load()
}

// ColorMaps lists the selectable color maps alphabetically.
func (w *Widget) ColorMaps() []string {
	return w.cfg.ColorMaps.SortedNames()
}

// SetMaxRedrawRate changes the redraw rate. The tick interval changes
// immediately; a decode in flight is not affected.
func (w *Widget) SetMaxRedrawRate(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRedrawRate, hz)
	}

	w.rate.Store(int64(hz))
	w.post(func() {
		_ = w.sched.SetRate(hz)
		if w.ticker != nil && !w.stopped.Load() {
			w.ticker.Reset(w.sched.Period())
		}
		slog.Debug("ntimage: redraw rate changed", "max_redraw_rate", hz, "period", w.sched.Period())
	})
	return nil
}

// MaxRedrawRate returns the configured redraw rate in Hz.
func (w *Widget) MaxRedrawRate() int {
	return int(w.rate.Load())
}

// Bitmap returns the displayed bitmap, or nil before the first one.
func (w *Widget) Bitmap() *Bitmap {
	return w.surface.Current()
}

// Subscribe registers a latest-bitmap receiver.
func (w *Widget) Subscribe(id string) (*framebus.Receiver[*Bitmap], error) {
	return w.bus.SubscribeDropOld(id)
}

// SubscribeChan registers a channel receiving every displayed bitmap it has
// room for.
func (w *Widget) SubscribeChan(id string, ch chan<- *Bitmap) error {
	return w.bus.Subscribe(id, ch)
}

// Unsubscribe removes a bitmap subscriber.
func (w *Widget) Unsubscribe(id string) error {
	return w.bus.Unsubscribe(id)
}

// BusStats reports bitmap distribution counters.
func (w *Widget) BusStats() framebus.BusStats {
	return w.bus.Stats()
}

// Stats returns a snapshot of counters and state.
func (w *Widget) Stats() Stats {
	received, dropped := w.slot.counters()

	failures := make(map[FailureKind]uint64)
	for k := range w.failures {
		if n := w.failures[k].Load(); n > 0 {
			failures[FailureKind(k)] = n
		}
	}

	var lastAt time.Time
	if ns := w.lastBitmapUnix.Load(); ns != 0 {
		lastAt = time.Unix(0, ns)
	}

	return Stats{
		FramesReceived:      received,
		FramesDropped:       dropped,
		MalformedDropped:    w.malformed.Load(),
		DecodesLaunched:     w.sched.launches.Load(),
		DecodesSucceeded:    w.succeeded.Load(),
		DecodeFailures:      failures,
		Overruns:            w.sched.overruns.Load(),
		CleanTicks:          w.sched.cleanTicks.Load(),
		StaleCompletions:    w.surface.stale.Load(),
		DegenerateFrames:    w.degenerate.Load(),
		DisplayedGeneration: w.surface.DisplayedGeneration(),
		LatestGeneration:    w.slot.Generation(),
		State:               w.sched.State(),
		MaxRedrawRate:       w.MaxRedrawRate(),
		ColorMap:            w.ColorMap(),
		Viewport:            w.surface.Viewport(),
		LastDecodeDuration:  time.Duration(w.lastDecodeNs.Load()),
		LastBitmapAt:        lastAt,
	}
}

// post runs fn on the presentation context. Before Start there is no loop,
// so fn runs on the caller while holding startedMu, which keeps Start from
// spawning the loop mid-update. Once Stop has returned fn runs the same way;
// while the loop is shutting down fn is dropped.
func (w *Widget) post(fn func()) {
	w.startedMu.Lock()
	if !w.started {
		defer w.startedMu.Unlock()
		fn()
		return
	}
	running, ctx, done := w.running, w.ctx, w.loopDone
	w.startedMu.Unlock()

	if running {
		select {
		case w.inbox <- fn:
		case <-ctx.Done():
		}
		return
	}

	select {
	case <-done:
	default:
		return
	}
	w.startedMu.Lock()
	defer w.startedMu.Unlock()
	fn()
}

// tryPost is post without waiting: fn is skipped when the inbox is full.
func (w *Widget) tryPost(fn func()) {
	w.startedMu.Lock()
	running := w.running
	w.startedMu.Unlock()
	if !running {
		return
	}

	select {
	case w.inbox <- fn:
	default:
	}
}

// presentationLoop is the single-threaded event loop. Inbox items run in
// FIFO order; ticks interleave with them.
func (w *Widget) presentationLoop() {
	defer w.wg.Done()
	defer close(w.loopDone)

	for {
		select {
		case <-w.ctx.Done():
			return
		case fn := <-w.inbox:
			fn()
		case <-w.ticker.C:
			w.tick()
		}
	}
}

func (w *Widget) tick() {
	dirty := w.slot.Dirty() || w.redrawRequested

	switch w.sched.Tick(dirty) {
	case tickOverrun:
		slog.Warn("ntimage: processing slower than redraw rate",
			"max_redraw_rate", w.sched.Rate(),
			"overruns", w.sched.overruns.Load(),
		)
		w.emit(Event{Kind: EventOverrun, Generation: w.slot.Generation()})

	case tickLaunch:
		w.launch()
	}
}

// launch snapshots everything the decode needs and hands it to the worker.
// The jobs channel has room for one job and at most one decode is in
// flight, so the send never blocks.
func (w *Widget) launch() {
	frame, gen, dirty := w.slot.Take()

	job := decodeJob{
		generation:    gen,
		frame:         frame,
		dirty:         dirty || w.redrawRequested,
		table:         w.table,
		viewport:      w.surface.Viewport(),
		processor:     w.cfg.Processor,
		normalization: w.cfg.Normalization,
		sampleBits:    w.cfg.SampleBits,
		scaler:        w.cfg.Scaler,
	}
	w.redrawRequested = false

	w.jobs <- job
}

// decodeWorker is the pool of one. Results go back through the inbox.
func (w *Widget) decodeWorker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case job := <-w.jobs:
			res := runDecodeSafe(job)
			select {
			case w.inbox <- func() { w.complete(res) }:
			case <-w.ctx.Done():
				return
			}
		}
	}
}

// complete handles a decode result on the presentation context.
func (w *Widget) complete(res decodeResult) {
	w.sched.Complete()
	w.lastDecodeNs.Store(int64(res.duration))

	if res.degenerate {
		w.degenerate.Add(1)
		slog.Debug("ntimage: degenerate sample range",
			"generation", res.generation,
			"trace_id", res.traceID,
			"error", ErrDegenerateRange,
		)
	}

	if res.err != nil {
		w.fail(res)
		return
	}

	w.succeeded.Add(1)
	w.slot.MarkClean(res.generation)

	b := res.bitmap
	if !w.surface.Present(b) {
		slog.Debug("ntimage: discarding stale bitmap",
			"generation", b.Generation,
			"displayed_generation", w.surface.DisplayedGeneration(),
		)
		w.emit(Event{Kind: EventStaleCompletion, Generation: b.Generation, TraceID: b.TraceID})
		return
	}

	w.lastBitmapUnix.Store(b.DecodedAt.UnixNano())
	w.bus.Publish(b)
	if w.cfg.OnBitmapReady != nil {
		w.cfg.OnBitmapReady(b)
	}
	w.emit(Event{Kind: EventBitmapReady, Generation: b.Generation, TraceID: b.TraceID})
}

func (w *Widget) fail(res decodeResult) {
	kind := ClassifyFailure(res.err)
	w.failures[kind].Add(1)

	attrs := []any{
		"generation", res.generation,
		"trace_id", res.traceID,
		"failure", kind.String(),
		"error", res.err,
	}
	if kind == FailureProcessor || kind == FailureUnknown {
		slog.Warn("ntimage: decode failed", attrs...)
	} else {
		slog.Debug("ntimage: decode failed", attrs...)
	}

	if w.cfg.RejectUnsupported && kind == FailureUnsupportedMode {
		w.slot.MarkRejected(res.generation)
	}

	w.emit(Event{
		Kind:       EventDecodeFailed,
		Generation: res.generation,
		TraceID:    res.traceID,
		Failure:    kind,
		Err:        res.err,
	})
}

func (w *Widget) emit(e Event) {
	if w.cfg.OnEvent == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	w.cfg.OnEvent(e)
}
