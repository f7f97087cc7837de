// Package gstsource feeds the image widget from a GStreamer pipeline.
//
// The pipeline is a gst-launch description whose last element is an appsink
// (named "sink" unless configured otherwise). Every sample pulled from the
// appsink is converted into an ntimage.Record; see RecordFromSample for the
// accepted raw formats.
//
// EOS ends the source and Stats().Done reports so. A pipeline error ends it
// too, unless it is a network error and Config.Reconnect is enabled: the
// pipeline is then rebuilt with exponential backoff.
package gstsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/slaclab/pydm-pva-widgets/modules/ntndsource"
)

// DefaultPipeline is a 12-bit-looking mono test pattern at 30 fps.
const DefaultPipeline = "videotestsrc is-live=true pattern=ball ! " +
	"video/x-raw,format=GRAY16_LE,width=320,height=240,framerate=30/1 ! " +
	"appsink name=sink"

var (
	ErrAlreadyRunning = errors.New("gstsource: source already running")
	ErrNoAppSink      = errors.New("gstsource: pipeline has no appsink")
)

// Config describes the pipeline.
type Config struct {
	// Pipeline is a gst-launch description; empty selects DefaultPipeline.
	Pipeline string

	// SinkName is the appsink element name (default "sink").
	SinkName string

	// Reconnect restarts the pipeline after network errors.
	Reconnect ReconnectConfig
}

// Stats extends the common source counters with pipeline telemetry.
type Stats struct {
	ntndsource.Stats

	BytesRead     uint64
	SamplesFailed uint64 // empty buffers and unsupported formats
	Reconnects    uint64
	ErrorsByKind  map[string]uint64
	Arrivals      ArrivalStats
}

// Source is a GStreamer appsink source. It implements ntndsource.Source.
type Source struct {
	cfg Config

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	pipeline *gst.Pipeline
	started  time.Time

	seq           atomic.Uint64
	emitted       atomic.Uint64
	bytesRead     atomic.Uint64
	samplesFailed atomic.Uint64
	done          atomic.Bool
	reconnects    atomic.Uint64

	// streak counts failed restarts since the last sample. Touched by the
	// bus monitor only; reset through flowing.
	streak  int
	flowing atomic.Bool

	errNetwork  atomic.Uint64
	errCodec    atomic.Uint64
	errResource atomic.Uint64
	errUnknown  atomic.Uint64

	arrivals arrivalWindow
}

var _ ntndsource.Source = (*Source)(nil)

// New returns a stopped source. The pipeline is parsed on Start.
func New(cfg Config) *Source {
	if cfg.Pipeline == "" {
		cfg.Pipeline = DefaultPipeline
	}
	if cfg.SinkName == "" {
		cfg.SinkName = "sink"
	}
	return &Source{cfg: cfg}
}

// Start builds the pipeline, sets it PLAYING and starts the bus monitor.
func (s *Source) Start(ctx context.Context, sink ntndsource.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	gst.Init(nil)

	pipeline, err := s.build(sink)
	if err != nil {
		return err
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstsource: start pipeline: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pipeline = pipeline
	s.running = true
	s.started = time.Now()
	s.done.Store(false)

	slog.Info("gstsource: pipeline started", "pipeline", s.cfg.Pipeline)

	s.wg.Add(1)
	go s.monitorBus(runCtx, sink)
	return nil
}

// build parses the pipeline and hooks the appsink up to sink.
func (s *Source) build(sink ntndsource.Sink) (*gst.Pipeline, error) {
	pipeline, err := gst.NewPipelineFromString(s.cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("gstsource: parse pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName(s.cfg.SinkName)
	if err != nil || elem == nil {
		return nil, fmt.Errorf("%w: no element named %q", ErrNoAppSink, s.cfg.SinkName)
	}
	appsink := app.SinkFromElement(elem)
	if appsink == nil {
		return nil, fmt.Errorf("%w: %q is not an appsink", ErrNoAppSink, s.cfg.SinkName)
	}

	// Keep only the latest sample: the widget drops anyway.
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", uint(1))
	appsink.SetProperty("drop", true)

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(as *app.Sink) gst.FlowReturn {
			return s.onSample(as, sink)
		},
	})
	return pipeline, nil
}

// restart tears the failed pipeline down and builds a fresh one. It runs on
// the bus monitor, which is the only goroutine touching s.pipeline while
// the source is running.
func (s *Source) restart(ctx context.Context, sink ntndsource.Sink) error {
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("gstsource: failed to stop broken pipeline", "error", err)
	}
	if s.flowing.Swap(false) {
		s.streak = 0
	}

	return retry(ctx, s.cfg.Reconnect, &s.streak, func() error {
		s.reconnects.Add(1)
		p, err := s.build(sink)
		if err != nil {
			return err
		}
		if err := p.SetState(gst.StatePlaying); err != nil {
			p.SetState(gst.StateNull)
			return fmt.Errorf("gstsource: start pipeline: %w", err)
		}
		s.pipeline = p
		return nil
	})
}

// onSample runs on a GStreamer streaming thread.
func (s *Source) onSample(as *app.Sink, sink ntndsource.Sink) gst.FlowReturn {
	sample := as.PullSample()
	if sample == nil {
		s.samplesFailed.Add(1)
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		s.samplesFailed.Add(1)
		return gst.FlowOK
	}

	format, width, height, err := sampleGeometry(sample)
	if err != nil {
		s.samplesFailed.Add(1)
		s.errCodec.Add(1)
		slog.Warn("gstsource: unreadable sample caps", "error", err)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	rec, err := RecordFromSample(format, width, height, data)
	buffer.Unmap()
	if err != nil {
		s.samplesFailed.Add(1)
		if errors.Is(err, ErrUnsupportedFormat) {
			s.errCodec.Add(1)
		}
		slog.Debug("gstsource: dropping sample", "format", format, "error", err)
		return gst.FlowOK
	}

	now := time.Now()
	rec.UniqueID = int64(s.seq.Add(1))
	rec.Timestamp = now
	rec.TraceID = uuid.New().String()

	s.bytesRead.Add(uint64(len(data)))
	s.arrivals.add(now)
	s.flowing.Store(true)
	sink(rec)
	s.emitted.Add(1)
	return gst.FlowOK
}

func sampleGeometry(sample *gst.Sample) (string, int, int, error) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return "", 0, 0, fmt.Errorf("sample has no caps")
	}
	st := caps.GetStructureAt(0)

	fv, err := st.GetValue("format")
	if err != nil {
		return "", 0, 0, fmt.Errorf("caps format: %w", err)
	}
	wv, err := st.GetValue("width")
	if err != nil {
		return "", 0, 0, fmt.Errorf("caps width: %w", err)
	}
	hv, err := st.GetValue("height")
	if err != nil {
		return "", 0, 0, fmt.Errorf("caps height: %w", err)
	}

	format, ok1 := fv.(string)
	width, ok2 := wv.(int)
	height, ok3 := hv.(int)
	if !ok1 || !ok2 || !ok3 {
		return "", 0, 0, fmt.Errorf("caps fields %T/%T/%T", fv, wv, hv)
	}
	return format, width, height, nil
}

// monitorBus polls the pipeline bus until ctx ends, EOS or an error that is
// not recovered by a restart.
func (s *Source) monitorBus(ctx context.Context, sink ntndsource.Sink) {
	defer s.wg.Done()

	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("gstsource: end of stream",
				"uptime", time.Since(s.started),
				"emitted", s.emitted.Load(),
			)
			s.done.Store(true)
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGError(gerr)
			s.countError(category)
			slog.Error("gstsource: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"uptime", time.Since(s.started),
				"emitted", s.emitted.Load(),
			)
			if category == ErrCategoryNetwork && s.cfg.Reconnect.Enabled() {
				err := s.restart(ctx, sink)
				if err == nil {
					bus = s.pipeline.GetPipelineBus()
					continue
				}
				if ctx.Err() != nil {
					return
				}
				slog.Error("gstsource: giving up on pipeline", "error", err)
			}
			s.done.Store(true)
			return

		case gst.MessageStateChanged:
			if msg.Source() == s.pipeline.GetName() {
				old, next := msg.ParseStateChanged()
				slog.Debug("gstsource: pipeline state changed", "from", old, "to", next)
			}
		}
	}
}

func (s *Source) countError(c ErrorCategory) {
	switch c {
	case ErrCategoryNetwork:
		s.errNetwork.Add(1)
	case ErrCategoryCodec:
		s.errCodec.Add(1)
	case ErrCategoryResource:
		s.errResource.Add(1)
	default:
		s.errUnknown.Add(1)
	}
}

// Stop halts the bus monitor and sets the pipeline to NULL. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	s.wg.Wait()

	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstsource: stop pipeline: %w", err)
	}
	s.pipeline = nil

	slog.Info("gstsource: pipeline stopped",
		"emitted", s.emitted.Load(),
		"samples_failed", s.samplesFailed.Load(),
	)
	return nil
}

// Stats implements ntndsource.Source.
func (s *Source) Stats() ntndsource.Stats {
	return s.Detail().Stats
}

// Detail returns the common counters plus pipeline telemetry.
func (s *Source) Detail() Stats {
	s.mu.Lock()
	running, started := s.running, s.started
	s.mu.Unlock()

	arrivals := s.arrivals.stats()
	return Stats{
		Stats: ntndsource.Stats{
			Kind:      "gstreamer",
			Emitted:   s.emitted.Load(),
			Errors:    s.errNetwork.Load() + s.errCodec.Load() + s.errResource.Load() + s.errUnknown.Load(),
			RateHz:    arrivals.FPSMean,
			FPSReal:   arrivals.FPSMean,
			Running:   running,
			Done:      s.done.Load(),
			StartedAt: started,
		},
		BytesRead:     s.bytesRead.Load(),
		SamplesFailed: s.samplesFailed.Load(),
		Reconnects:    s.reconnects.Load(),
		ErrorsByKind: map[string]uint64{
			ErrCategoryNetwork.String():  s.errNetwork.Load(),
			ErrCategoryCodec.String():    s.errCodec.Load(),
			ErrCategoryResource.String(): s.errResource.Load(),
			ErrCategoryUnknown.String():  s.errUnknown.Load(),
		},
		Arrivals: arrivals,
	}
}

// Warmup blocks for d and returns arrival statistics for frames delivered
// during that time.
func (s *Source) Warmup(ctx context.Context, d time.Duration) (ArrivalStats, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return ArrivalStats{}, ctx.Err()
	case <-time.After(d):
	}

	times := s.arrivals.since(start)
	if len(times) < 2 {
		return ArrivalStats{Frames: len(times)}, fmt.Errorf("gstsource: warmup saw %d frames, need at least 2", len(times))
	}
	stats := CalculateArrivalStats(times, time.Since(start))
	slog.Info("gstsource: warmup complete",
		"frames", stats.Frames,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		"stable", stats.IsStable,
	)
	return stats, nil
}
