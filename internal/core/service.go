package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slaclab/pydm-pva-widgets/internal/config"
	"github.com/slaclab/pydm-pva-widgets/internal/control"
	"github.com/slaclab/pydm-pva-widgets/internal/emitter"
	"github.com/slaclab/pydm-pva-widgets/internal/snapshot"
	"github.com/slaclab/pydm-pva-widgets/modules/colormap"
	"github.com/slaclab/pydm-pva-widgets/modules/framebus"
	"github.com/slaclab/pydm-pva-widgets/modules/gstsource"
	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
	"github.com/slaclab/pydm-pva-widgets/modules/ntndsource"
	"github.com/slaclab/pydm-pva-widgets/modules/processors"
)

const (
	statsInterval      = 10 * time.Second
	warmupDuration     = 5 * time.Second
	snapshotSubscriber = "snapshot"
	snapshotBuffer     = 4
)

// Service wires a record source into an image widget and fans the
// displayed bitmaps and widget events out to snapshots and MQTT.
type Service struct {
	cfg *config.Config

	// Core components
	maps      *colormap.Registry
	widget    ntimage.Widget
	source    ntndsource.Source
	snapshots *snapshot.Writer
	emitter   *emitter.MQTTEmitter
	control   *control.Handler
	server    *http.Server

	events [ntimage.EventFrameDropped + 1]atomic.Uint64

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	cancelCtx context.CancelFunc // For MQTT shutdown command
}

// NewServiceFromFile loads the configuration at path and builds a Service.
func NewServiceFromFile(path string) (*Service, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"source", cfg.Source.Kind,
	)
	return NewService(cfg)
}

// NewService builds every component from a validated configuration. Nothing
// runs until Run.
func NewService(cfg *config.Config) (*Service, error) {
	s := &Service{cfg: cfg}

	s.maps = colormap.Default()
	if cfg.Display.ColorMapFile != "" {
		n, err := s.maps.LoadFile(cfg.Display.ColorMapFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load color maps: %w", err)
		}
		slog.Info("color maps loaded", "file", cfg.Display.ColorMapFile, "count", n)
	}

	proc, err := buildProcessor(cfg.Display.Processors)
	if err != nil {
		return nil, err
	}

	wcfg, err := widgetConfig(cfg.Display)
	if err != nil {
		return nil, err
	}
	wcfg.ColorMaps = s.maps
	wcfg.Processor = proc
	wcfg.OnEvent = s.onEvent

	s.widget, err = ntimage.New(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create widget: %w", err)
	}

	s.source, err = buildSource(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	if cfg.Snapshot.Dir != "" {
		s.snapshots, err = snapshot.New(cfg.Snapshot)
		if err != nil {
			return nil, err
		}
	}

	if cfg.MQTT.Enabled() {
		s.emitter = emitter.NewMQTTEmitter(cfg)
	}

	return s, nil
}

func widgetConfig(d config.DisplayConfig) (ntimage.Config, error) {
	norm, err := ntimage.ParseNormalization(d.Normalization)
	if err != nil {
		return ntimage.Config{}, err
	}
	scaler, err := ntimage.ParseScaler(d.Scaler)
	if err != nil {
		return ntimage.Config{}, err
	}
	var rate int
	if d.MaxRedrawRate != nil {
		rate = *d.MaxRedrawRate
	}
	return ntimage.Config{
		MaxRedrawRate:     rate,
		ColorMap:          d.ColorMap,
		Normalization:     norm,
		SampleBits:        d.SampleBits,
		Scaler:            scaler,
		RejectUnsupported: d.RejectUnsupported,
		RedrawOnResize:    d.RedrawOnResize,
		Viewport:          ntimage.Viewport{Width: d.Viewport.Width, Height: d.Viewport.Height},
	}, nil
}

func buildProcessor(pcs []config.ProcessorConfig) (ntimage.FrameProcessor, error) {
	if len(pcs) == 0 {
		return ntimage.Identity, nil
	}
	ps := make([]ntimage.FrameProcessor, 0, len(pcs))
	for i, pc := range pcs {
		p, err := processors.ByName(pc.Name, pc.Params)
		if err != nil {
			return nil, fmt.Errorf("processor %d: %w", i, err)
		}
		ps = append(ps, p)
	}
	return processors.Chain(ps...), nil
}

func buildSource(sc config.SourceConfig) (ntndsource.Source, error) {
	switch sc.Kind {
	case "synthetic":
		mode, err := ntimage.ParseColorMode(sc.ColorMode)
		if err != nil {
			return nil, err
		}
		typ, err := ntimage.ParseSampleType(sc.SampleType)
		if err != nil {
			return nil, err
		}
		return ntndsource.NewSynthetic(ntndsource.SyntheticConfig{
			Width:  sc.Width,
			Height: sc.Height,
			RateHz: sc.RateHz,
			Mode:   mode,
			Type:   typ,
		})
	case "replay":
		return ntndsource.NewReplay(ntndsource.ReplayConfig{
			Path:   sc.Path,
			RateHz: sc.RateHz,
			Loop:   sc.Loop,
		})
	case "gstreamer":
		gc := gstsource.Config{Pipeline: sc.Pipeline}
		if sc.ReconnectRetries > 0 {
			gc.Reconnect = gstsource.DefaultReconnectConfig()
			gc.Reconnect.MaxRetries = sc.ReconnectRetries
		}
		return gstsource.New(gc), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

// Run starts the service and blocks until ctx is cancelled or a shutdown
// command arrives.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelCtx = cancel
	s.mu.Unlock()

	slog.Info("ntviewd service starting",
		"instance_id", s.cfg.InstanceID,
		"source", s.cfg.Source.Kind,
	)

	if err := s.widget.Start(ctx); err != nil {
		return fmt.Errorf("failed to start widget: %w", err)
	}

	if s.snapshots != nil {
		ch := make(chan *ntimage.Bitmap, snapshotBuffer)
		if err := s.widget.SubscribeChan(snapshotSubscriber, ch); err != nil {
			return fmt.Errorf("failed to subscribe snapshots: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.snapshots.Run(ctx, ch)
		}()
	}

	if s.emitter != nil {
		if err := s.startMQTT(ctx); err != nil {
			return err
		}
	}

	// Bitmap subscriber health (snapshots can fall behind on slow disks)
	monitor := framebus.NewMonitor(busStats(s.widget.BusStats), statsInterval, nil)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitor.Run(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.statsLoop(ctx, statsInterval)
	}()

	if err := s.source.Start(ctx, s.widget.Receive); err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}

	// Live pipelines report their measured frame rate against the redraw rate
	if gs, ok := s.source.(*gstsource.Source); ok {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.warmup(ctx, gs)
		}()
	}

	slog.Info("ntviewd service running",
		"color_map", s.widget.ColorMap(),
		"max_redraw_rate", s.widget.MaxRedrawRate(),
		"snapshots", s.snapshots != nil,
		"mqtt", s.emitter != nil,
	)

	<-ctx.Done()

	slog.Info("ntviewd service run loop exiting")
	return nil
}

func (s *Service) startMQTT(ctx context.Context) error {
	if s.emitter.Client == nil {
		if err := s.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.emitter.Run(ctx)
	}()

	s.control = control.NewHandler(s.cfg, s.emitter.Client, control.CommandCallbacks{
		OnGetStatus:        s.Status,
		OnSetColorMap:      s.widget.SetColorMap,
		OnListColorMaps:    s.listColorMaps,
		OnSetMaxRedrawRate: s.widget.SetMaxRedrawRate,
		OnShutdown:         s.shutdownViaControl,
	})
	if err := s.control.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}
	return nil
}

// Shutdown stops every component. Safe to call when Run never started.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancelCtx
	server := s.server
	s.mu.Unlock()

	slog.Info("shutting down ntviewd service")

	// 1. Stop the source first so no record reaches a stopped widget
	if err := s.source.Stop(); err != nil {
		slog.Error("failed to stop source", "error", err)
	}

	// 2. Stop the widget (discards a decode in flight)
	if err := s.widget.Stop(); err != nil {
		slog.Error("failed to stop widget", "error", err)
	}

	// 3. Stop control plane
	if s.control != nil {
		if err := s.control.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 4. Wait for goroutines, bounded by ctx
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown timed out waiting for goroutines")
	}

	// 5. Disconnect MQTT
	if s.emitter != nil {
		if err := s.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("failed to stop health server", "error", err)
		}
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("ntviewd service shutdown complete", "uptime", uptime)
	return ctx.Err()
}

// onEvent runs on the widget presentation context and must not block.
func (s *Service) onEvent(ev ntimage.Event) {
	if int(ev.Kind) >= 0 && int(ev.Kind) < len(s.events) {
		s.events[ev.Kind].Add(1)
	}
	if s.emitter != nil {
		s.emitter.Emit(ev)
	}
}

// statsLoop logs widget and source counters periodically and mirrors them
// on the MQTT status topic.
func (s *Service) statsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws := s.widget.Stats()
			ss := s.source.Stats()
			slog.Info("ntviewd stats",
				"frames_received", ws.FramesReceived,
				"frames_dropped", ws.FramesDropped,
				"decodes_succeeded", ws.DecodesSucceeded,
				"decode_failures", ws.TotalFailures(),
				"overruns", ws.Overruns,
				"displayed_generation", ws.DisplayedGeneration,
				"source_emitted", ss.Emitted,
				"source_fps", ss.FPSReal,
			)
			if s.emitter != nil {
				if err := s.emitter.PublishStatus(s.Status()); err != nil {
					slog.Debug("status not published", "error", err)
				}
			}
		}
	}
}

func (s *Service) warmup(ctx context.Context, gs *gstsource.Source) {
	stats, err := gs.Warmup(ctx, warmupDuration)
	if err != nil {
		slog.Warn("stream warm-up failed, continuing without FPS stats", "error", err)
		return
	}
	rate := s.widget.MaxRedrawRate()
	if stats.FPSMean > float64(rate) {
		slog.Info("stream is faster than the redraw rate; frames will be dropped",
			"stream_fps_mean", stats.FPSMean,
			"max_redraw_rate", rate,
		)
	}
}

func (s *Service) shutdownViaControl() error {
	s.mu.RLock()
	cancel := s.cancelCtx
	s.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("service is not running")
	}
	slog.Warn("shutdown requested via control plane")
	cancel()
	return nil
}

// Widget exposes the widget, mainly for tests and embedding viewers.
func (s *Service) Widget() ntimage.Widget {
	return s.widget
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (s *Service) ShutdownTimeout() time.Duration {
	timeout := time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
	if timeout == 0 {
		return 5 * time.Second
	}
	return timeout
}

// busStats adapts a BusStats method value to framebus.StatsSource.
type busStats func() framebus.BusStats

func (f busStats) Stats() framebus.BusStats { return f() }
