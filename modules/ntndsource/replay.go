package ntndsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ReplayConfig describes a recording replay.
type ReplayConfig struct {
	Path   string
	RateHz float64

	// Loop restarts from the first record at end of file.
	Loop bool
}

// Replay delivers the records of a recording at a fixed rate.
type Replay struct {
	cfg ReplayConfig
	run runner
}

// NewReplay checks that the recording can be opened and returns a stopped
// source.
func NewReplay(cfg ReplayConfig) (*Replay, error) {
	if cfg.RateHz <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, cfg.RateHz)
	}
	r, err := Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("ntndsource: open recording: %w", err)
	}
	r.Close()

	return &Replay{
		cfg: cfg,
		run: runner{kind: "replay", rate: cfg.RateHz},
	}, nil
}

// Start implements Source.
func (p *Replay) Start(ctx context.Context, sink Sink) error {
	return p.run.start(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(p.run.period())
		defer ticker.Stop()

		for {
			more, err := p.pass(ctx, ticker, sink)
			if err != nil {
				p.run.errors.Add(1)
				slog.Warn("ntndsource: replay stopped on read error",
					"path", p.cfg.Path,
					"error", err,
				)
				p.run.done.Store(true)
				return
			}
			if !more {
				return
			}
			p.run.loops.Add(1)
			if !p.cfg.Loop {
				slog.Info("ntndsource: replay finished",
					"path", p.cfg.Path,
					"emitted", p.run.emitted.Load(),
				)
				p.run.done.Store(true)
				return
			}
		}
	})
}

// pass replays the file once. It returns false when ctx ended the pass.
func (p *Replay) pass(ctx context.Context, ticker *time.Ticker, sink Sink) (bool, error) {
	r, err := Open(p.cfg.Path)
	if err != nil {
		return false, err
	}
	defer r.Close()

	emitted := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			if emitted == 0 {
				return false, fmt.Errorf("ntndsource: recording %s is empty", p.cfg.Path)
			}
			return true, nil
		}
		if err != nil {
			return false, err
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}

		sink(rec)
		emitted++
		p.run.emitted.Add(1)
	}
}

// Stop implements Source.
func (p *Replay) Stop() error { return p.run.stop() }

// Stats implements Source.
func (p *Replay) Stats() Stats { return p.run.stats() }
