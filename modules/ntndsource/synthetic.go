package ntndsource

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

// SyntheticConfig describes the generated stream.
type SyntheticConfig struct {
	Width  int
	Height int
	RateHz float64
	Mode   ntimage.ColorMode
	Type   ntimage.SampleType

	// Step is how many pixels the pattern moves per frame (default 1).
	Step int
}

// Synthetic generates a diagonal gradient that drifts one Step per frame.
// The three color channels are phase shifted by a third of the period so
// every color mode produces the same picture once decoded.
type Synthetic struct {
	cfg SyntheticConfig
	run runner
	seq uint64
}

// NewSynthetic validates cfg and returns a stopped source.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("ntndsource: synthetic size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.RateHz <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, cfg.RateHz)
	}
	switch cfg.Mode {
	case ntimage.ColorModeMono, ntimage.ColorModeRGB1, ntimage.ColorModeRGB2, ntimage.ColorModeRGB3:
	default:
		return nil, fmt.Errorf("%w: %d", ntimage.ErrUnsupportedColorMode, int(cfg.Mode))
	}
	if cfg.Step == 0 {
		cfg.Step = 1
	}
	return &Synthetic{
		cfg: cfg,
		run: runner{kind: "synthetic", rate: cfg.RateHz},
	}, nil
}

// Start implements Source.
func (s *Synthetic) Start(ctx context.Context, sink Sink) error {
	return s.run.start(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.run.period())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rec, err := s.Generate(s.seq)
				s.seq++
				if err != nil {
					s.run.errors.Add(1)
					continue
				}
				sink(rec)
				s.run.emitted.Add(1)
			}
		}
	})
}

// Stop implements Source.
func (s *Synthetic) Stop() error { return s.run.stop() }

// Stats implements Source.
func (s *Synthetic) Stats() Stats { return s.run.stats() }

// Generate builds frame number seq of the pattern.
func (s *Synthetic) Generate(seq uint64) (*ntimage.Record, error) {
	w, h := s.cfg.Width, s.cfg.Height
	channels := 3
	if s.cfg.Mode == ntimage.ColorModeMono {
		channels = 1
	}

	max := s.cfg.Type.Max()
	period := int64(w + h)
	shift := int64(seq) * int64(s.cfg.Step)

	raw := make([]int64, w*h*channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*w + x
			for c := 0; c < channels; c++ {
				phase := (int64(x+y) + shift + int64(c)*period/3) % period
				raw[rawIndex(s.cfg.Mode, w, h, p, c)] = phase * max / (period - 1)
			}
		}
	}

	var samples interface{}
	switch s.cfg.Type {
	case ntimage.SampleUint8:
		samples = convert[uint8](raw)
	case ntimage.SampleInt8:
		samples = convert[int8](raw)
	case ntimage.SampleUint16:
		samples = convert[uint16](raw)
	case ntimage.SampleInt16:
		samples = convert[int16](raw)
	case ntimage.SampleUint32:
		samples = convert[uint32](raw)
	case ntimage.SampleInt32:
		samples = convert[int32](raw)
	default:
		return nil, fmt.Errorf("ntndsource: sample type %v", s.cfg.Type)
	}

	rec, err := ntimage.NewRecord(samples, Shape(s.cfg.Mode, w, h), s.cfg.Mode)
	if err != nil {
		return nil, err
	}
	rec.UniqueID = int64(seq)
	rec.TraceID = uuid.New().String()
	return rec, nil
}

// Shape returns the NTNDArray dimension sizes of a w×h frame in mode.
func Shape(mode ntimage.ColorMode, w, h int) []int {
	switch mode {
	case ntimage.ColorModeRGB1:
		return []int{3, w, h}
	case ntimage.ColorModeRGB2:
		return []int{w, 3, h}
	case ntimage.ColorModeRGB3:
		return []int{w, h, 3}
	default:
		return []int{w, h}
	}
}

// rawIndex returns where channel c of canonical pixel p lives in the
// delivered buffer of a w×h frame. It is the inverse of the axis transform
// the widget applies for mode.
func rawIndex(mode ntimage.ColorMode, w, h, p, c int) int {
	switch mode {
	case ntimage.ColorModeRGB1:
		return p*3 + c
	case ntimage.ColorModeRGB2:
		// (w,3,h) with axes 1 and 2 swapped
		i, j := p/h, p%h
		return i*3*h + c*h + j
	case ntimage.ColorModeRGB3:
		// (3,w,h) with axes 0 and 2 swapped
		i, j := p/w, p%w
		return c*w*h + j*h + i
	default:
		return p
	}
}

type sample interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32
}

func convert[T sample](raw []int64) []T {
	out := make([]T, len(raw))
	for i, v := range raw {
		out[i] = T(v)
	}
	return out
}
