package ntndsource

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

type collector struct {
	mu   sync.Mutex
	recs []*ntimage.Record
}

func (c *collector) sink(rec *ntimage.Record) {
	c.mu.Lock()
	c.recs = append(c.recs, rec)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

func TestSyntheticValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SyntheticConfig
	}{
		{"zero size", SyntheticConfig{RateHz: 10}},
		{"zero rate", SyntheticConfig{Width: 4, Height: 4}},
		{"reserved mode", SyntheticConfig{Width: 4, Height: 4, RateHz: 10, Mode: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSynthetic(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestSyntheticModesRenderAlike decodes the same pattern delivered in each
// RGB layout and expects identical bitmaps.
func TestSyntheticModesRenderAlike(t *testing.T) {
	const w, h = 8, 5

	render := func(mode ntimage.ColorMode) []byte {
		src, err := NewSynthetic(SyntheticConfig{Width: w, Height: h, RateHz: 1, Mode: mode, Type: ntimage.SampleUint8})
		if err != nil {
			t.Fatalf("NewSynthetic(%v) failed: %v", mode, err)
		}
		rec, err := src.Generate(3)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		widget, err := ntimage.New(ntimage.Config{MaxRedrawRate: 200})
		if err != nil {
			t.Fatalf("ntimage.New failed: %v", err)
		}
		if err := widget.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer widget.Stop()

		widget.Receive(rec)
		waitFor(t, mode.String()+" bitmap", func() bool { return widget.Bitmap() != nil })

		b := widget.Bitmap()
		if b.Width != w || b.Height != h {
			t.Fatalf("%v: bitmap %dx%d, want %dx%d", mode, b.Width, b.Height, w, h)
		}
		return b.Pix
	}

	rgb1 := render(ntimage.ColorModeRGB1)
	for _, mode := range []ntimage.ColorMode{ntimage.ColorModeRGB2, ntimage.ColorModeRGB3} {
		if got := render(mode); !bytes.Equal(got, rgb1) {
			t.Errorf("%v differs from RGB1:\n got %v\nwant %v", mode, got, rgb1)
		}
	}

	// Mono carries channel 0 of the pattern; the default map is greyscale.
	mono := render(ntimage.ColorModeMono)
	for p := 0; p < w*h; p++ {
		if mono[p*3] != rgb1[p*3] {
			t.Fatalf("pixel %d: mono %d, rgb red %d", p, mono[p*3], rgb1[p*3])
		}
	}
}

func TestSyntheticSampleTypes(t *testing.T) {
	for _, typ := range []ntimage.SampleType{
		ntimage.SampleUint8, ntimage.SampleInt8, ntimage.SampleUint16,
		ntimage.SampleInt16, ntimage.SampleUint32, ntimage.SampleInt32,
	} {
		t.Run(typ.String(), func(t *testing.T) {
			src, _ := NewSynthetic(SyntheticConfig{Width: 6, Height: 4, RateHz: 1, Type: typ})
			rec, err := src.Generate(0)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			raw, err := ntimage.FrameFromRecord(rec)
			if err != nil {
				t.Fatalf("FrameFromRecord failed: %v", err)
			}
			if raw.Type != typ || len(raw.Data) != 6*4*typ.Size() {
				t.Errorf("type %v with %d bytes", raw.Type, len(raw.Data))
			}
		})
	}
}

func TestSyntheticStartStop(t *testing.T) {
	src, _ := NewSynthetic(SyntheticConfig{Width: 4, Height: 4, RateHz: 200, Type: ntimage.SampleUint16})
	var c collector

	if err := src.Start(context.Background(), c.sink); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(context.Background(), c.sink); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	waitFor(t, "five records", func() bool { return c.len() >= 5 })
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool)
	for i, rec := range c.recs {
		if rec.UniqueID != int64(i) {
			t.Errorf("record %d has unique id %d", i, rec.UniqueID)
		}
		if rec.TraceID == "" || seen[rec.TraceID] {
			t.Errorf("record %d trace id %q not unique", i, rec.TraceID)
		}
		seen[rec.TraceID] = true
	}

	stats := src.Stats()
	t.Logf("synthetic stats: %+v", stats)
	if stats.Running || stats.Emitted != uint64(len(c.recs)) {
		t.Errorf("stats = %+v with %d records", stats, len(c.recs))
	}
}

func writeRecording(t *testing.T, n int, compress bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.ntnd")

	rec, err := Create(path, compress)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	src, _ := NewSynthetic(SyntheticConfig{Width: 4, Height: 3, RateHz: 1, Mode: ntimage.ColorModeRGB1})
	for i := 0; i < n; i++ {
		r, _ := src.Generate(uint64(i))
		rec.Record(r)
	}
	if written, failed := rec.Count(); written != uint64(n) || failed != 0 {
		t.Fatalf("recorder wrote %d, failed %d", written, failed)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func TestReplay(t *testing.T) {
	path := writeRecording(t, 3, true)

	src, err := NewReplay(ReplayConfig{Path: path, RateHz: 500})
	if err != nil {
		t.Fatalf("NewReplay failed: %v", err)
	}
	var c collector
	if err := src.Start(context.Background(), c.sink); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop()

	waitFor(t, "replay done", func() bool { return src.Stats().Done })

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.recs) != 3 {
		t.Fatalf("replayed %d records, want 3", len(c.recs))
	}
	for i, rec := range c.recs {
		if rec.UniqueID != int64(i) {
			t.Errorf("record %d has unique id %d", i, rec.UniqueID)
		}
	}
}

func TestReplayLoop(t *testing.T) {
	path := writeRecording(t, 2, false)

	src, _ := NewReplay(ReplayConfig{Path: path, RateHz: 500, Loop: true})
	var c collector
	if err := src.Start(context.Background(), c.sink); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "two loops", func() bool { return src.Stats().Loops >= 2 })
	src.Stop()

	if n := c.len(); n < 4 {
		t.Errorf("replayed %d records over %d loops", n, src.Stats().Loops)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := NewReplay(ReplayConfig{Path: filepath.Join(t.TempDir(), "absent"), RateHz: 1}); err == nil {
		t.Error("expected error for missing recording")
	}
	if _, err := NewReplay(ReplayConfig{Path: "x", RateHz: 0}); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("err = %v, want ErrInvalidRate", err)
	}
}
