package internal

import (
	"errors"
	"testing"

	"github.com/slaclab/pydm-pva-widgets/modules/colormap"
)

func TestBuildColorTable(t *testing.T) {
	half := 0.5
	table := BuildColorTable([]colormap.Stop{
		{R: 1, G: 0, B: 0},
		{R: 0, G: 1, B: 0, A: &half},
		{R: 0.2, G: 0.4, B: 0.6},
	})

	want := ColorTable{0xFFFF0000, 0x8000FF00, 0xFF336699}
	if len(table) != len(want) {
		t.Fatalf("table has %d entries, want %d", len(table), len(want))
	}
	for i := range want {
		if table[i] != want[i] {
			t.Errorf("entry %d = %#08x, want %#08x", i, table[i], want[i])
		}
	}

	if BuildColorTable(nil) != nil {
		t.Error("no stops should yield an empty table")
	}
}

// TestApplyMonochromeIsGreyscale renders a 4x4 mono ramp through the
// default map and expects r=g=b=v for every pixel.
func TestApplyMonochromeIsGreyscale(t *testing.T) {
	m, err := colormap.Default().Get(colormap.Monochrome)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	table := BuildColorTable(m.Stops)

	pix := make([]byte, 16)
	for i := range pix {
		pix[i] = []byte{0, 85, 170, 255}[i%4]
	}
	in := &NormalizedFrame{Width: 4, Height: 4, Channels: 1, Format: Indexed8, Pix: pix}

	out, err := table.Apply(in)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Format != RGB888 || out.Channels != 3 || len(out.Pix) != 48 {
		t.Fatalf("unexpected output %v/%d/%d", out.Format, out.Channels, len(out.Pix))
	}
	for i, v := range pix {
		r, g, b := out.Pix[3*i], out.Pix[3*i+1], out.Pix[3*i+2]
		if r != v || g != v || b != v {
			t.Errorf("pixel %d = (%d,%d,%d), want grey %d", i, r, g, b, v)
		}
	}
}

func TestApplyClampsToLastEntry(t *testing.T) {
	table := ColorTable{0xFF000000, 0xFF0000FF}
	in := &NormalizedFrame{Width: 3, Height: 1, Channels: 1, Pix: []byte{0, 1, 200}}

	out, err := table.Apply(in)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []byte{0, 0, 0, 0, 0, 255, 0, 0, 255}
	for i := range want {
		if out.Pix[i] != want[i] {
			t.Fatalf("Pix = %v, want %v", out.Pix, want)
		}
	}
}

func TestApplyEmptyTableExpandsGrey(t *testing.T) {
	var table ColorTable
	out, err := table.Apply(&NormalizedFrame{Width: 2, Height: 1, Channels: 1, Pix: []byte{9, 200}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []byte{9, 9, 9, 200, 200, 200}
	for i := range want {
		if out.Pix[i] != want[i] {
			t.Fatalf("Pix = %v, want %v", out.Pix, want)
		}
	}
}

func TestApplyRejectsColorFrames(t *testing.T) {
	table := ColorTable{0xFFFFFFFF}
	_, err := table.Apply(&NormalizedFrame{Width: 1, Height: 1, Channels: 3, Pix: []byte{1, 2, 3}})
	if !errors.Is(err, ErrNotMono) {
		t.Errorf("Apply error = %v, want ErrNotMono", err)
	}
}
