package internal

import (
	"fmt"
	"math"

	"github.com/slaclab/pydm-pva-widgets/modules/colormap"
)

// ColorTable maps 8-bit sample values to packed 0xAARRGGBB colors.
// Read-only after construction; shared between decode tasks without locking.
type ColorTable []uint32

// BuildColorTable converts color-map stops into a lookup table, one entry per
// stop. Missing alpha is fully opaque. No stops yields an empty table, which
// means "no lookup table": mono frames then display as plain greyscale.
func BuildColorTable(stops []colormap.Stop) ColorTable {
	if len(stops) == 0 {
		return nil
	}

	table := make(ColorTable, len(stops))
	for i, s := range stops {
		table[i] = packARGB(s.R, s.G, s.B, s.Alpha())
	}
	return table
}

// Apply colors a single-channel 8-bit frame and returns RGB888 pixels.
//
// Values beyond the end of the table use the last entry. An empty table
// expands the samples to grey (r=g=b=v). Frames with more than one channel
// are rejected with ErrNotMono.
func (t ColorTable) Apply(f *NormalizedFrame) (*NormalizedFrame, error) {
	if f.Channels != 1 {
		return nil, fmt.Errorf("%w: frame has %d channels", ErrNotMono, f.Channels)
	}

	out := make([]byte, 3*len(f.Pix))
	last := len(t) - 1
	for i, v := range f.Pix {
		o := 3 * i
		if last < 0 {
			out[o], out[o+1], out[o+2] = v, v, v
			continue
		}
		idx := int(v)
		if idx > last {
			idx = last
		}
		c := t[idx]
		out[o] = byte(c >> 16)
		out[o+1] = byte(c >> 8)
		out[o+2] = byte(c)
	}

	return &NormalizedFrame{
		Width:    f.Width,
		Height:   f.Height,
		Channels: 3,
		Format:   RGB888,
		Pix:      out,
	}, nil
}

func packARGB(r, g, b, a float64) uint32 {
	return uint32(channel8(a))<<24 | uint32(channel8(r))<<16 | uint32(channel8(g))<<8 | uint32(channel8(b))
}

func channel8(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
