package internal

import (
	"fmt"
)

// MaxFrameSamples bounds width*height*channels of a single frame.
const MaxFrameSamples = 1 << 28

// sampleCount multiplies dims, failing when a dimension is not positive or
// the product exceeds MaxFrameSamples.
func sampleCount(dims ...int) (int, bool) {
	n := 1
	for _, d := range dims {
		if d <= 0 || n > MaxFrameSamples/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

// AxisTransform reinterprets a flat buffer as a 3-D array of Dims (C order,
// last axis fastest) and, when Swap is set, exchanges axes A and B.
type AxisTransform struct {
	Dims [3]int
	Swap bool
	A, B int
}

// Identity reports whether the transform leaves the buffer untouched.
func (t AxisTransform) Identity() bool {
	return !t.Swap || t.A == t.B
}

// OutputDims returns the array shape after the transform.
func (t AxisTransform) OutputDims() [3]int {
	out := t.Dims
	if !t.Identity() {
		out[t.A], out[t.B] = out[t.B], out[t.A]
	}
	return out
}

// Apply returns src rearranged by the transform. elemSize is the number of
// bytes per sample. An identity transform returns src itself (no copy).
func (t AxisTransform) Apply(src []byte, elemSize int) ([]byte, error) {
	if t.Identity() {
		return src, nil
	}

	in := t.Dims
	n, ok := sampleCount(in[0], in[1], in[2])
	if !ok {
		return nil, fmt.Errorf("%w: transform of %v exceeds %d samples", ErrMalformedFrame, in, MaxFrameSamples)
	}
	if n*elemSize != len(src) {
		return nil, fmt.Errorf("%w: transform of %v needs %d bytes, buffer has %d",
			ErrMalformedFrame, in, n*elemSize, len(src))
	}

	inStride := [3]int{in[1] * in[2], in[2], 1}
	out := t.OutputDims()
	dst := make([]byte, len(src))

	o := 0
	var idx [3]int
	for idx[0] = 0; idx[0] < out[0]; idx[0]++ {
		for idx[1] = 0; idx[1] < out[1]; idx[1]++ {
			for idx[2] = 0; idx[2] < out[2]; idx[2]++ {
				j := idx
				j[t.A], j[t.B] = j[t.B], j[t.A]
				off := (j[0]*inStride[0] + j[1]*inStride[1] + j[2]) * elemSize
				copy(dst[o:o+elemSize], src[off:off+elemSize])
				o += elemSize
			}
		}
	}
	return dst, nil
}

// Layout is the canonical geometry of a frame for a given color mode.
type Layout struct {
	Width     int
	Height    int
	Channels  int
	Transform AxisTransform
	Format    PixelFormat
}

// Resolve maps a color mode and raw shape to the canonical layout.
//
//	Mono: w=shape[0] h=shape[1], 1 channel, no transform, Indexed8
//	RGB1: w=shape[1] h=shape[2], 3 channels, reshape (w,h,3) only, RGB888
//	RGB2: w=shape[0] h=shape[2], 3 channels, reshape (w,3,h) + swap(1,2), RGB888
//	RGB3: w=shape[0] h=shape[1], 3 channels, reshape (3,w,h) + swap(0,2), RGB888
//
// Pure: the buffer itself is rearranged by the caller via Layout.Transform.
func Resolve(mode ColorMode, shape []int) (Layout, error) {
	need := 3
	if mode == ColorModeMono {
		need = 2
	}

	switch mode {
	case ColorModeMono, ColorModeRGB1, ColorModeRGB2, ColorModeRGB3:
	default:
		return Layout{}, fmt.Errorf("%w: %d", ErrUnsupportedColorMode, int(mode))
	}

	if len(shape) < need {
		return Layout{}, fmt.Errorf("%w: %s needs %d dimensions, got %d",
			ErrMalformedFrame, mode, need, len(shape))
	}
	for i, d := range shape {
		if d <= 0 {
			return Layout{}, fmt.Errorf("%w: dimension %d has size %d", ErrMalformedFrame, i, d)
		}
	}

	var l Layout
	switch mode {
	case ColorModeMono:
		w, h := shape[0], shape[1]
		l = Layout{
			Width: w, Height: h, Channels: 1,
			Transform: AxisTransform{Dims: [3]int{w, h, 1}},
			Format:    Indexed8,
		}

	case ColorModeRGB1:
		w, h := shape[1], shape[2]
		l = Layout{
			Width: w, Height: h, Channels: 3,
			Transform: AxisTransform{Dims: [3]int{w, h, 3}},
			Format:    RGB888,
		}

	case ColorModeRGB2:
		w, h := shape[0], shape[2]
		l = Layout{
			Width: w, Height: h, Channels: 3,
			Transform: AxisTransform{Dims: [3]int{w, 3, h}, Swap: true, A: 1, B: 2},
			Format:    RGB888,
		}

	default: // ColorModeRGB3
		w, h := shape[0], shape[1]
		l = Layout{
			Width: w, Height: h, Channels: 3,
			Transform: AxisTransform{Dims: [3]int{3, w, h}, Swap: true, A: 0, B: 2},
			Format:    RGB888,
		}
	}

	if _, ok := sampleCount(l.Width, l.Height, l.Channels); !ok {
		return Layout{}, fmt.Errorf("%w: %s %dx%d exceeds %d samples",
			ErrMalformedFrame, mode, l.Width, l.Height, MaxFrameSamples)
	}
	return l, nil
}

// Reshape validates raw against the layout and returns the canonical frame.
func Reshape(raw *RawFrame, l Layout) (*Frame, error) {
	if !raw.Type.Valid() {
		return nil, fmt.Errorf("%w: sample type %d", ErrMalformedFrame, int(raw.Type))
	}

	size := raw.Type.Size()
	n, ok := sampleCount(l.Width, l.Height, l.Channels)
	if !ok {
		return nil, fmt.Errorf("%w: %s %dx%d exceeds %d samples",
			ErrMalformedFrame, raw.ColorMode, l.Width, l.Height, MaxFrameSamples)
	}
	want := n * size
	if len(raw.Data) != want {
		return nil, fmt.Errorf("%w: %s %dx%d %s needs %d bytes, buffer has %d",
			ErrMalformedFrame, raw.ColorMode, l.Width, l.Height, raw.Type, want, len(raw.Data))
	}

	data, err := l.Transform.Apply(raw.Data, size)
	if err != nil {
		return nil, err
	}

	return &Frame{
		Width:      l.Width,
		Height:     l.Height,
		Channels:   l.Channels,
		Type:       raw.Type,
		Data:       data,
		ColorMode:  raw.ColorMode,
		Attributes: raw.Attributes,
	}, nil
}
