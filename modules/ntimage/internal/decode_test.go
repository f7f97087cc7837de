package internal

import (
	"errors"
	"image"
	"testing"

	"github.com/slaclab/pydm-pva-widgets/modules/colormap"
)

func monoFrame(w, h int) *RawFrame {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = byte(i * 16)
	}
	return &RawFrame{Data: data, Type: SampleUint8, Shape: []int{w, h}, ColorMode: ColorModeMono, TraceID: "trace-1"}
}

func monochromeTable(t *testing.T) ColorTable {
	t.Helper()
	m, err := colormap.Default().Get(colormap.Monochrome)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return BuildColorTable(m.Stops)
}

func TestRunDecodeMonoWithTable(t *testing.T) {
	res := runDecode(decodeJob{generation: 3, frame: monoFrame(4, 4), dirty: true, table: monochromeTable(t)})
	if res.err != nil {
		t.Fatalf("decode failed: %v", res.err)
	}

	b := res.bitmap
	if b.Generation != 3 || b.TraceID != "trace-1" {
		t.Errorf("bitmap tagged %d/%q", b.Generation, b.TraceID)
	}
	if b.Format != RGB888 || len(b.Pix) != 48 {
		t.Errorf("format %v with %d bytes", b.Format, len(b.Pix))
	}
	if _, ok := b.Image.(*image.RGBA); !ok {
		t.Errorf("image is %T, want *image.RGBA", b.Image)
	}
	if b.Image.Bounds().Dx() != 4 || b.Image.Bounds().Dy() != 4 {
		t.Errorf("image bounds %v", b.Image.Bounds())
	}
	t.Logf("decoded in %v", b.DecodeDuration)
}

func TestRunDecodeMonoWithoutTable(t *testing.T) {
	res := runDecode(decodeJob{generation: 1, frame: monoFrame(4, 2), dirty: true})
	if res.err != nil {
		t.Fatalf("decode failed: %v", res.err)
	}
	if res.bitmap.Format != Gray8 {
		t.Errorf("format = %v, want Gray8", res.bitmap.Format)
	}
	if _, ok := res.bitmap.Image.(*image.Gray); !ok {
		t.Errorf("image is %T, want *image.Gray", res.bitmap.Image)
	}
}

func TestRunDecodeRGBIgnoresTable(t *testing.T) {
	raw := &RawFrame{Data: seq(12), Type: SampleUint8, Shape: []int{3, 2, 2}, ColorMode: ColorModeRGB1}
	res := runDecode(decodeJob{generation: 1, frame: raw, dirty: true, table: monochromeTable(t)})
	if res.err != nil {
		t.Fatalf("decode failed: %v", res.err)
	}
	if res.bitmap.Format != RGB888 {
		t.Errorf("format = %v, want RGB888", res.bitmap.Format)
	}
	img := res.bitmap.Image.(*image.RGBA)
	if c := img.RGBAAt(1, 0); c.R != 3 || c.G != 4 || c.B != 5 || c.A != 255 {
		t.Errorf("pixel (1,0) = %v", c)
	}
}

func TestRunDecodeScalesToViewport(t *testing.T) {
	res := runDecode(decodeJob{generation: 1, frame: monoFrame(4, 2), dirty: true, viewport: Viewport{Width: 8, Height: 8}})
	if res.err != nil {
		t.Fatalf("decode failed: %v", res.err)
	}
	if got := res.bitmap.Image.Bounds(); got.Dx() != 8 || got.Dy() != 4 {
		t.Errorf("scaled bounds %v, want 8x4", got)
	}
	if res.bitmap.Width != 4 || res.bitmap.Height != 2 {
		t.Errorf("native size %dx%d, want 4x2", res.bitmap.Width, res.bitmap.Height)
	}
}

func TestRunDecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		job  decodeJob
		want error
		kind FailureKind
	}{
		{"no frame", decodeJob{dirty: true}, ErrNoFrame, FailureNoFrame},
		{"stale trigger", decodeJob{frame: monoFrame(2, 2)}, ErrStaleTrigger, FailureStale},
		{
			"unsupported mode",
			decodeJob{frame: &RawFrame{Data: seq(4), Type: SampleUint8, Shape: []int{2, 2}, ColorMode: 1}, dirty: true},
			ErrUnsupportedColorMode, FailureUnsupportedMode,
		},
		{
			"short buffer",
			decodeJob{frame: &RawFrame{Data: seq(3), Type: SampleUint8, Shape: []int{2, 2}}, dirty: true},
			ErrMalformedFrame, FailureMalformed,
		},
		{
			"processor resizes",
			decodeJob{frame: monoFrame(2, 2), dirty: true, processor: ProcessorFunc(func(in *Frame) (*Frame, error) {
				out := in.Clone()
				out.Width = 1
				return out, nil
			})},
			ErrProcessorContract, FailureProcessor,
		},
		{
			"processor error",
			decodeJob{frame: monoFrame(2, 2), dirty: true, processor: ProcessorFunc(func(in *Frame) (*Frame, error) {
				return nil, errors.New("boom")
			})},
			ErrProcessorContract, FailureProcessor,
		},
		{
			"processor panics",
			decodeJob{frame: monoFrame(2, 2), dirty: true, processor: ProcessorFunc(func(in *Frame) (*Frame, error) {
				panic("index out of range")
			})},
			ErrProcessorContract, FailureProcessor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runDecode(tt.job)
			if res.bitmap != nil {
				t.Error("failed decode must not produce a bitmap")
			}
			if !errors.Is(res.err, tt.want) {
				t.Errorf("err = %v, want %v", res.err, tt.want)
			}
			if got := ClassifyFailure(res.err); got != tt.kind {
				t.Errorf("ClassifyFailure = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestRunDecodeProcessorSeesCanonicalFrame(t *testing.T) {
	var seen *Frame
	invert := ProcessorFunc(func(in *Frame) (*Frame, error) {
		seen = in
		out := in.Clone()
		for i := 0; i < out.Len(); i++ {
			out.SetSample(i, 255-out.Sample(i))
		}
		return out, nil
	})

	raw := monoFrame(2, 2)
	res := runDecode(decodeJob{frame: raw, dirty: true, processor: invert})
	if res.err != nil {
		t.Fatalf("decode failed: %v", res.err)
	}
	if seen.Width != 2 || seen.Height != 2 || seen.Channels != 1 || seen.ColorMode != ColorModeMono {
		t.Errorf("processor saw %+v", seen)
	}
	if raw.Data[1] != 16 {
		t.Error("processor output leaked into the delivered frame")
	}
	if res.bitmap.Pix[1] != 255-16 {
		t.Errorf("pixel 1 = %d, want %d", res.bitmap.Pix[1], 255-16)
	}
}

func TestFitAspect(t *testing.T) {
	tests := []struct {
		srcW, srcH int
		vp         Viewport
		w, h       int
	}{
		{4, 2, Viewport{8, 8}, 8, 4},
		{2, 4, Viewport{8, 8}, 4, 8},
		{100, 100, Viewport{50, 50}, 50, 50},
		{640, 480, Viewport{0, 0}, 640, 480},
		{1000, 1, Viewport{10, 10}, 10, 1},
	}

	for _, tt := range tests {
		w, h := FitAspect(tt.srcW, tt.srcH, tt.vp)
		if w != tt.w || h != tt.h {
			t.Errorf("FitAspect(%d,%d,%v) = %dx%d, want %dx%d", tt.srcW, tt.srcH, tt.vp, w, h, tt.w, tt.h)
		}
	}
}

func TestRunDecodeSafeRecoversPanics(t *testing.T) {
	// a viewport this large makes the scaled image allocation panic
	job := decodeJob{
		generation: 7,
		frame:      monoFrame(2, 2),
		dirty:      true,
		viewport:   Viewport{Width: 1 << 40, Height: 1 << 40},
	}

	res := runDecodeSafe(job)
	if res.bitmap != nil {
		t.Fatal("panicking decode produced a bitmap")
	}
	if res.generation != 7 || ClassifyFailure(res.err) != FailureUnknown {
		t.Errorf("result = gen %d err %v, want gen 7 unknown failure", res.generation, res.err)
	}
	t.Logf("recovered: %v", res.err)

	if res := runDecodeSafe(decodeJob{frame: monoFrame(2, 2), dirty: true}); res.err != nil {
		t.Errorf("healthy decode failed: %v", res.err)
	}
}
