package internal

import (
	"bytes"
	"testing"
)

func encode(t *testing.T, samples interface{}) ([]byte, SampleType) {
	t.Helper()
	data, typ, ok := EncodeSamples(samples)
	if !ok {
		t.Fatalf("EncodeSamples(%T) failed", samples)
	}
	return data, typ
}

func TestNormalizeFullScale(t *testing.T) {
	tests := []struct {
		name    string
		samples interface{}
		bits    int
		want    []byte
	}{
		{"uint16", []uint16{0, 257, 32768, 65535}, 0, []byte{0, 1, 127, 255}},
		{"uint16 12-bit", []uint16{0, 2048, 4095, 5000}, 12, []byte{0, 127, 255, 255}},
		{"int16 negative clamps", []int16{-5, 0, 16384, 32767}, 0, []byte{0, 0, 127, 255}},
		{"int8", []int8{-128, 0, 64, 127}, 0, []byte{0, 0, 128, 255}},
		{"uint32", []uint32{0, 1 << 31, 1<<32 - 1}, 0, []byte{0, 127, 255}},
		{"int32", []int32{-1, 1 << 30, 1<<31 - 1}, 0, []byte{0, 127, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, typ := encode(t, tt.samples)
			got, degenerate := Normalize(data, typ, tt.bits, FullScale)
			if degenerate {
				t.Error("full scale should never be degenerate")
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Normalize = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeUint8Identity(t *testing.T) {
	data := []byte{0, 1, 128, 255}
	got, _ := Normalize(data, SampleUint8, 0, FullScale)
	if &got[0] != &data[0] {
		t.Error("8-bit input should be returned as-is")
	}

	got, _ = Normalize(data, SampleUint8, 8, AutoRange)
	if !bytes.Equal(got, data) {
		t.Errorf("8-bit auto range = %v, want identity", got)
	}
}

func TestNormalizeAutoRange(t *testing.T) {
	data, typ := encode(t, []uint16{10, 20, 30})
	got, degenerate := Normalize(data, typ, 0, AutoRange)
	if degenerate {
		t.Fatal("unexpected degenerate range")
	}
	if want := []byte{0, 127, 255}; !bytes.Equal(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalizeDegenerateAutoRangeIsZero(t *testing.T) {
	data, typ := encode(t, []uint16{7, 7, 7, 7})
	got, degenerate := Normalize(data, typ, 0, AutoRange)
	if !degenerate {
		t.Error("constant frame should report a degenerate range")
	}
	if !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("degenerate output = %v, want zeros", got)
	}
}

// TestNormalizeConstantFullScaleKeepsLevel shows that a constant frame is not
// degenerate under FullScale: it keeps its place in the fixed source range.
func TestNormalizeConstantFullScaleKeepsLevel(t *testing.T) {
	tests := []struct {
		name  string
		level uint16
		want  byte
	}{
		{"max", 65535, 255},
		{"zero", 0, 0},
		{"mid", 32768, 127},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, typ := encode(t, []uint16{tt.level, tt.level, tt.level})
			got, degenerate := Normalize(data, typ, 0, FullScale)
			if degenerate {
				t.Error("full scale reported a degenerate range")
			}
			if want := []byte{tt.want, tt.want, tt.want}; !bytes.Equal(got, want) {
				t.Errorf("Normalize = %v, want %v", got, want)
			}
		})
	}
}

// TestNormalizeMonotonic checks that the mapping never inverts order and
// always stays within [0, 255].
func TestNormalizeMonotonic(t *testing.T) {
	var samples []uint16
	for v := 0; v <= 65535; v += 97 {
		samples = append(samples, uint16(v))
	}
	data, typ := encode(t, samples)

	for _, mode := range []Normalization{FullScale, AutoRange} {
		got, _ := Normalize(data, typ, 0, mode)
		if len(got) != len(samples) {
			t.Fatalf("%v: %d outputs for %d samples", mode, len(got), len(samples))
		}
		for i := 1; i < len(got); i++ {
			if got[i] < got[i-1] {
				t.Fatalf("%v: output decreased at %d: %d -> %d", mode, i, got[i-1], got[i])
			}
		}
		if got[0] != 0 {
			t.Errorf("%v: min maps to %d, want 0", mode, got[0])
		}
		t.Logf("%v: last sample %d -> %d", mode, samples[len(samples)-1], got[len(got)-1])
	}
}

func TestParseNormalization(t *testing.T) {
	for in, want := range map[string]Normalization{"": FullScale, "full_scale": FullScale, "auto_range": AutoRange} {
		got, err := ParseNormalization(in)
		if err != nil || got != want {
			t.Errorf("ParseNormalization(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseNormalization("log"); err == nil {
		t.Error("expected error for unknown normalization")
	}
}
