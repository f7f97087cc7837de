package internal

import (
	"fmt"
)

// Normalization selects the source range mapped onto [0, 255].
type Normalization int

const (
	// FullScale maps [0, max representable value] to [0, 255].
	FullScale Normalization = iota
	// AutoRange maps the frame's own [min, max] to [0, 255].
	AutoRange
)

func (n Normalization) String() string {
	switch n {
	case FullScale:
		return "full_scale"
	case AutoRange:
		return "auto_range"
	default:
		return fmt.Sprintf("Normalization(%d)", int(n))
	}
}

// ParseNormalization maps "full_scale" / "auto_range" to a Normalization.
// The empty string selects FullScale.
func ParseNormalization(s string) (Normalization, error) {
	switch s {
	case "", "full_scale":
		return FullScale, nil
	case "auto_range":
		return AutoRange, nil
	default:
		return 0, fmt.Errorf("%w: unknown normalization %q", ErrInvalidConfig, s)
	}
}

// Normalize rescales samples of type t to 8 bits.
//
// Uint8 input is returned as-is (same backing array). Otherwise every sample
// is clamped into the source range and mapped linearly, truncating:
//
//	out = (clamp(v, lo, hi) - lo) * 255 / (hi - lo)
//
// FullScale uses lo=0 and hi=2^bits-1 (bits<=0 means the container width).
// AutoRange uses the frame's min and max; when they are equal the output is
// all zeros and degenerate is true.
//
// The zero-output rule for constant frames holds only under AutoRange.
// FullScale has a fixed source range, so a constant frame maps like any other
// sample (all 65535 in uint16 gives all 255) and is not degenerate.
func Normalize(data []byte, t SampleType, bits int, mode Normalization) (out []byte, degenerate bool) {
	if t == SampleUint8 && (bits <= 0 || bits == 8) {
		return data, false
	}

	n := len(data) / t.Size()
	out = make([]byte, n)
	if n == 0 {
		return out, false
	}

	var lo, hi int64
	switch mode {
	case AutoRange:
		lo, hi = sampleRange(data, t, n)
	default:
		lo, hi = 0, t.Max()
		if bits > 0 && bits < t.Bits() {
			hi = int64(1)<<uint(bits) - 1
		}
	}

	span := hi - lo
	if span <= 0 {
		return out, true
	}

	for i := 0; i < n; i++ {
		v := readSample(data, t, i)
		if v <= lo {
			continue
		}
		if v >= hi {
			out[i] = 255
			continue
		}
		out[i] = byte((v - lo) * 255 / span)
	}
	return out, false
}

func sampleRange(data []byte, t SampleType, n int) (lo, hi int64) {
	lo = readSample(data, t, 0)
	hi = lo
	for i := 1; i < n; i++ {
		v := readSample(data, t, i)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
