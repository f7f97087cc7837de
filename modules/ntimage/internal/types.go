package internal

import (
	"fmt"
	"image"
	"time"
)

// ColorMode identifies how pixel data is laid out in the raw buffer.
// Values follow the NTNDArray ColorMode attribute encoding; 1 is reserved.
type ColorMode int

const (
	ColorModeMono ColorMode = 0
	ColorModeRGB1 ColorMode = 2
	ColorModeRGB2 ColorMode = 3
	ColorModeRGB3 ColorMode = 4
)

// String returns a human-readable name for the color mode
func (m ColorMode) String() string {
	switch m {
	case ColorModeMono:
		return "Mono"
	case ColorModeRGB1:
		return "RGB1"
	case ColorModeRGB2:
		return "RGB2"
	case ColorModeRGB3:
		return "RGB3"
	default:
		return fmt.Sprintf("ColorMode(%d)", int(m))
	}
}

// ParseColorMode maps a name ("Mono", "RGB1", ...) to its color mode.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "Mono", "mono":
		return ColorModeMono, nil
	case "RGB1", "rgb1":
		return ColorModeRGB1, nil
	case "RGB2", "rgb2":
		return ColorModeRGB2, nil
	case "RGB3", "rgb3":
		return ColorModeRGB3, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedColorMode, s)
	}
}

// SampleType is the integer type of every sample in a pixel buffer.
type SampleType int

const (
	SampleUint8 SampleType = iota
	SampleInt8
	SampleUint16
	SampleInt16
	SampleUint32
	SampleInt32
)

// Size returns the number of bytes per sample.
func (t SampleType) Size() int {
	switch t {
	case SampleUint8, SampleInt8:
		return 1
	case SampleUint16, SampleInt16:
		return 2
	case SampleUint32, SampleInt32:
		return 4
	default:
		return 0
	}
}

// Bits returns the container width in bits.
func (t SampleType) Bits() int {
	return t.Size() * 8
}

// Signed reports whether samples are two's complement.
func (t SampleType) Signed() bool {
	return t == SampleInt8 || t == SampleInt16 || t == SampleInt32
}

// Max returns the largest value the type can represent.
func (t SampleType) Max() int64 {
	switch t {
	case SampleUint8:
		return 1<<8 - 1
	case SampleInt8:
		return 1<<7 - 1
	case SampleUint16:
		return 1<<16 - 1
	case SampleInt16:
		return 1<<15 - 1
	case SampleUint32:
		return 1<<32 - 1
	case SampleInt32:
		return 1<<31 - 1
	default:
		return 0
	}
}

// Valid reports whether t is a known sample type.
func (t SampleType) Valid() bool {
	return t.Size() != 0
}

func (t SampleType) String() string {
	switch t {
	case SampleUint8:
		return "uint8"
	case SampleInt8:
		return "int8"
	case SampleUint16:
		return "uint16"
	case SampleInt16:
		return "int16"
	case SampleUint32:
		return "uint32"
	case SampleInt32:
		return "int32"
	default:
		return fmt.Sprintf("SampleType(%d)", int(t))
	}
}

// ParseSampleType maps a type name ("uint8", "uint16", ...) to its SampleType.
func ParseSampleType(s string) (SampleType, error) {
	for t := SampleUint8; t <= SampleInt32; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("ntimage: unknown sample type %q", s)
}

// Attribute is a named auxiliary value attached to a frame.
type Attribute struct {
	Name       string      `msgpack:"name" json:"name"`
	Value      interface{} `msgpack:"value" json:"value"`
	Descriptor string      `msgpack:"descriptor,omitempty" json:"descriptor,omitempty"`
}

// RawFrame is a delivered image record, typed and validated.
//
// IMMUTABILITY CONTRACT:
//   - Publisher: MUST NOT modify Data after Publish
//   - Decode: reads Data, never writes it
type RawFrame struct {
	// Data holds the samples, little-endian, in the order described by Shape.
	Data []byte

	// Type is the sample type of Data.
	Type SampleType

	// Shape lists the dimension sizes (2 or 3 entries).
	Shape []int

	// ColorMode selects the axis interpretation of Shape.
	ColorMode ColorMode

	// Attributes carries the remaining record attributes, untouched.
	Attributes []Attribute

	// UniqueID is the producer's frame counter.
	UniqueID int64

	// Timestamp is the producer's acquisition time.
	Timestamp time.Time

	// TraceID correlates log lines for one frame across components.
	TraceID string
}

// PixelFormat describes the bytes of a normalized frame or bitmap.
type PixelFormat int

const (
	// Indexed8 is one 8-bit index per pixel, colored through a lookup table.
	Indexed8 PixelFormat = iota
	// Gray8 is one 8-bit luminance per pixel (indexed data without a table).
	Gray8
	// RGB888 is three interleaved 8-bit channels per pixel.
	RGB888
)

func (f PixelFormat) String() string {
	switch f {
	case Indexed8:
		return "Indexed8"
	case Gray8:
		return "Gray8"
	case RGB888:
		return "RGB888"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Frame is a reshaped, not yet normalized frame in canonical layout:
// row-major, channel-interleaved, Width*Height*Channels samples of Type.
// It is what a FrameProcessor receives and returns.
type Frame struct {
	Width      int
	Height     int
	Channels   int
	Type       SampleType
	Data       []byte
	ColorMode  ColorMode
	Attributes []Attribute
}

// Len returns the number of samples the frame's geometry calls for.
func (f *Frame) Len() int {
	return f.Width * f.Height * f.Channels
}

// Sample returns sample i widened to int64.
func (f *Frame) Sample(i int) int64 {
	return readSample(f.Data, f.Type, i)
}

// SetSample stores v (truncated to the sample type) at index i.
func (f *Frame) SetSample(i int, v int64) {
	writeSample(f.Data, f.Type, i, v)
}

// Clone returns a deep copy of the frame's pixel data with shared attributes.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// NormalizedFrame is the 8-bit canonical frame.
// Invariant: len(Pix) == Width*Height*Channels.
type NormalizedFrame struct {
	Width    int
	Height   int
	Channels int
	Format   PixelFormat
	Pix      []byte
}

// Viewport is the display area a bitmap is fitted into.
// A zero viewport means "not laid out yet": bitmaps keep their native size.
type Viewport struct {
	Width  int
	Height int
}

// Empty reports whether the viewport has no area.
func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

// Bitmap is a decoded frame ready for display.
// Owned by the display surface once handed over; never mutated afterwards.
type Bitmap struct {
	// Generation identifies the delivered frame this bitmap was decoded from.
	Generation uint64

	// Width and Height are the canonical frame dimensions (before scaling).
	Width  int
	Height int

	// Format is the pixel format of Pix.
	Format PixelFormat

	// Pix is the normalized frame, after lookup-table application.
	Pix []byte

	// Image is Pix fitted to the viewport (*image.Gray or *image.RGBA).
	Image image.Image

	TraceID        string
	DecodedAt      time.Time
	DecodeDuration time.Duration
}
