package gstsource

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

// Raw video formats the source accepts (GStreamer caps "format" field).
const (
	FormatGray8    = "GRAY8"
	FormatGray16LE = "GRAY16_LE"
	FormatRGB      = "RGB"
)

// ErrUnsupportedFormat is returned for caps the widget has no color mode for.
var ErrUnsupportedFormat = errors.New("gstsource: unsupported video format")

// RecordFromSample converts one raw video buffer into an image record.
//
//	GRAY8     → Mono, uint8,  shape [w, h]
//	GRAY16_LE → Mono, uint16, shape [w, h]
//	RGB       → RGB1, uint8,  shape [3, w, h]
//
// Rows padded to a 4-byte stride are compacted. data is copied.
func RecordFromSample(format string, width, height int, data []byte) (*ntimage.Record, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("gstsource: invalid size %dx%d", width, height)
	}

	var bpp int
	switch format {
	case FormatGray8:
		bpp = 1
	case FormatGray16LE:
		bpp = 2
	case FormatRGB:
		bpp = 3
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	pix, err := compactRows(data, width*bpp, height)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatGray8:
		return ntimage.NewRecord(pix, []int{width, height}, ntimage.ColorModeMono)
	case FormatGray16LE:
		samples := make([]uint16, width*height)
		for i := range samples {
			samples[i] = binary.LittleEndian.Uint16(pix[2*i:])
		}
		return ntimage.NewRecord(samples, []int{width, height}, ntimage.ColorModeMono)
	default:
		return ntimage.NewRecord(pix, []int{3, width, height}, ntimage.ColorModeRGB1)
	}
}

// compactRows returns a fresh tightly packed copy of data whose rows are
// rowBytes long, possibly followed by padding up to a multiple of 4.
func compactRows(data []byte, rowBytes, height int) ([]byte, error) {
	packed := rowBytes * height
	stride := (rowBytes + 3) &^ 3

	switch len(data) {
	case packed:
		out := make([]byte, packed)
		copy(out, data)
		return out, nil
	case stride * height:
		out := make([]byte, packed)
		for y := 0; y < height; y++ {
			copy(out[y*rowBytes:(y+1)*rowBytes], data[y*stride:])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: buffer of %d bytes for %d rows of %d bytes",
			ntimage.ErrMalformedFrame, len(data), height, rowBytes)
	}
}
