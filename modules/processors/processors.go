// Package processors provides stock FrameProcessors for the image widget,
// built on github.com/disintegration/gift.
//
// Processors work on Uint8 and Uint16 frames, mono or RGB, and always return
// a frame with the geometry and sample type of their input. Other sample
// types are reported as ErrUnsupportedFrame.
package processors

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sort"

	"github.com/disintegration/gift"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

// ErrUnsupportedFrame is returned for sample types gift cannot represent.
var ErrUnsupportedFrame = errors.New("processors: unsupported frame")

// Filter wraps a gift filter list as a FrameProcessor.
type Filter struct {
	name string
	g    *gift.GIFT
}

// NewFilter returns a processor applying filters in order.
func NewFilter(name string, filters ...gift.Filter) *Filter {
	g := gift.New(filters...)
	g.SetParallelization(false)
	return &Filter{name: name, g: g}
}

func (f *Filter) String() string { return f.name }

// Process implements ntimage.FrameProcessor.
func (f *Filter) Process(in *ntimage.Frame) (*ntimage.Frame, error) {
	src, err := toImage(in)
	if err != nil {
		return nil, err
	}

	bounds := f.g.Bounds(src.Bounds())
	if bounds.Dx() != in.Width || bounds.Dy() != in.Height {
		return nil, fmt.Errorf("processors: %s changes size %dx%d to %dx%d",
			f.name, in.Width, in.Height, bounds.Dx(), bounds.Dy())
	}

	dst := newLike(src, bounds)
	f.g.Draw(dst, src)
	return fromImage(dst, in), nil
}

func FlipHorizontal() *Filter {
	return NewFilter("flip_horizontal", gift.FlipHorizontal())
}

func FlipVertical() *Filter {
	return NewFilter("flip_vertical", gift.FlipVertical())
}

// GaussianBlur blurs with the given standard deviation in pixels.
func GaussianBlur(sigma float32) *Filter {
	return NewFilter(fmt.Sprintf("gaussian_blur(%g)", sigma), gift.GaussianBlur(sigma))
}

// Median replaces each pixel with the median of a size×size square.
// size should be odd.
func Median(size int) *Filter {
	return NewFilter(fmt.Sprintf("median(%d)", size), gift.Median(size, false))
}

// Chain runs processors in order, feeding each one the previous output.
func Chain(ps ...ntimage.FrameProcessor) ntimage.FrameProcessor {
	if len(ps) == 0 {
		return ntimage.Identity
	}
	if len(ps) == 1 {
		return ps[0]
	}
	return ntimage.ProcessorFunc(func(f *ntimage.Frame) (*ntimage.Frame, error) {
		var err error
		for _, p := range ps {
			if f, err = p.Process(f); err != nil {
				return nil, err
			}
		}
		return f, nil
	})
}

type factory func(params map[string]float64) (ntimage.FrameProcessor, error)

var factories = map[string]factory{
	"identity": func(map[string]float64) (ntimage.FrameProcessor, error) {
		return ntimage.Identity, nil
	},
	"flip_horizontal": func(map[string]float64) (ntimage.FrameProcessor, error) {
		return FlipHorizontal(), nil
	},
	"flip_vertical": func(map[string]float64) (ntimage.FrameProcessor, error) {
		return FlipVertical(), nil
	},
	"gaussian_blur": func(p map[string]float64) (ntimage.FrameProcessor, error) {
		sigma := param(p, "sigma", 1)
		if sigma <= 0 {
			return nil, fmt.Errorf("processors: gaussian_blur sigma must be > 0, got %v", sigma)
		}
		return GaussianBlur(float32(sigma)), nil
	},
	"median": func(p map[string]float64) (ntimage.FrameProcessor, error) {
		size := int(param(p, "size", 3))
		if size < 1 || size%2 == 0 {
			return nil, fmt.Errorf("processors: median size must be odd and positive, got %d", size)
		}
		return Median(size), nil
	},
}

func param(p map[string]float64, key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// ByName builds a processor from its configuration name and parameters.
func ByName(name string, params map[string]float64) (ntimage.FrameProcessor, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("processors: unknown processor %q (known: %v)", name, Names())
	}
	return f(params)
}

// Names lists the processors ByName knows, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// toImage views a frame as an image gift can read. 16-bit samples are
// converted to the big-endian layout of the image package.
func toImage(f *ntimage.Frame) (image.Image, error) {
	rect := image.Rect(0, 0, f.Width, f.Height)
	n := f.Width * f.Height

	switch {
	case f.Channels == 1 && f.Type == ntimage.SampleUint8:
		return &image.Gray{Pix: f.Data, Stride: f.Width, Rect: rect}, nil

	case f.Channels == 1 && f.Type == ntimage.SampleUint16:
		img := image.NewGray16(rect)
		for i := 0; i < n; i++ {
			img.Pix[2*i], img.Pix[2*i+1] = f.Data[2*i+1], f.Data[2*i]
		}
		return img, nil

	case f.Channels == 3 && f.Type == ntimage.SampleUint8:
		img := image.NewNRGBA(rect)
		for i := 0; i < n; i++ {
			copy(img.Pix[4*i:4*i+3], f.Data[3*i:3*i+3])
			img.Pix[4*i+3] = 0xff
		}
		return img, nil

	case f.Channels == 3 && f.Type == ntimage.SampleUint16:
		img := image.NewNRGBA64(rect)
		for i := 0; i < n; i++ {
			for c := 0; c < 3; c++ {
				s := 2 * (3*i + c)
				img.Pix[8*i+2*c], img.Pix[8*i+2*c+1] = f.Data[s+1], f.Data[s]
			}
			img.Pix[8*i+6], img.Pix[8*i+7] = 0xff, 0xff
		}
		return img, nil
	}

	return nil, fmt.Errorf("%w: %d channel(s) of %v", ErrUnsupportedFrame, f.Channels, f.Type)
}

func newLike(src image.Image, r image.Rectangle) draw.Image {
	switch src.(type) {
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	case *image.NRGBA:
		return image.NewNRGBA(r)
	default:
		return image.NewNRGBA64(r)
	}
}

// fromImage copies img back into a frame shaped like ref.
func fromImage(img image.Image, ref *ntimage.Frame) *ntimage.Frame {
	out := *ref
	out.Data = make([]byte, len(ref.Data))
	n := ref.Width * ref.Height

	switch im := img.(type) {
	case *image.Gray:
		copy(out.Data, im.Pix)
	case *image.Gray16:
		for i := 0; i < n; i++ {
			out.Data[2*i], out.Data[2*i+1] = im.Pix[2*i+1], im.Pix[2*i]
		}
	case *image.NRGBA:
		for i := 0; i < n; i++ {
			copy(out.Data[3*i:3*i+3], im.Pix[4*i:4*i+3])
		}
	case *image.NRGBA64:
		for i := 0; i < n; i++ {
			for c := 0; c < 3; c++ {
				d := 2 * (3*i + c)
				out.Data[d], out.Data[d+1] = im.Pix[8*i+2*c+1], im.Pix[8*i+2*c]
			}
		}
	}
	return &out
}
