package internal

import (
	"fmt"
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Scaler selects the interpolation used to fit bitmaps to the viewport.
type Scaler int

const (
	ScaleNearest Scaler = iota
	ScaleApproxBiLinear
	ScaleBiLinear
	ScaleCatmullRom
)

func (s Scaler) String() string {
	switch s {
	case ScaleNearest:
		return "nearest"
	case ScaleApproxBiLinear:
		return "approx_bilinear"
	case ScaleBiLinear:
		return "bilinear"
	case ScaleCatmullRom:
		return "catmull_rom"
	default:
		return fmt.Sprintf("Scaler(%d)", int(s))
	}
}

// ParseScaler maps a scaler name to a Scaler; "" selects nearest.
func ParseScaler(s string) (Scaler, error) {
	switch s {
	case "", "nearest":
		return ScaleNearest, nil
	case "approx_bilinear":
		return ScaleApproxBiLinear, nil
	case "bilinear":
		return ScaleBiLinear, nil
	case "catmull_rom":
		return ScaleCatmullRom, nil
	default:
		return 0, fmt.Errorf("%w: unknown scaler %q", ErrInvalidConfig, s)
	}
}

func (s Scaler) interpolator() xdraw.Interpolator {
	switch s {
	case ScaleApproxBiLinear:
		return xdraw.ApproxBiLinear
	case ScaleBiLinear:
		return xdraw.BiLinear
	case ScaleCatmullRom:
		return xdraw.CatmullRom
	default:
		return xdraw.NearestNeighbor
	}
}

// FitAspect returns the largest w×h size that fits the viewport while keeping
// the source aspect ratio.
func FitAspect(srcW, srcH int, vp Viewport) (int, int) {
	if srcW <= 0 || srcH <= 0 || vp.Empty() {
		return srcW, srcH
	}

	// Try full viewport height first; fall back to full width.
	w := int(int64(vp.Height) * int64(srcW) / int64(srcH))
	if w <= vp.Width {
		if w < 1 {
			w = 1
		}
		return w, vp.Height
	}
	h := int(int64(vp.Width) * int64(srcH) / int64(srcW))
	if h < 1 {
		h = 1
	}
	return vp.Width, h
}

// toImage wraps a normalized frame in an image without copying when possible.
func toImage(f *NormalizedFrame) image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Channels == 1 {
		return &image.Gray{Pix: f.Pix, Stride: f.Width, Rect: rect}
	}

	img := image.NewRGBA(rect)
	for i, o := 0, 0; i+2 < len(f.Pix); i, o = i+3, o+4 {
		img.Pix[o] = f.Pix[i]
		img.Pix[o+1] = f.Pix[i+1]
		img.Pix[o+2] = f.Pix[i+2]
		img.Pix[o+3] = 0xff
	}
	return img
}

// scaleToViewport resizes img to fit vp, keeping aspect ratio. The image is
// returned unchanged when the viewport is empty or matches the frame size.
func scaleToViewport(img image.Image, vp Viewport, s Scaler) image.Image {
	b := img.Bounds()
	if vp.Empty() || (vp.Width == b.Dx() && vp.Height == b.Dy()) {
		return img
	}

	w, h := FitAspect(b.Dx(), b.Dy(), vp)
	if w == b.Dx() && h == b.Dy() {
		return img
	}

	rect := image.Rect(0, 0, w, h)
	var dst draw.Image
	if _, gray := img.(*image.Gray); gray {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	s.interpolator().Scale(dst, rect, img, b, draw.Src, nil)
	return dst
}
