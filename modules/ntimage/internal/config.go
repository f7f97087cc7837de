package internal

import (
	"fmt"

	"github.com/slaclab/pydm-pva-widgets/modules/colormap"
)

// Config configures a widget. The zero value is usable: every field has a
// default applied by Validate.
type Config struct {
	// MaxRedrawRate bounds decode launches per second. The zero value means
	// unset and selects 30 Hz; negative values are rejected. Callers that
	// distinguish an explicit 0 (YAML, SetMaxRedrawRate) reject it themselves.
	MaxRedrawRate int

	// ColorMap names the initial color map (default "Monochrome").
	ColorMap string

	// ColorMaps is the fixed set of selectable maps (default colormap.Default()).
	ColorMaps *colormap.Registry

	// Processor runs on every frame before normalization (default Identity).
	Processor FrameProcessor

	Normalization Normalization

	// SampleBits is the significant bit depth of integer samples, e.g. 12 for
	// 12-bit data stored in 16-bit containers. 0 uses the container width.
	SampleBits int

	Scaler Scaler

	// RejectUnsupported parks a frame whose color mode is unsupported instead
	// of retrying it on every tick until a newer frame arrives.
	RejectUnsupported bool

	// RedrawOnResize re-decodes the current frame when the viewport changes.
	RedrawOnResize bool

	// Viewport is the initial viewport; zero means native size.
	Viewport Viewport

	// OnBitmapReady and OnEvent are called on the presentation context.
	// They must return quickly and must not call Stop.
	OnBitmapReady func(*Bitmap)
	OnEvent       func(Event)
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.MaxRedrawRate == 0 {
		c.MaxRedrawRate = DefaultMaxRedrawRate
	}
	if c.MaxRedrawRate < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRedrawRate, c.MaxRedrawRate)
	}

	if c.ColorMaps == nil {
		c.ColorMaps = colormap.Default()
	}
	if c.ColorMap == "" {
		c.ColorMap = colormap.DefaultName
	}
	if !c.ColorMaps.Has(c.ColorMap) {
		return fmt.Errorf("%w: %q", ErrUnknownColorMap, c.ColorMap)
	}

	if c.Processor == nil {
		c.Processor = Identity
	}

	switch c.Normalization {
	case FullScale, AutoRange:
	default:
		return fmt.Errorf("%w: normalization %d", ErrInvalidConfig, int(c.Normalization))
	}
	if c.SampleBits < 0 || c.SampleBits > 32 {
		return fmt.Errorf("%w: sample bits must be in 0..32, got %d", ErrInvalidConfig, c.SampleBits)
	}
	if c.Scaler < ScaleNearest || c.Scaler > ScaleCatmullRom {
		return fmt.Errorf("%w: scaler %d", ErrInvalidConfig, int(c.Scaler))
	}
	if c.Viewport.Width < 0 || c.Viewport.Height < 0 {
		return fmt.Errorf("%w: negative viewport %dx%d", ErrInvalidConfig, c.Viewport.Width, c.Viewport.Height)
	}
	return nil
}
