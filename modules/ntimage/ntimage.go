package ntimage

import (
	"context"

	"github.com/slaclab/pydm-pva-widgets/modules/framebus"
	"github.com/slaclab/pydm-pva-widgets/modules/ntimage/internal"
)

// Types re-exported from the internal package to avoid import cycles.
// See internal/types.go, internal/record.go and internal/events.go.
type (
	ColorMode      = internal.ColorMode
	SampleType     = internal.SampleType
	Attribute      = internal.Attribute
	RawFrame       = internal.RawFrame
	Frame          = internal.Frame
	PixelFormat    = internal.PixelFormat
	Viewport       = internal.Viewport
	Bitmap         = internal.Bitmap
	Record         = internal.Record
	ScalarArray    = internal.ScalarArray
	Dimension      = internal.Dimension
	FrameProcessor = internal.FrameProcessor
	ProcessorFunc  = internal.ProcessorFunc
	Normalization  = internal.Normalization
	Scaler         = internal.Scaler
	Config         = internal.Config
	Stats          = internal.Stats
	Event          = internal.Event
	EventKind      = internal.EventKind
	FailureKind    = internal.FailureKind
	SchedulerState = internal.SchedulerState
)

const (
	ColorModeMono = internal.ColorModeMono
	ColorModeRGB1 = internal.ColorModeRGB1
	ColorModeRGB2 = internal.ColorModeRGB2
	ColorModeRGB3 = internal.ColorModeRGB3

	SampleUint8  = internal.SampleUint8
	SampleInt8   = internal.SampleInt8
	SampleUint16 = internal.SampleUint16
	SampleInt16  = internal.SampleInt16
	SampleUint32 = internal.SampleUint32
	SampleInt32  = internal.SampleInt32

	Indexed8 = internal.Indexed8
	Gray8    = internal.Gray8
	RGB888   = internal.RGB888

	FullScale = internal.FullScale
	AutoRange = internal.AutoRange

	ScaleNearest        = internal.ScaleNearest
	ScaleApproxBiLinear = internal.ScaleApproxBiLinear
	ScaleBiLinear       = internal.ScaleBiLinear
	ScaleCatmullRom     = internal.ScaleCatmullRom

	EventBitmapReady     = internal.EventBitmapReady
	EventDecodeFailed    = internal.EventDecodeFailed
	EventOverrun         = internal.EventOverrun
	EventStaleCompletion = internal.EventStaleCompletion
	EventFrameDropped    = internal.EventFrameDropped

	FailureNone            = internal.FailureNone
	FailureUnsupportedMode = internal.FailureUnsupportedMode
	FailureMalformed       = internal.FailureMalformed
	FailureProcessor       = internal.FailureProcessor
	FailureNoFrame         = internal.FailureNoFrame
	FailureStale           = internal.FailureStale
	FailureUnknown         = internal.FailureUnknown

	StateIdle           = internal.StateIdle
	StateDecodeInFlight = internal.StateDecodeInFlight

	DefaultMaxRedrawRate = internal.DefaultMaxRedrawRate
	MaxFrameSamples      = internal.MaxFrameSamples
)

// Errors re-exported as stable contract.
var (
	ErrUnsupportedColorMode = internal.ErrUnsupportedColorMode
	ErrMalformedFrame       = internal.ErrMalformedFrame
	ErrDegenerateRange      = internal.ErrDegenerateRange
	ErrProcessorContract    = internal.ErrProcessorContract
	ErrNoFrame              = internal.ErrNoFrame
	ErrStaleTrigger         = internal.ErrStaleTrigger
	ErrNotMono              = internal.ErrNotMono
	ErrInvalidRedrawRate    = internal.ErrInvalidRedrawRate
	ErrUnknownColorMap      = internal.ErrUnknownColorMap
	ErrAlreadyStarted       = internal.ErrAlreadyStarted
	ErrInvalidConfig        = internal.ErrInvalidConfig
)

// Identity is the default FrameProcessor.
var Identity = internal.Identity

// Widget is the public interface of the image widget.
//
// Lifecycle: New() → Start() → Publish()/Receive()/Resize()/Set*() → Stop()
type Widget interface {
	// Start spawns the presentation loop and the decode worker.
	// Non-blocking; returns ErrAlreadyStarted on a second call.
	Start(ctx context.Context) error

	// Stop shuts both goroutines down and waits for them. Idempotent.
	// After Stop, Publish and Receive are no-ops.
	Stop() error

	// Publish hands over the latest frame (non-blocking, never queues).
	//
	// Contract: frame.Data MUST NOT be modified after Publish.
	Publish(frame *RawFrame)

	// Receive converts an inbound record and publishes it; malformed
	// records are counted in Stats().MalformedDropped and dropped.
	Receive(rec *Record)

	// Resize reports the display area; the viewport becomes a square of
	// side min(width, height).
	Resize(width, height int)

	// SetColorMap selects a map by name and redraws the current frame.
	SetColorMap(name string) error
	ColorMap() string

	// ColorMaps lists the selectable maps (context menu contribution).
	ColorMaps() []string

	// SetMaxRedrawRate changes the redraw rate in Hz (> 0).
	SetMaxRedrawRate(hz int) error
	MaxRedrawRate() int

	// Bitmap returns the displayed bitmap, or nil before the first one.
	Bitmap() *Bitmap

	// Subscribe returns a latest-bitmap receiver.
	Subscribe(id string) (*framebus.Receiver[*Bitmap], error)

	// SubscribeChan registers a channel for displayed bitmaps; a full
	// channel drops bitmaps.
	SubscribeChan(id string, ch chan<- *Bitmap) error

	Unsubscribe(id string) error

	// BusStats reports per-subscriber bitmap delivery counters.
	BusStats() framebus.BusStats

	Stats() Stats
}

// New validates cfg, applies defaults and returns a stopped widget.
func New(cfg Config) (Widget, error) {
	w, err := internal.NewWidget(cfg)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// FrameFromRecord validates a record and converts it into a RawFrame.
func FrameFromRecord(rec *Record) (*RawFrame, error) {
	return internal.FrameFromRecord(rec)
}

// NewRecord builds a record from typed samples ([]uint8, []int8, []uint16,
// []int16, []uint32 or []int32), a shape and a color mode.
func NewRecord(samples interface{}, shape []int, mode ColorMode) (*Record, error) {
	return internal.NewRecord(samples, shape, mode)
}

// EncodeSamples packs typed samples into the little-endian RawFrame layout.
func EncodeSamples(samples interface{}) ([]byte, SampleType, bool) {
	return internal.EncodeSamples(samples)
}

// ClassifyFailure maps a decode error to its FailureKind.
func ClassifyFailure(err error) FailureKind {
	return internal.ClassifyFailure(err)
}

// FitAspect returns the size of a srcW×srcH image fitted into vp.
func FitAspect(srcW, srcH int, vp Viewport) (int, int) {
	return internal.FitAspect(srcW, srcH, vp)
}

// Parsers for configuration strings.
var (
	ParseColorMode     = internal.ParseColorMode
	ParseSampleType    = internal.ParseSampleType
	ParseNormalization = internal.ParseNormalization
	ParseScaler        = internal.ParseScaler
)
