package internal

import (
	"errors"
)

var (
	ErrUnsupportedColorMode = errors.New("ntimage: unsupported color mode")
	ErrMalformedFrame       = errors.New("ntimage: malformed frame")
	ErrDegenerateRange      = errors.New("ntimage: degenerate sample range")
	ErrProcessorContract    = errors.New("ntimage: frame processor contract violation")
	ErrNoFrame              = errors.New("ntimage: no frame to decode")
	ErrStaleTrigger         = errors.New("ntimage: decode triggered without pending frame")
	ErrNotMono              = errors.New("ntimage: lookup table requires a single-channel frame")
	ErrInvalidRedrawRate    = errors.New("ntimage: max redraw rate must be > 0")
	ErrUnknownColorMap      = errors.New("ntimage: unknown color map")
	ErrAlreadyStarted       = errors.New("ntimage: widget already started")
	ErrInvalidConfig        = errors.New("ntimage: invalid configuration")
)

// FailureKind classifies decode failures for telemetry.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureUnsupportedMode
	FailureMalformed
	FailureProcessor
	FailureNoFrame
	FailureStale
	FailureUnknown
)

// String returns the telemetry label of the failure kind
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureUnsupportedMode:
		return "unsupported_color_mode"
	case FailureMalformed:
		return "malformed_frame"
	case FailureProcessor:
		return "processor"
	case FailureNoFrame:
		return "no_frame"
	case FailureStale:
		return "stale_trigger"
	default:
		return "unknown"
	}
}

// ClassifyFailure maps a decode error to its FailureKind.
//
// Priority follows specificity: the processor wraps whatever it returns, so
// it is checked before the generic malformed-frame class.
func ClassifyFailure(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrProcessorContract):
		return FailureProcessor
	case errors.Is(err, ErrUnsupportedColorMode):
		return FailureUnsupportedMode
	case errors.Is(err, ErrMalformedFrame):
		return FailureMalformed
	case errors.Is(err, ErrNoFrame):
		return FailureNoFrame
	case errors.Is(err, ErrStaleTrigger):
		return FailureStale
	default:
		return FailureUnknown
	}
}
