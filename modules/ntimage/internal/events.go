package internal

import (
	"fmt"
	"time"
)

// EventKind identifies a widget event.
type EventKind int

const (
	EventBitmapReady EventKind = iota
	EventDecodeFailed
	EventOverrun
	EventStaleCompletion
	EventFrameDropped
)

func (k EventKind) String() string {
	switch k {
	case EventBitmapReady:
		return "bitmap_ready"
	case EventDecodeFailed:
		return "decode_failed"
	case EventOverrun:
		return "overrun"
	case EventStaleCompletion:
		return "stale_completion"
	case EventFrameDropped:
		return "frame_dropped"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to Config.OnEvent on the presentation context.
// FrameDropped events are best effort: they are skipped when the
// presentation loop is backed up.
type Event struct {
	Kind       EventKind
	Generation uint64
	TraceID    string
	Failure    FailureKind
	Err        error
	At         time.Time
}

// Stats is a snapshot of widget counters and state.
type Stats struct {
	// FramesReceived counts frames delivered via Publish/Receive.
	FramesReceived uint64

	// FramesDropped counts frames replaced in the slot before any decode
	// picked them up.
	FramesDropped uint64

	// MalformedDropped counts records rejected by Receive.
	MalformedDropped uint64

	DecodesLaunched  uint64
	DecodesSucceeded uint64
	DecodeFailures   map[FailureKind]uint64

	// Overruns counts ticks that found a decode still in flight.
	Overruns uint64

	// CleanTicks counts ticks with nothing to draw.
	CleanTicks uint64

	// StaleCompletions counts bitmaps discarded because a newer generation
	// was already displayed.
	StaleCompletions uint64

	// DegenerateFrames counts frames whose auto range collapsed to one value.
	DegenerateFrames uint64

	DisplayedGeneration uint64
	LatestGeneration    uint64

	State         SchedulerState
	MaxRedrawRate int
	ColorMap      string
	Viewport      Viewport

	LastDecodeDuration time.Duration
	LastBitmapAt       time.Time
}

// TotalFailures sums DecodeFailures.
func (s Stats) TotalFailures() uint64 {
	var n uint64
	for _, v := range s.DecodeFailures {
		n += v
	}
	return n
}
