package bus

import "errors"

// Internal errors - mapped to public errors in framebus package
var (
	ErrBusClosed          = errors.New("framebus: bus is closed")
	ErrSubscriberExists   = errors.New("framebus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("framebus: subscriber not found")
	ErrNilChannel         = errors.New("framebus: nil channel provided")
	ErrReceiverClosed     = errors.New("framebus: receiver is closed")
)

// DropPolicy defines how the bus handles items when a subscriber cannot keep up
type DropPolicy int

const (
	// DropNew drops the incoming item when the subscriber's channel is full.
	DropNew DropPolicy = iota
	// DropOld replaces the stored item; the subscriber always sees the latest.
	DropOld
)

func (p DropPolicy) String() string {
	switch p {
	case DropNew:
		return "drop_new"
	case DropOld:
		return "drop_old"
	default:
		return "unknown"
	}
}

// SubscriberStats tracks per-subscriber distribution metrics.
type SubscriberStats struct {
	Policy DropPolicy

	// Sent counts items delivered (DropNew) or stored (DropOld).
	Sent uint64

	// Dropped counts items lost: rejected by a full channel (DropNew) or
	// overwritten before the receiver read them (DropOld).
	Dropped uint64
}

// BusStats is a snapshot of the whole bus.
type BusStats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[string]SubscriberStats
}
