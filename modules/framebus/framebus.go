package framebus

import "github.com/slaclab/pydm-pva-widgets/modules/framebus/internal/bus"

// Public API - Re-export internal types as stable contract

// DropPolicy defines how the bus handles items when a subscriber cannot keep up
type DropPolicy = bus.DropPolicy

const (
	// DropNew drops incoming items if the subscriber's channel is full (backpressure)
	DropNew = bus.DropNew
	// DropOld always accepts new items, replacing unread ones (latest-only)
	DropOld = bus.DropOld
)

// Bus distributes items to multiple subscribers with configurable drop policies
type Bus[T any] = bus.Bus[T]

// Receiver provides blocking/non-blocking access for DropOld subscribers
type Receiver[T any] = bus.LatestHolder[T]

// SubscriberStats tracks per-subscriber distribution metrics
type SubscriberStats = bus.SubscriberStats

// BusStats is a snapshot of global and per-subscriber metrics
type BusStats = bus.BusStats

// Public API errors - Re-export internal errors as stable contract
var (
	ErrBusClosed          = bus.ErrBusClosed
	ErrSubscriberExists   = bus.ErrSubscriberExists
	ErrSubscriberNotFound = bus.ErrSubscriberNotFound
	ErrNilChannel         = bus.ErrNilChannel
	ErrReceiverClosed     = bus.ErrReceiverClosed
)

// New creates an empty bus for items of type T.
func New[T any]() *Bus[T] {
	return bus.New[T]()
}
