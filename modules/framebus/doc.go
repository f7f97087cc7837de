// Package framebus provides non-blocking fan-out of decoded bitmaps (or any
// other item type) to multiple observers.
//
// # Core Philosophy
//
//	"Drop frames, never queue. Latency > Completeness."
//
// The publisher is the presentation loop of an image widget: it must never
// wait on a slow observer. Two subscriber policies exist:
//   - DropNew: channel-based; a full channel drops the incoming item
//   - DropOld: latest-only holder; an unread item is replaced by the new one
//
// # Basic Usage
//
//	bus := framebus.New[*ntimage.Bitmap]()
//	defer bus.Close()
//
//	ch := make(chan *ntimage.Bitmap, 4)
//	bus.Subscribe("snapshot", ch)
//
//	latest, _ := bus.SubscribeDropOld("viewer")
//	go func() {
//	    for {
//	        b, ok := latest.Receive()
//	        if !ok {
//	            return
//	        }
//	        show(b)
//	    }
//	}()
//
//	bus.Publish(bitmap) // returns immediately
//
// # Observability
//
//	stats := bus.Stats()
//	rate := framebus.CalculateDropRate(stats)
//
// A Monitor polls Stats and reports subscribers whose drop rate crosses a
// threshold.
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package framebus
