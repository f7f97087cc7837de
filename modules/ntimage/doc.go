// Package ntimage renders live NTNDArray images.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// Frames arrive at any rate on the delivery side (Publish / Receive) and land
// in a single latest-frame slot. A presentation loop ticks at MaxRedrawRate;
// each tick that finds a new frame and an idle worker launches one decode on
// a pool-of-one worker:
//
//	resolve layout → reshape → FrameProcessor → normalize → color table → scale
//
// The finished bitmap is handed back to the presentation loop, tagged with
// the generation of the frame it came from. Bitmaps older than the one on
// screen are discarded.
//
// Guarantees:
//   - Delivery never blocks and never queues
//   - At most one decode in flight; a tick during a decode is an overrun
//   - Decode failures are local: no bitmap, the frame stays pending
//   - Every presentation-state change happens on the presentation loop
//
// Usage:
//
//	w, err := ntimage.New(ntimage.Config{MaxRedrawRate: 30, ColorMap: "Jet"})
//	if err != nil { ... }
//	w.Start(ctx)
//	defer w.Stop()
//
//	w.Resize(800, 600)
//	w.Receive(record)  // or w.Publish(rawFrame)
//
//	latest, _ := w.Subscribe("viewer")
//	b, _ := latest.Receive()
package ntimage
