package internal

import (
	"sync"
	"sync/atomic"
)

// displaySurface is the presentation-side state: the viewport and the bitmap
// currently shown. All mutations happen on the presentation context; readers
// (Current, Viewport, DisplayedGeneration) are safe from any goroutine.
type displaySurface struct {
	mu       sync.Mutex
	viewport Viewport

	displayed atomic.Pointer[Bitmap]
	stale     atomic.Uint64
}

func newDisplaySurface(vp Viewport) *displaySurface {
	return &displaySurface{viewport: vp}
}

// Resize sets a square viewport of side min(w, h) and reports whether it
// changed.
func (d *displaySurface) Resize(w, h int) bool {
	side := w
	if h < side {
		side = h
	}
	if side < 0 {
		side = 0
	}

	vp := Viewport{Width: side, Height: side}

	d.mu.Lock()
	defer d.mu.Unlock()
	if vp == d.viewport {
		return false
	}
	d.viewport = vp
	return true
}

// Viewport returns the current viewport.
func (d *displaySurface) Viewport() Viewport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport
}

// Present installs b unless it is older than the displayed bitmap.
// Equal generations are accepted: they are redraws of the same frame after a
// color map or viewport change.
func (d *displaySurface) Present(b *Bitmap) bool {
	if cur := d.displayed.Load(); cur != nil && b.Generation < cur.Generation {
		d.stale.Add(1)
		return false
	}
	d.displayed.Store(b)
	return true
}

// Current returns the displayed bitmap, or nil. Safe from any goroutine.
func (d *displaySurface) Current() *Bitmap {
	return d.displayed.Load()
}

// DisplayedGeneration returns the generation on screen, 0 when none.
func (d *displaySurface) DisplayedGeneration() uint64 {
	if b := d.displayed.Load(); b != nil {
		return b.Generation
	}
	return 0
}
