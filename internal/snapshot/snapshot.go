// Package snapshot writes displayed bitmaps to disk.
package snapshot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/slaclab/pydm-pva-widgets/internal/config"
	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

// ErrUnknownFormat is returned for formats other than png, bmp and tiff.
var ErrUnknownFormat = errors.New("snapshot: unknown format")

type encodeFunc func(io.Writer, image.Image) error

var encoders = map[string]encodeFunc{
	"png": png.Encode,
	"bmp": bmp.Encode,
	"tiff": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
}

// Writer saves every Nth bitmap it is handed.
type Writer struct {
	dir    string
	format string
	every  uint64
	encode encodeFunc

	mu      sync.Mutex
	seen    uint64
	written uint64
	errors  uint64
	last    string
}

// New creates the snapshot directory and returns a Writer for cfg.
func New(cfg config.SnapshotConfig) (*Writer, error) {
	format := cfg.Format
	if format == "" {
		format = "png"
	}
	enc, ok := encoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	every := cfg.Every
	if every <= 0 {
		every = 1
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}

	return &Writer{
		dir:    cfg.Dir,
		format: format,
		every:  uint64(every),
		encode: enc,
	}, nil
}

// Handle counts b and writes it when it is the Nth since the last write.
// It returns the written path, or "" when b was skipped.
func (w *Writer) Handle(b *ntimage.Bitmap) (string, error) {
	if b == nil || b.Image == nil {
		return "", nil
	}

	w.mu.Lock()
	w.seen++
	take := (w.seen-1)%w.every == 0
	w.mu.Unlock()
	if !take {
		return "", nil
	}

	path := filepath.Join(w.dir, w.fileName(b))
	if err := w.write(path, b.Image); err != nil {
		w.mu.Lock()
		w.errors++
		w.mu.Unlock()
		return "", err
	}

	w.mu.Lock()
	w.written++
	w.last = path
	w.mu.Unlock()

	slog.Debug("snapshot: bitmap written", "path", path, "generation", b.Generation)
	return path, nil
}

// Run writes bitmaps received on ch until ctx is done or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan *ntimage.Bitmap) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Handle(b); err != nil {
				slog.Warn("snapshot: write failed", "generation", b.Generation, "error", err)
			}
		}
	}
}

func (w *Writer) fileName(b *ntimage.Bitmap) string {
	if b.TraceID == "" {
		return fmt.Sprintf("frame-%08d.%s", b.Generation, w.format)
	}
	return fmt.Sprintf("frame-%08d-%s.%s", b.Generation, b.TraceID, w.format)
}

func (w *Writer) write(path string, img image.Image) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	bw := bufio.NewWriter(f)
	err = w.encode(bw, img)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: encode %s: %w", w.format, err)
	}
	return os.Rename(tmp, path)
}

// Stats reports snapshot counters.
type Stats struct {
	Seen    uint64
	Written uint64
	Errors  uint64
	Last    string
}

func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{Seen: w.seen, Written: w.written, Errors: w.errors, Last: w.last}
}
