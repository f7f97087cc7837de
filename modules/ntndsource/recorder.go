package ntndsource

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

// Recorder appends records to a file. Record is safe for concurrent use and
// matches the sink signature of Source.Start.
type Recorder struct {
	path string

	mu     sync.Mutex
	f      *os.File
	w      *Writer
	errors uint64
	closed bool
}

// Create truncates or creates path and returns a recorder writing to it.
func Create(path string, compress bool) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ntndsource: create recording: %w", err)
	}
	w, err := NewWriter(f, compress)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Recorder{path: path, f: f, w: w}, nil
}

// Record writes rec. Write errors are logged and counted, never returned.
func (r *Recorder) Record(rec *ntimage.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if err := r.w.Write(rec); err != nil {
		r.errors++
		slog.Warn("ntndsource: recording write failed",
			"path", r.path,
			"unique_id", rec.UniqueID,
			"error", err,
		)
	}
}

// Count returns records written and write errors.
func (r *Recorder) Count() (written, failed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Count(), r.errors
}

// Close flushes and closes the file. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	werr := r.w.Close()
	ferr := r.f.Close()
	if werr != nil {
		return werr
	}

	slog.Info("ntndsource: recording closed",
		"path", r.path,
		"records", r.w.Count(),
		"bytes", r.w.Bytes(),
		"errors", r.errors,
	)
	return ferr
}
