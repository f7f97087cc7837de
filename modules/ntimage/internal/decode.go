package internal

import (
	"fmt"
	"time"
)

// decodeJob is the snapshot a decode task works on. Everything it needs is
// copied in at launch so the worker never touches presentation state.
type decodeJob struct {
	generation uint64
	frame      *RawFrame
	dirty      bool

	table         ColorTable
	viewport      Viewport
	processor     FrameProcessor
	normalization Normalization
	sampleBits    int
	scaler        Scaler
}

// decodeResult is posted back to the presentation context.
type decodeResult struct {
	generation uint64
	traceID    string
	bitmap     *Bitmap
	err        error
	degenerate bool
	duration   time.Duration
}

// runDecode turns the job's raw frame into a bitmap.
//
// Steps:
//  1. reject absent frame (ErrNoFrame) or trigger without pending work (ErrStaleTrigger)
//  2. resolve layout from color mode and shape
//  3. reshape buffer into canonical row-major layout
//  4. run the frame processor
//  5. normalize samples to 8 bits
//  6. apply the color table to Indexed8 frames (Gray8 when there is none)
//  7. wrap as image and fit to the viewport
//
// Any failure returns a result with err set and no bitmap.
func runDecode(job decodeJob) decodeResult {
	start := time.Now()
	res := decodeResult{generation: job.generation}
	if job.frame != nil {
		res.traceID = job.frame.TraceID
	}

	b, degenerate, err := decode(job)
	res.duration = time.Since(start)
	res.degenerate = degenerate
	if err != nil {
		res.err = err
		return res
	}

	b.DecodeDuration = res.duration
	res.bitmap = b
	return res
}

// runDecodeSafe is runDecode with panics turned into a failed result, so a
// bad frame cannot take down the decode worker.
func runDecodeSafe(job decodeJob) (res decodeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = decodeResult{generation: job.generation}
			if job.frame != nil {
				res.traceID = job.frame.TraceID
			}
			res.err = fmt.Errorf("ntimage: decode panicked: %v", r)
		}
	}()
	return runDecode(job)
}

func decode(job decodeJob) (*Bitmap, bool, error) {
	raw := job.frame
	if raw == nil {
		return nil, false, ErrNoFrame
	}
	if !job.dirty {
		return nil, false, fmt.Errorf("%w: generation %d", ErrStaleTrigger, job.generation)
	}

	layout, err := Resolve(raw.ColorMode, raw.Shape)
	if err != nil {
		return nil, false, err
	}

	frame, err := Reshape(raw, layout)
	if err != nil {
		return nil, false, err
	}

	frame, err = runProcessor(job.processor, frame)
	if err != nil {
		return nil, false, err
	}

	pix, degenerate := Normalize(frame.Data, frame.Type, job.sampleBits, job.normalization)
	norm := &NormalizedFrame{
		Width:    frame.Width,
		Height:   frame.Height,
		Channels: frame.Channels,
		Format:   layout.Format,
		Pix:      pix,
	}

	if norm.Format == Indexed8 {
		if len(job.table) > 0 {
			norm, err = job.table.Apply(norm)
			if err != nil {
				return nil, degenerate, err
			}
		} else {
			norm.Format = Gray8
		}
	}

	img := scaleToViewport(toImage(norm), job.viewport, job.scaler)

	return &Bitmap{
		Generation: job.generation,
		Width:      norm.Width,
		Height:     norm.Height,
		Format:     norm.Format,
		Pix:        norm.Pix,
		Image:      img,
		TraceID:    raw.TraceID,
		DecodedAt:  time.Now(),
	}, degenerate, nil
}
