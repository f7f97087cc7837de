package internal

import (
	"fmt"
)

// FrameProcessor transforms a reshaped frame before normalization.
//
// Contract:
//   - Runs on the decode worker, never on the presentation context
//   - MUST return a frame with the same Width, Height, Channels and Type
//   - MUST NOT write into in.Data (it may alias the delivered buffer);
//     allocate a new buffer or use in.Clone()
//
// Violations fail the decode with ErrProcessorContract; no bitmap is produced.
type FrameProcessor interface {
	Process(in *Frame) (*Frame, error)
}

// ProcessorFunc adapts a plain function to FrameProcessor.
type ProcessorFunc func(in *Frame) (*Frame, error)

// Process calls f(in).
func (f ProcessorFunc) Process(in *Frame) (*Frame, error) {
	return f(in)
}

// Identity returns its input unchanged.
var Identity FrameProcessor = ProcessorFunc(func(in *Frame) (*Frame, error) {
	return in, nil
})

// runProcessor invokes p and checks the result against the input geometry.
// A panicking processor is reported as a contract violation.
func runProcessor(p FrameProcessor, in *Frame) (out *Frame, err error) {
	if p == nil {
		return in, nil
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: processor panicked: %v", ErrProcessorContract, r)
		}
	}()

	out, err = p.Process(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorContract, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: processor returned no frame", ErrProcessorContract)
	}
	if out.Width != in.Width || out.Height != in.Height || out.Channels != in.Channels {
		return nil, fmt.Errorf("%w: geometry changed from %dx%dx%d to %dx%dx%d",
			ErrProcessorContract, in.Width, in.Height, in.Channels, out.Width, out.Height, out.Channels)
	}
	if out.Type != in.Type {
		return nil, fmt.Errorf("%w: sample type changed from %s to %s", ErrProcessorContract, in.Type, out.Type)
	}
	if len(out.Data) != out.Len()*out.Type.Size() {
		return nil, fmt.Errorf("%w: buffer has %d bytes, geometry needs %d",
			ErrProcessorContract, len(out.Data), out.Len()*out.Type.Size())
	}
	return out, nil
}
