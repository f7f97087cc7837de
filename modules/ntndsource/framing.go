package ntndsource

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

// MaxRecordSize bounds a single framed record (length prefix value).
const MaxRecordSize = 256 << 20

var (
	ErrRecordTooLarge = errors.New("ntndsource: record exceeds maximum size")
	ErrTruncated      = errors.New("ntndsource: truncated record")
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Writer frames records as a 4-byte big-endian length prefix followed by the
// msgpack encoding of the record, optionally inside a zstd stream.
type Writer struct {
	w   io.Writer
	enc *zstd.Encoder

	prefix [4]byte
	count  uint64
	bytes  uint64
}

// NewWriter wraps w. When compress is set the framed stream is zstd
// compressed; Close must then be called to flush the zstd trailer.
func NewWriter(w io.Writer, compress bool) (*Writer, error) {
	fw := &Writer{w: w}
	if compress {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("ntndsource: zstd encoder: %w", err)
		}
		fw.enc = enc
		fw.w = enc
	}
	return fw, nil
}

// Write appends one record.
func (fw *Writer) Write(rec *ntimage.Record) error {
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ntndsource: marshal record: %w", err)
	}
	if len(payload) > MaxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(payload))
	}

	binary.BigEndian.PutUint32(fw.prefix[:], uint32(len(payload)))
	if _, err := fw.w.Write(fw.prefix[:]); err != nil {
		return fmt.Errorf("ntndsource: write length prefix: %w", err)
	}
	if _, err := fw.w.Write(payload); err != nil {
		return fmt.Errorf("ntndsource: write record: %w", err)
	}

	fw.count++
	fw.bytes += uint64(len(payload)) + 4
	return nil
}

// Count returns the number of records written.
func (fw *Writer) Count() uint64 { return fw.count }

// Bytes returns the number of uncompressed bytes written.
func (fw *Writer) Bytes() uint64 { return fw.bytes }

// Close flushes the compressor, if any. The underlying writer is left open.
func (fw *Writer) Close() error {
	if fw.enc == nil {
		return nil
	}
	return fw.enc.Close()
}

// Reader reads records framed by Writer. Compressed input is detected from
// the zstd magic number.
type Reader struct {
	r      io.Reader
	dec    *zstd.Decoder
	closer io.Closer

	prefix     [4]byte
	compressed bool
}

// NewReader wraps r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	fr := &Reader{r: br}

	head, err := br.Peek(len(zstdMagic))
	if err == nil && bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("ntndsource: zstd decoder: %w", err)
		}
		fr.dec = dec
		fr.r = dec
		fr.compressed = true
	}
	return fr, nil
}

// Open opens a recording file. The returned Reader owns the file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fr, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	fr.closer = f
	return fr, nil
}

// Compressed reports whether the stream is zstd compressed.
func (fr *Reader) Compressed() bool { return fr.compressed }

// Read returns the next record. io.EOF is returned at a clean end of stream;
// a stream ending inside a record yields ErrTruncated.
func (fr *Reader) Read() (*ntimage.Record, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: length prefix: %v", ErrTruncated, err)
	}

	n := binary.BigEndian.Uint32(fr.prefix[:])
	if n > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, fmt.Errorf("%w: expected %d bytes: %v", ErrTruncated, n, err)
	}

	var rec ntimage.Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("ntndsource: unmarshal record: %w", err)
	}
	return &rec, nil
}

// Close releases the decompressor and the file opened by Open.
func (fr *Reader) Close() error {
	if fr.dec != nil {
		fr.dec.Close()
	}
	if fr.closer != nil {
		return fr.closer.Close()
	}
	return nil
}
