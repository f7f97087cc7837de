package ntndsource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

func testRecord(t *testing.T, id int64) *ntimage.Record {
	t.Helper()
	rec, err := ntimage.NewRecord([]uint16{0, 1000, 2000, 65535, 7, 8}, []int{3, 2}, ntimage.ColorModeMono)
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	rec.UniqueID = id
	rec.TraceID = "trace"
	rec.Attribute = append(rec.Attribute, ntimage.Attribute{Name: "Gain", Value: 2.5})
	return rec
}

func TestFramingRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, compress)
		if err != nil {
			t.Fatalf("NewWriter(%v) failed: %v", compress, err)
		}
		for id := int64(1); id <= 3; id++ {
			if err := w.Write(testRecord(t, id)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		t.Logf("compress=%v: %d records, %d raw bytes, %d on the wire", compress, w.Count(), w.Bytes(), buf.Len())

		r, err := NewReader(&buf)
		if err != nil {
			t.Fatalf("NewReader failed: %v", err)
		}
		if r.Compressed() != compress {
			t.Errorf("Compressed() = %v, want %v", r.Compressed(), compress)
		}

		for id := int64(1); id <= 3; id++ {
			rec, err := r.Read()
			if err != nil {
				t.Fatalf("Read %d failed: %v", id, err)
			}
			if rec.UniqueID != id || rec.TraceID != "trace" {
				t.Errorf("record %d: id %d trace %q", id, rec.UniqueID, rec.TraceID)
			}

			raw, err := ntimage.FrameFromRecord(rec)
			if err != nil {
				t.Fatalf("decoded record rejected: %v", err)
			}
			if raw.ColorMode != ntimage.ColorModeMono || raw.Type != ntimage.SampleUint16 {
				t.Errorf("mode %v type %v", raw.ColorMode, raw.Type)
			}
			if len(raw.Shape) != 2 || raw.Shape[0] != 3 || raw.Shape[1] != 2 {
				t.Errorf("shape %v", raw.Shape)
			}
			if len(raw.Attributes) != 1 || raw.Attributes[0].Name != "Gain" {
				t.Errorf("attributes %v", raw.Attributes)
			}
		}

		if _, err := r.Read(); err != io.EOF {
			t.Errorf("Read at end = %v, want io.EOF", err)
		}
		r.Close()
	}
}

func TestReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, false)
	if err := w.Write(testRecord(t, 1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"inside prefix", buf.Bytes()[:2]},
		{"inside payload", buf.Bytes()[:buf.Len()-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := NewReader(bytes.NewReader(tt.data))
			if _, err := r.Read(); !errors.Is(err, ErrTruncated) {
				t.Errorf("err = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestReaderRejectsOversizedRecord(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxRecordSize+1)

	r, _ := NewReader(bytes.NewReader(prefix[:]))
	if _, err := r.Read(); !errors.Is(err, ErrRecordTooLarge) {
		t.Errorf("err = %v, want ErrRecordTooLarge", err)
	}
}
