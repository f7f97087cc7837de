package internal

import (
	"fmt"
	"math"
	"time"
)

// ScalarArray is the typed pixel union of an NTNDArray value.
// Exactly one member is expected to be populated.
type ScalarArray struct {
	UByte  []uint8  `msgpack:"ubyteValue,omitempty"`
	Byte   []int8   `msgpack:"byteValue,omitempty"`
	UShort []uint16 `msgpack:"ushortValue,omitempty"`
	Short  []int16  `msgpack:"shortValue,omitempty"`
	UInt   []uint32 `msgpack:"uintValue,omitempty"`
	Int    []int32  `msgpack:"intValue,omitempty"`
}

// populated returns the single non-empty member, or false when none or more
// than one is set.
func (a *ScalarArray) populated() (interface{}, bool) {
	var found interface{}
	count := 0
	pick := func(n int, v interface{}) {
		if n > 0 {
			found = v
			count++
		}
	}
	pick(len(a.UByte), a.UByte)
	pick(len(a.Byte), a.Byte)
	pick(len(a.UShort), a.UShort)
	pick(len(a.Short), a.Short)
	pick(len(a.UInt), a.UInt)
	pick(len(a.Int), a.Int)
	return found, count == 1
}

// Dimension describes one axis of an NTNDArray.
type Dimension struct {
	Size     int  `msgpack:"size"`
	Offset   int  `msgpack:"offset,omitempty"`
	FullSize int  `msgpack:"fullSize,omitempty"`
	Binning  int  `msgpack:"binning,omitempty"`
	Reverse  bool `msgpack:"reverse,omitempty"`
}

// Record is the inbound image record as delivered by the data channel.
// The first attribute carries the color mode as an integer.
type Record struct {
	Value     ScalarArray `msgpack:"value"`
	Dimension []Dimension `msgpack:"dimension"`
	Attribute []Attribute `msgpack:"attribute"`
	UniqueID  int64       `msgpack:"uniqueId"`
	Timestamp time.Time   `msgpack:"timeStamp"`

	// TraceID is set by local sources; it is not part of the NTNDArray type.
	TraceID string `msgpack:"traceId,omitempty"`
}

// NewRecord builds a record from typed samples, a shape and a color mode.
// samples must be one of the ScalarArray member types.
func NewRecord(samples interface{}, shape []int, mode ColorMode) (*Record, error) {
	rec := &Record{Timestamp: time.Now()}
	switch s := samples.(type) {
	case []uint8:
		rec.Value.UByte = s
	case []int8:
		rec.Value.Byte = s
	case []uint16:
		rec.Value.UShort = s
	case []int16:
		rec.Value.Short = s
	case []uint32:
		rec.Value.UInt = s
	case []int32:
		rec.Value.Int = s
	default:
		return nil, fmt.Errorf("%w: unsupported sample slice %T", ErrMalformedFrame, samples)
	}

	for _, d := range shape {
		rec.Dimension = append(rec.Dimension, Dimension{Size: d, FullSize: d, Binning: 1})
	}
	rec.Attribute = []Attribute{{Name: "ColorMode", Value: int32(mode)}}
	return rec, nil
}

// FrameFromRecord validates rec and converts it into a RawFrame.
//
// Missing value, dimension or attribute entries, or a color-mode attribute
// that is not an integer, yield ErrMalformedFrame. The color mode itself is
// not checked here: unsupported modes are rejected at decode time.
func FrameFromRecord(rec *Record) (*RawFrame, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrMalformedFrame)
	}

	samples, ok := rec.Value.populated()
	if !ok {
		return nil, fmt.Errorf("%w: value must hold exactly one non-empty array", ErrMalformedFrame)
	}
	if len(rec.Attribute) == 0 {
		return nil, fmt.Errorf("%w: missing attribute list", ErrMalformedFrame)
	}
	if len(rec.Dimension) == 0 {
		return nil, fmt.Errorf("%w: missing dimension list", ErrMalformedFrame)
	}

	mode, err := attributeInt(rec.Attribute[0].Value)
	if err != nil {
		return nil, fmt.Errorf("%w: color mode attribute %q: %v", ErrMalformedFrame, rec.Attribute[0].Name, err)
	}

	data, typ, _ := EncodeSamples(samples)

	shape := make([]int, len(rec.Dimension))
	for i, d := range rec.Dimension {
		shape[i] = d.Size
	}

	var attrs []Attribute
	if len(rec.Attribute) > 1 {
		attrs = append(attrs, rec.Attribute[1:]...)
	}

	return &RawFrame{
		Data:       data,
		Type:       typ,
		Shape:      shape,
		ColorMode:  ColorMode(mode),
		Attributes: attrs,
		UniqueID:   rec.UniqueID,
		Timestamp:  rec.Timestamp,
		TraceID:    rec.TraceID,
	}, nil
}

// attributeInt converts a decoded attribute value to an int. Integral floats
// are accepted because some transports widen every number to float64.
func attributeInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt32 {
			return 0, fmt.Errorf("value %d out of range", n)
		}
		return int(n), nil
	case float32:
		return floatInt(float64(n))
	case float64:
		return floatInt(n)
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func floatInt(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("value %v is not an integer", f)
	}
	return int(f), nil
}
