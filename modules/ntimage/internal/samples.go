package internal

import (
	"encoding/binary"
)

// readSample decodes sample i of a little-endian buffer.
func readSample(data []byte, t SampleType, i int) int64 {
	switch t {
	case SampleUint8:
		return int64(data[i])
	case SampleInt8:
		return int64(int8(data[i]))
	case SampleUint16:
		return int64(binary.LittleEndian.Uint16(data[2*i:]))
	case SampleInt16:
		return int64(int16(binary.LittleEndian.Uint16(data[2*i:])))
	case SampleUint32:
		return int64(binary.LittleEndian.Uint32(data[4*i:]))
	case SampleInt32:
		return int64(int32(binary.LittleEndian.Uint32(data[4*i:])))
	default:
		return 0
	}
}

// writeSample encodes v as sample i of a little-endian buffer.
func writeSample(data []byte, t SampleType, i int, v int64) {
	switch t {
	case SampleUint8, SampleInt8:
		data[i] = byte(v)
	case SampleUint16, SampleInt16:
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	case SampleUint32, SampleInt32:
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	}
}

// EncodeSamples packs typed samples into a little-endian buffer.
// Accepted slices: []uint8, []int8, []uint16, []int16, []uint32, []int32.
func EncodeSamples(samples interface{}) ([]byte, SampleType, bool) {
	switch s := samples.(type) {
	case []uint8:
		out := make([]byte, len(s))
		copy(out, s)
		return out, SampleUint8, true
	case []int8:
		out := make([]byte, len(s))
		for i, v := range s {
			out[i] = byte(v)
		}
		return out, SampleInt8, true
	case []uint16:
		out := make([]byte, 2*len(s))
		for i, v := range s {
			binary.LittleEndian.PutUint16(out[2*i:], v)
		}
		return out, SampleUint16, true
	case []int16:
		out := make([]byte, 2*len(s))
		for i, v := range s {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
		return out, SampleInt16, true
	case []uint32:
		out := make([]byte, 4*len(s))
		for i, v := range s {
			binary.LittleEndian.PutUint32(out[4*i:], v)
		}
		return out, SampleUint32, true
	case []int32:
		out := make([]byte, 4*len(s))
		for i, v := range s {
			binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
		}
		return out, SampleInt32, true
	default:
		return nil, 0, false
	}
}
