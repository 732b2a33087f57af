package volkv

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec is the capability set a volume needs from its element type: append a
// value to a file image and consume one back. All encodings are little-endian;
// variable-length values carry a u32 length prefix.
type Codec[V any] interface {
	AppendValue(dst []byte, v V) []byte

	// ReadValue consumes one value from b and returns the remainder.
	ReadValue(b []byte) (V, []byte, error)
}

// The six element types a volume can be constructed with.
var (
	U32    Codec[uint32]  = u32Codec{}
	U64    Codec[uint64]  = u64Codec{}
	F32    Codec[float32] = f32Codec{}
	F64    Codec[float64] = f64Codec{}
	String Codec[string]  = stringCodec{}
	Bytes  Codec[[]byte]  = bytesCodec{}
)

type u32Codec struct{}

func (u32Codec) AppendValue(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func (u32Codec) ReadValue(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("%w: truncated u32 value", ErrCorruption)
	}
	return binary.LittleEndian.Uint32(b), b[4:], nil
}

type u64Codec struct{}

func (u64Codec) AppendValue(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func (u64Codec) ReadValue(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("%w: truncated u64 value", ErrCorruption)
	}
	return binary.LittleEndian.Uint64(b), b[8:], nil
}

type f32Codec struct{}

func (f32Codec) AppendValue(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

func (f32Codec) ReadValue(b []byte) (float32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("%w: truncated f32 value", ErrCorruption)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), b[4:], nil
}

type f64Codec struct{}

func (f64Codec) AppendValue(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}

func (f64Codec) ReadValue(b []byte) (float64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("%w: truncated f64 value", ErrCorruption)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), b[8:], nil
}

type stringCodec struct{}

func (stringCodec) AppendValue(dst []byte, v string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
	return append(dst, v...)
}

func (stringCodec) ReadValue(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, fmt.Errorf("%w: truncated string length", ErrCorruption)
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return "", nil, fmt.Errorf("%w: string value short by %d bytes", ErrCorruption, uint64(n)-uint64(len(b)))
	}
	return string(b[:n]), b[n:], nil
}

type bytesCodec struct{}

func (bytesCodec) AppendValue(dst []byte, v []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
	return append(dst, v...)
}

func (bytesCodec) ReadValue(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated buffer length", ErrCorruption)
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return nil, nil, fmt.Errorf("%w: buffer value short by %d bytes", ErrCorruption, uint64(n)-uint64(len(b)))
	}
	out := make([]byte, n)
	copy(out, b[:n])
	return out, b[n:], nil
}
