/*
	This file handles the element types of image data and the typed N-D buffers
	that hold blocks of elements.
*/

package mip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// DataType is a unique ID for each element type, e.g., a uint8 or a float32.
type DataType uint8

const (
	T_uint8 DataType = iota
	T_int8
	T_uint16
	T_int16
	T_uint32
	T_int32
	T_uint64
	T_int64
	T_float32
	T_float64
)

var typeBytes = map[DataType]int{
	T_uint8:   1,
	T_int8:    1,
	T_uint16:  2,
	T_int16:   2,
	T_uint32:  4,
	T_int32:   4,
	T_uint64:  8,
	T_int64:   8,
	T_float32: 4,
	T_float64: 8,
}

var typeNames = map[DataType]string{
	T_uint8:   "uint8",
	T_int8:    "int8",
	T_uint16:  "uint16",
	T_int16:   "int16",
	T_uint32:  "uint32",
	T_int32:   "int32",
	T_uint64:  "uint64",
	T_int64:   "int64",
	T_float32: "float32",
	T_float64: "float64",
}

// DataTypeBytes returns the # of bytes for a given type, e.g., 2 for T_uint16.
func DataTypeBytes(t DataType) int {
	return typeBytes[t]
}

func (t DataType) String() string {
	if s, found := typeNames[t]; found {
		return s
	}
	return fmt.Sprintf("unknown type %d", uint8(t))
}

// ParseDataType returns the DataType for a name like "uint16".
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, tname := range typeNames {
		if tname == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// MarshalText implements encoding.TextMarshaler for JSON and TOML.
func (t DataType) MarshalText() ([]byte, error) {
	if _, found := typeNames[t]; !found {
		return nil, fmt.Errorf("can't marshal unknown data type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON and TOML.
func (t *DataType) UnmarshalText(b []byte) error {
	parsed, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsFloat returns true for floating point types.
func (t DataType) IsFloat() bool {
	return t == T_float32 || t == T_float64
}

// Number is the set of Go element types that back a Buffer.
type Number interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64 | ~float32 | ~float64
}

// Buffer is a typed N-D block of elements stored row-major with dimension 0 innermost.
// Data holds a slice of the Go type matching Type, e.g., []uint16 for T_uint16.
type Buffer struct {
	Type DataType
	Size Point
	Data interface{}
}

func makeSlice(t DataType, n int64) (interface{}, error) {
	switch t {
	case T_uint8:
		return make([]uint8, n), nil
	case T_int8:
		return make([]int8, n), nil
	case T_uint16:
		return make([]uint16, n), nil
	case T_int16:
		return make([]int16, n), nil
	case T_uint32:
		return make([]uint32, n), nil
	case T_int32:
		return make([]int32, n), nil
	case T_uint64:
		return make([]uint64, n), nil
	case T_int64:
		return make([]int64, n), nil
	case T_float32:
		return make([]float32, n), nil
	case T_float64:
		return make([]float64, n), nil
	}
	return nil, fmt.Errorf("can't allocate buffer of unknown data type %d", uint8(t))
}

// NewBuffer allocates a zeroed buffer of the given type and size.
func NewBuffer(t DataType, size Point) (*Buffer, error) {
	if !size.Positive() {
		return nil, fmt.Errorf("bad buffer size %s", size)
	}
	data, err := makeSlice(t, size.Prod())
	if err != nil {
		return nil, err
	}
	return &Buffer{Type: t, Size: size.Duplicate(), Data: data}, nil
}

// NewBufferFromSlice wraps an existing typed slice without copying.
func NewBufferFromSlice[T Number](size Point, data []T) (*Buffer, error) {
	if int64(len(data)) != size.Prod() {
		return nil, fmt.Errorf("slice of %d elements doesn't match size %s", len(data), size)
	}
	var t DataType
	switch any(data).(type) {
	case []uint8:
		t = T_uint8
	case []int8:
		t = T_int8
	case []uint16:
		t = T_uint16
	case []int16:
		t = T_int16
	case []uint32:
		t = T_uint32
	case []int32:
		t = T_int32
	case []uint64:
		t = T_uint64
	case []int64:
		t = T_int64
	case []float32:
		t = T_float32
	case []float64:
		t = T_float64
	default:
		return nil, fmt.Errorf("unsupported slice type %T", data)
	}
	return &Buffer{Type: t, Size: size.Duplicate(), Data: data}, nil
}

// Values returns the typed slice of a buffer or false if T doesn't match its type.
func Values[T Number](b *Buffer) ([]T, bool) {
	data, ok := b.Data.([]T)
	return data, ok
}

// NumElements returns the number of elements in the buffer.
func (b *Buffer) NumElements() int64 {
	return b.Size.Prod()
}

// NumBytes returns the number of bytes needed for the raw element data.
func (b *Buffer) NumBytes() int64 {
	return b.Size.Prod() * int64(DataTypeBytes(b.Type))
}

// Float64At returns the i-th element converted to a float64.
func (b *Buffer) Float64At(i int64) float64 {
	switch data := b.Data.(type) {
	case []uint8:
		return float64(data[i])
	case []int8:
		return float64(data[i])
	case []uint16:
		return float64(data[i])
	case []int16:
		return float64(data[i])
	case []uint32:
		return float64(data[i])
	case []int32:
		return float64(data[i])
	case []uint64:
		return float64(data[i])
	case []int64:
		return float64(data[i])
	case []float32:
		return float64(data[i])
	case []float64:
		return data[i]
	}
	return 0
}

// Index returns the linear index of a position within the buffer.
func (b *Buffer) Index(pos Point) int64 {
	var i, stride int64 = 0, 1
	for d := range b.Size {
		i += pos[d] * stride
		stride *= b.Size[d]
	}
	return i
}

// Bytes returns the little-endian serialization of the element data.
func (b *Buffer) Bytes() ([]byte, error) {
	if data, ok := b.Data.([]uint8); ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	var buf bytes.Buffer
	buf.Grow(int(b.NumBytes()))
	if err := binary.Write(&buf, binary.LittleEndian, b.Data); err != nil {
		return nil, fmt.Errorf("unable to serialize %s buffer: %v", b.Type, err)
	}
	return buf.Bytes(), nil
}

// BufferFromBytes decodes little-endian element data into a new buffer.
func BufferFromBytes(t DataType, size Point, data []byte) (*Buffer, error) {
	b, err := NewBuffer(t, size)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != b.NumBytes() {
		return nil, fmt.Errorf("expected %d bytes for %s buffer of size %s, got %d", b.NumBytes(), t, size, len(data))
	}
	if dst, ok := b.Data.([]uint8); ok {
		copy(dst, data)
		return b, nil
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, b.Data); err != nil {
		return nil, fmt.Errorf("unable to deserialize %s buffer: %v", t, err)
	}
	return b, nil
}

// ForEachRow calls f with the starting position of every row (dimension 0 set to zero)
// of a box of the given size, in row-major order.  The passed Point is reused between calls.
func ForEachRow(size Point, f func(pos Point)) {
	n := len(size)
	if n == 0 || !size.Positive() {
		return
	}
	pos := make(Point, n)
	for {
		f(pos)
		d := 1
		for ; d < n; d++ {
			pos[d]++
			if pos[d] < size[d] {
				break
			}
			pos[d] = 0
		}
		if d >= n {
			return
		}
	}
}

func copyRegion[T Number](dst []T, dstSize, dstOff Point, src []T, srcSize, srcOff, size Point) {
	dstStrides := dstSize.Strides()
	srcStrides := srcSize.Strides()
	rowLen := size[0]
	ForEachRow(size, func(pos Point) {
		di := dstOff[0]
		si := srcOff[0]
		for d := 1; d < len(size); d++ {
			di += (dstOff[d] + pos[d]) * dstStrides[d]
			si += (srcOff[d] + pos[d]) * srcStrides[d]
		}
		copy(dst[di:di+rowLen], src[si:si+rowLen])
	})
}

// CopyRegion copies a box of the given size from src at srcOffset into dst at dstOffset.
// Both buffers must have the same type and the box must lie within both.
func CopyRegion(dst *Buffer, dstOffset Point, src *Buffer, srcOffset Point, size Point) error {
	if dst.Type != src.Type {
		return fmt.Errorf("can't copy %s data into %s buffer", src.Type, dst.Type)
	}
	if !(Region{make(Point, len(dst.Size)), dst.Size}).Contains(Region{dstOffset, size}) {
		return fmt.Errorf("copy box %s exceeds destination buffer size %s", Region{dstOffset, size}, dst.Size)
	}
	if !(Region{make(Point, len(src.Size)), src.Size}).Contains(Region{srcOffset, size}) {
		return fmt.Errorf("copy box %s exceeds source buffer size %s", Region{srcOffset, size}, src.Size)
	}
	switch d := dst.Data.(type) {
	case []uint8:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]uint8), src.Size, srcOffset, size)
	case []int8:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]int8), src.Size, srcOffset, size)
	case []uint16:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]uint16), src.Size, srcOffset, size)
	case []int16:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]int16), src.Size, srcOffset, size)
	case []uint32:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]uint32), src.Size, srcOffset, size)
	case []int32:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]int32), src.Size, srcOffset, size)
	case []uint64:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]uint64), src.Size, srcOffset, size)
	case []int64:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]int64), src.Size, srcOffset, size)
	case []float32:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]float32), src.Size, srcOffset, size)
	case []float64:
		copyRegion(d, dst.Size, dstOffset, src.Data.([]float64), src.Size, srcOffset, size)
	default:
		return fmt.Errorf("unsupported buffer data %T", dst.Data)
	}
	return nil
}
