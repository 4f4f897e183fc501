package mip

import "testing"

func TestBufferBytes(t *testing.T) {
	size := NewPoint(3, 2, 2)
	b, err := NewBuffer(T_uint16, size)
	if err != nil {
		t.Fatalf("can't make buffer: %v\n", err)
	}
	data, ok := Values[uint16](b)
	if !ok {
		t.Fatalf("expected []uint16 data, got %T\n", b.Data)
	}
	for i := range data {
		data[i] = uint16(i * 1000)
	}
	serialized, err := b.Bytes()
	if err != nil {
		t.Fatalf("can't get bytes: %v\n", err)
	}
	if len(serialized) != 24 {
		t.Fatalf("expected 24 bytes, got %d\n", len(serialized))
	}
	if serialized[2] != 0xe8 || serialized[3] != 0x03 {
		t.Errorf("expected little-endian 1000, got %x %x\n", serialized[2], serialized[3])
	}
	b2, err := BufferFromBytes(T_uint16, size, serialized)
	if err != nil {
		t.Fatalf("can't decode bytes: %v\n", err)
	}
	data2, _ := Values[uint16](b2)
	for i := range data {
		if data[i] != data2[i] {
			t.Fatalf("element %d: expected %d, got %d\n", i, data[i], data2[i])
		}
	}
	if _, err := BufferFromBytes(T_uint16, size, serialized[:10]); err == nil {
		t.Errorf("expected error on short data\n")
	}
}

func TestCopyRegion(t *testing.T) {
	src, _ := NewBuffer(T_float32, NewPoint(4, 4))
	sdata, _ := Values[float32](src)
	for i := range sdata {
		sdata[i] = float32(i)
	}
	dst, _ := NewBuffer(T_float32, NewPoint(3, 3))
	if err := CopyRegion(dst, NewPoint(1, 1), src, NewPoint(2, 1), NewPoint(2, 2)); err != nil {
		t.Fatalf("copy failed: %v\n", err)
	}
	ddata, _ := Values[float32](dst)
	expected := []float32{0, 0, 0, 0, 6, 7, 0, 10, 11}
	for i := range expected {
		if ddata[i] != expected[i] {
			t.Errorf("element %d: expected %f, got %f\n", i, expected[i], ddata[i])
		}
	}
	if err := CopyRegion(dst, NewPoint(2, 2), src, NewPoint(0, 0), NewPoint(2, 2)); err == nil {
		t.Errorf("expected error on out-of-bounds copy\n")
	}
}

func TestParseDataType(t *testing.T) {
	for dt, name := range typeNames {
		parsed, err := ParseDataType(name)
		if err != nil || parsed != dt {
			t.Errorf("bad parse of %q: %s %v\n", name, parsed, err)
		}
	}
	if _, err := ParseDataType("complex64"); err == nil {
		t.Errorf("expected error on unknown data type\n")
	}
}
