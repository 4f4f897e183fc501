/*
	Package source provides read-only, randomly addressable N-D arrays that feed
	pyramid generation: memory-resident arrays, virtual arrays that materialize
	planes on demand into an evictable cache, and an edge-extending view that
	lets border chunks read past the array bounds.
*/
package source

import (
	"fmt"

	"github.com/janelia-flyem/mipexport/mip"
)

// Array is a read-only N-D array of elements of a single data type.
type Array interface {
	// Dims returns the size of the array in each dimension.
	Dims() mip.Point

	// DataType returns the element type.
	DataType() mip.DataType

	// ReadRegion returns a new buffer holding the elements of the given box.
	// The box must lie within the array unless the Array is an edge-extending view.
	ReadRegion(offset, size mip.Point) (*mip.Buffer, error)
}

// Releaser is implemented by arrays with a lazily materialized cache that can be
// dropped under memory pressure.
type Releaser interface {
	ReleaseCache()
}

// checkRegion returns an error if the box isn't within dims.
func checkRegion(dims, offset, size mip.Point) error {
	if len(offset) != len(dims) || len(size) != len(dims) {
		return fmt.Errorf("region %s+%s doesn't match %d-d array", offset, size, len(dims))
	}
	full := mip.Region{Offset: make(mip.Point, len(dims)), Size: dims}
	if !full.Contains(mip.Region{Offset: offset, Size: size}) {
		return fmt.Errorf("region %s+%s is outside array of size %s", offset, size, dims)
	}
	return nil
}

// Cursor gives single-element random access to an Array.
type Cursor struct {
	a Array
}

// RandomAccess returns a Cursor over the given array.
func RandomAccess(a Array) Cursor {
	return Cursor{a}
}

// Get returns the element at the given position converted to float64.
func (c Cursor) Get(pos mip.Point) (float64, error) {
	b, err := c.a.ReadRegion(pos, mip.Ones(len(pos)))
	if err != nil {
		return 0, err
	}
	return b.Float64At(0), nil
}

// Memory is a memory-resident Array.
type Memory struct {
	buf *mip.Buffer
}

// NewMemory returns an Array backed by the given buffer, which must not be
// modified afterward.
func NewMemory(buf *mip.Buffer) *Memory {
	return &Memory{buf: buf}
}

func (m *Memory) Dims() mip.Point {
	return m.buf.Size
}

func (m *Memory) DataType() mip.DataType {
	return m.buf.Type
}

func (m *Memory) ReadRegion(offset, size mip.Point) (*mip.Buffer, error) {
	if err := checkRegion(m.buf.Size, offset, size); err != nil {
		return nil, err
	}
	out, err := mip.NewBuffer(m.buf.Type, size)
	if err != nil {
		return nil, err
	}
	if err := mip.CopyRegion(out, make(mip.Point, len(size)), m.buf, offset, size); err != nil {
		return nil, err
	}
	return out, nil
}
