package mip

import (
	"fmt"
	"strings"
)

// Point is an N-dimensional coordinate or size.  Dimension 0 is the
// fastest-varying axis (x) and the last dimension is the slowest.
type Point []int64

// NewPoint returns a Point holding a copy of the given values.
func NewPoint(values ...int64) Point {
	p := make(Point, len(values))
	copy(p, values)
	return p
}

// Ones returns an n-dimensional Point with all values set to 1.
func Ones(n int) Point {
	p := make(Point, n)
	for i := range p {
		p[i] = 1
	}
	return p
}

// NumDims returns the dimensionality of the point.
func (p Point) NumDims() int {
	return len(p)
}

// Duplicate returns a copy of the point.
func (p Point) Duplicate() Point {
	return NewPoint(p...)
}

// Prod returns the product of all values, e.g., the number of elements for a size.
func (p Point) Prod() int64 {
	if len(p) == 0 {
		return 0
	}
	prod := int64(1)
	for _, v := range p {
		prod *= v
	}
	return prod
}

// Equal returns true if both points have the same dimensionality and values.
func (p Point) Equal(x Point) bool {
	if len(p) != len(x) {
		return false
	}
	for i := range p {
		if p[i] != x[i] {
			return false
		}
	}
	return true
}

// AllOnes returns true if every value is 1.
func (p Point) AllOnes() bool {
	for _, v := range p {
		if v != 1 {
			return false
		}
	}
	return len(p) != 0
}

// Add returns the element-wise sum.
func (p Point) Add(x Point) Point {
	result := make(Point, len(p))
	for i := range p {
		result[i] = p[i] + x[i]
	}
	return result
}

// Sub returns the element-wise difference.
func (p Point) Sub(x Point) Point {
	result := make(Point, len(p))
	for i := range p {
		result[i] = p[i] - x[i]
	}
	return result
}

// Mul returns the element-wise product.
func (p Point) Mul(x Point) Point {
	result := make(Point, len(p))
	for i := range p {
		result[i] = p[i] * x[i]
	}
	return result
}

// Div returns the element-wise floor division.
func (p Point) Div(x Point) Point {
	result := make(Point, len(p))
	for i := range p {
		result[i] = p[i] / x[i]
	}
	return result
}

// CeilDiv returns the element-wise division rounded up.
func (p Point) CeilDiv(x Point) Point {
	result := make(Point, len(p))
	for i := range p {
		result[i] = (p[i] + x[i] - 1) / x[i]
	}
	return result
}

// Min returns the element-wise minimum.
func (p Point) Min(x Point) Point {
	result := make(Point, len(p))
	for i := range p {
		if p[i] < x[i] {
			result[i] = p[i]
		} else {
			result[i] = x[i]
		}
	}
	return result
}

// Positive returns true if all values are > 0.
func (p Point) Positive() bool {
	for _, v := range p {
		if v <= 0 {
			return false
		}
	}
	return len(p) != 0
}

func (p Point) String() string {
	s := make([]string, len(p))
	for i, v := range p {
		s[i] = fmt.Sprintf("%d", v)
	}
	return "(" + strings.Join(s, ",") + ")"
}

// Strides returns the row-major strides for a buffer of the given size with
// dimension 0 innermost.
func (p Point) Strides() []int64 {
	strides := make([]int64, len(p))
	stride := int64(1)
	for d := range p {
		strides[d] = stride
		stride *= p[d]
	}
	return strides
}

// Region is an axis-aligned box given by an offset and size.
type Region struct {
	Offset Point
	Size   Point
}

// End returns the exclusive upper corner of the region.
func (r Region) End() Point {
	return r.Offset.Add(r.Size)
}

// Contains returns true if the given region lies completely within the receiver.
func (r Region) Contains(x Region) bool {
	if len(r.Offset) != len(x.Offset) {
		return false
	}
	for d := range r.Offset {
		if x.Offset[d] < r.Offset[d] || x.Offset[d]+x.Size[d] > r.Offset[d]+r.Size[d] {
			return false
		}
	}
	return true
}

// Intersect returns the intersection of two regions and false if they don't overlap.
func (r Region) Intersect(x Region) (Region, bool) {
	n := len(r.Offset)
	result := Region{Offset: make(Point, n), Size: make(Point, n)}
	for d := 0; d < n; d++ {
		beg := r.Offset[d]
		if x.Offset[d] > beg {
			beg = x.Offset[d]
		}
		end := r.Offset[d] + r.Size[d]
		if xe := x.Offset[d] + x.Size[d]; xe < end {
			end = xe
		}
		if end <= beg {
			return Region{}, false
		}
		result.Offset[d] = beg
		result.Size[d] = end - beg
	}
	return result, true
}

func (r Region) String() string {
	return fmt.Sprintf("%s+%s", r.Offset, r.Size)
}
