package source

import (
	"fmt"

	"github.com/janelia-flyem/mipexport/mip"
)

// extended is an edge-extending view where out-of-bounds positions take the value
// of the nearest in-bounds element.
type extended struct {
	Array
}

// ExtendBorder returns a view of the array where any region can be read.
func ExtendBorder(a Array) Array {
	if _, ok := a.(extended); ok {
		return a
	}
	return extended{a}
}

func clamp(v, max int64) int64 {
	if v < 0 {
		return 0
	}
	if v >= max {
		return max - 1
	}
	return v
}

func (e extended) ReadRegion(offset, size mip.Point) (*mip.Buffer, error) {
	dims := e.Dims()
	if len(offset) != len(dims) || len(size) != len(dims) {
		return nil, fmt.Errorf("region %s+%s doesn't match %d-d array", offset, size, len(dims))
	}
	full := mip.Region{Offset: make(mip.Point, len(dims)), Size: dims}
	want := mip.Region{Offset: offset, Size: size}
	if full.Contains(want) {
		return e.Array.ReadRegion(offset, size)
	}

	// Read the clamped bounding box once, then gather through per-dimension index maps.
	readOff := make(mip.Point, len(dims))
	readSize := make(mip.Point, len(dims))
	for d := range dims {
		beg := clamp(offset[d], dims[d])
		end := clamp(offset[d]+size[d]-1, dims[d])
		readOff[d] = beg
		readSize[d] = end - beg + 1
	}
	inner, err := e.Array.ReadRegion(readOff, readSize)
	if err != nil {
		return nil, err
	}
	out, err := mip.NewBuffer(inner.Type, size)
	if err != nil {
		return nil, err
	}
	index := make([][]int64, len(dims))
	for d := range dims {
		index[d] = make([]int64, size[d])
		for i := range index[d] {
			index[d][i] = clamp(offset[d]+int64(i), dims[d]) - readOff[d]
		}
	}
	if err := gather(out, inner, index); err != nil {
		return nil, err
	}
	return out, nil
}

func gatherT[T mip.Number](dst []T, dstSize mip.Point, src []T, srcSize mip.Point, index [][]int64) {
	srcStrides := srcSize.Strides()
	xs := index[0]
	var o int64
	mip.ForEachRow(dstSize, func(pos mip.Point) {
		var base int64
		for d := 1; d < len(pos); d++ {
			base += index[d][pos[d]] * srcStrides[d]
		}
		for _, x := range xs {
			dst[o] = src[base+x]
			o++
		}
	})
}

func gather(dst, src *mip.Buffer, index [][]int64) error {
	switch s := src.Data.(type) {
	case []uint8:
		gatherT(dst.Data.([]uint8), dst.Size, s, src.Size, index)
	case []int8:
		gatherT(dst.Data.([]int8), dst.Size, s, src.Size, index)
	case []uint16:
		gatherT(dst.Data.([]uint16), dst.Size, s, src.Size, index)
	case []int16:
		gatherT(dst.Data.([]int16), dst.Size, s, src.Size, index)
	case []uint32:
		gatherT(dst.Data.([]uint32), dst.Size, s, src.Size, index)
	case []int32:
		gatherT(dst.Data.([]int32), dst.Size, s, src.Size, index)
	case []uint64:
		gatherT(dst.Data.([]uint64), dst.Size, s, src.Size, index)
	case []int64:
		gatherT(dst.Data.([]int64), dst.Size, s, src.Size, index)
	case []float32:
		gatherT(dst.Data.([]float32), dst.Size, s, src.Size, index)
	case []float64:
		gatherT(dst.Data.([]float64), dst.Size, s, src.Size, index)
	default:
		return fmt.Errorf("can't extend buffer data of type %T", src.Data)
	}
	return nil
}
