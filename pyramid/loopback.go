package pyramid

import (
	"fmt"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/storage"
)

// LoopbackSource exposes an already written, complete level as a source array.
type LoopbackSource struct {
	ds    storage.Dataset
	attrs storage.DatasetAttributes
}

// NewLoopbackSource wraps a dataset written by a previous level.
func NewLoopbackSource(ds storage.Dataset) *LoopbackSource {
	return &LoopbackSource{ds: ds, attrs: ds.Attributes()}
}

func (lb *LoopbackSource) Dims() mip.Point {
	return lb.attrs.Dimensions
}

func (lb *LoopbackSource) DataType() mip.DataType {
	return lb.attrs.DataType
}

func (lb *LoopbackSource) String() string {
	return fmt.Sprintf("loopback source %q", lb.ds.Path())
}

// ReadRegion reads all blocks intersecting the region and copies the overlaps.
func (lb *LoopbackSource) ReadRegion(offset, size mip.Point) (*mip.Buffer, error) {
	want := mip.Region{Offset: offset, Size: size}
	if !(mip.Region{Offset: make(mip.Point, len(lb.attrs.Dimensions)), Size: lb.attrs.Dimensions}).Contains(want) {
		return nil, fmt.Errorf("region %s outside %s dims %s", want, lb, lb.attrs.Dimensions)
	}
	out, err := mip.NewBuffer(lb.attrs.DataType, size)
	if err != nil {
		return nil, err
	}
	first := offset.Div(lb.attrs.BlockSize)
	last := offset.Add(size).CeilDiv(lb.attrs.BlockSize)
	nd := len(first)
	gridPos := first.Duplicate()
	for {
		block, err := lb.ds.ReadBlock(gridPos)
		if err != nil {
			return nil, fmt.Errorf("%s block %s: %w", lb, gridPos, err)
		}
		blockRegion := mip.Region{Offset: gridPos.Mul(lb.attrs.BlockSize), Size: block.Size}
		overlap, ok := blockRegion.Intersect(want)
		if ok {
			if err := mip.CopyRegion(out, overlap.Offset.Sub(offset), block, overlap.Offset.Sub(blockRegion.Offset), overlap.Size); err != nil {
				return nil, err
			}
		}
		d := 0
		for ; d < nd; d++ {
			gridPos[d]++
			if gridPos[d] < last[d] {
				break
			}
			gridPos[d] = first[d]
		}
		if d == nd {
			return out, nil
		}
	}
}
