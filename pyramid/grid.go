package pyramid

import (
	"github.com/janelia-flyem/mipexport/mip"
)

// WorkGrid is the chunk grid covering a level.  The last chunk along each dimension
// may be smaller than the block shape.
type WorkGrid struct {
	Dims            mip.Point
	BlockShape      mip.Point
	NumChunksPerDim mip.Point
}

func NewWorkGrid(dims, blockShape mip.Point) WorkGrid {
	return WorkGrid{
		Dims:            dims.Duplicate(),
		BlockShape:      blockShape.Duplicate(),
		NumChunksPerDim: dims.CeilDiv(blockShape),
	}
}

// NumChunks returns the total number of chunks.
func (g WorkGrid) NumChunks() int64 {
	return g.NumChunksPerDim.Prod()
}

// NumPlanes returns the number of planes along the slowest dimension.
func (g WorkGrid) NumPlanes() int64 {
	return g.NumChunksPerDim[len(g.NumChunksPerDim)-1]
}

// PlaneChunks returns the number of chunks in one plane.
func (g WorkGrid) PlaneChunks() int64 {
	if len(g.NumChunksPerDim) == 1 {
		return 1
	}
	return g.NumChunksPerDim[:len(g.NumChunksPerDim)-1].Prod()
}

// PlanePositions enumerates grid positions of a plane with dimension 0 varying fastest.
func (g WorkGrid) PlanePositions(plane int64) []mip.Point {
	nd := len(g.NumChunksPerDim)
	positions := make([]mip.Point, 0, g.PlaneChunks())
	pos := make(mip.Point, nd)
	pos[nd-1] = plane
	for {
		positions = append(positions, pos.Duplicate())
		d := 0
		for ; d < nd-1; d++ {
			pos[d]++
			if pos[d] < g.NumChunksPerDim[d] {
				break
			}
			pos[d] = 0
		}
		if d == nd-1 {
			return positions
		}
	}
}

// ChunkRegion returns the output region of the chunk at a grid position, clipped
// to the level dimensions.
func (g WorkGrid) ChunkRegion(gridPos mip.Point) mip.Region {
	offset := gridPos.Mul(g.BlockShape)
	size := g.Dims.Sub(offset).Min(g.BlockShape)
	return mip.Region{Offset: offset, Size: size}
}
