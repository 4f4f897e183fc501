package pyramid

import (
	"fmt"

	"github.com/janelia-flyem/mipexport/mip"
)

// Level is one planned resolution level.  Levels are immutable once planned.
type Level struct {
	Index int

	// Dims is the size of the level, floor(dims0 / FactorsToOriginal) with a minimum of 1.
	Dims mip.Point

	FactorsToOriginal mip.Point

	// FactorsToPrevious is the exact integer ratio to level Index-1 or nil if there is
	// no previous level or the ratio isn't integral.
	FactorsToPrevious mip.Point

	BlockShape mip.Point
}

func (l Level) String() string {
	return fmt.Sprintf("level %d (dims %s, factors %s, block %s)", l.Index, l.Dims, l.FactorsToOriginal, l.BlockShape)
}

// Grid returns the chunk grid of the level.
func (l Level) Grid() WorkGrid {
	return NewWorkGrid(l.Dims, l.BlockShape)
}

// Plan validates requested factors and block shapes and returns the planned levels.
// Any problem is returned as a *mip.PlanningError before anything is written.
func Plan(dims mip.Point, factors, blockShapes []mip.Point) ([]Level, error) {
	nd := len(dims)
	if nd == 0 || !dims.Positive() {
		return nil, mip.NewPlanningError(-1, "bad source dimensions %s", dims)
	}
	if len(factors) == 0 {
		return nil, mip.NewPlanningError(-1, "no levels requested")
	}
	if len(factors) != len(blockShapes) {
		return nil, mip.NewPlanningError(-1, "%d factor vectors but %d block shapes", len(factors), len(blockShapes))
	}
	levels := make([]Level, len(factors))
	for l := range factors {
		f, block := factors[l], blockShapes[l]
		if len(f) != nd {
			return nil, mip.NewPlanningError(l, "factors %s don't match %d-d source", f, nd)
		}
		if len(block) != nd {
			return nil, mip.NewPlanningError(l, "block shape %s doesn't match %d-d source", block, nd)
		}
		if !f.Positive() {
			return nil, mip.NewPlanningError(l, "factors %s must be positive integers", f)
		}
		if !block.Positive() {
			return nil, mip.NewPlanningError(l, "block shape %s must be positive", block)
		}
		if l == 0 && !f.AllOnes() {
			return nil, mip.NewPlanningError(0, "level 0 must have unit factors, got %s", f)
		}
		levelDims := make(mip.Point, nd)
		for d := range dims {
			if l > 0 && f[d] < factors[l-1][d] {
				return nil, mip.NewPlanningError(l, "factors %s decrease from previous level %s", f, factors[l-1])
			}
			levelDims[d] = dims[d] / f[d]
			if levelDims[d] < 1 {
				levelDims[d] = 1
			}
		}
		levels[l] = Level{
			Index:             l,
			Dims:              levelDims,
			FactorsToOriginal: f.Duplicate(),
			BlockShape:        block.Duplicate(),
		}
		if l > 0 {
			if rel, ok := ratio(f, factors[l-1]); ok {
				levels[l].FactorsToPrevious = rel
			}
		}
	}
	return levels, nil
}

// ratio returns a/b if every component divides exactly.
func ratio(a, b mip.Point) (mip.Point, bool) {
	if len(a) != len(b) {
		return nil, false
	}
	r := make(mip.Point, len(a))
	for d := range a {
		if b[d] <= 0 || a[d]%b[d] != 0 {
			return nil, false
		}
		r[d] = a[d] / b[d]
	}
	return r, true
}
