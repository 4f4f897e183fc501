package pyramid

import (
	"fmt"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/source"
)

// LoopbackHeuristic decides whether a level should be generated from a previous level
// instead of the original array.  previousLevel is -1 if no usable previous level exists.
type LoopbackHeuristic interface {
	Decide(original source.Array, factorsToOriginal mip.Point, previousLevel int, factorsToPrevious mip.Point, chunkShape mip.Point) bool
}

// HeuristicFunc adapts a function to a LoopbackHeuristic.
type HeuristicFunc func(original source.Array, factorsToOriginal mip.Point, previousLevel int, factorsToPrevious mip.Point, chunkShape mip.Point) bool

func (f HeuristicFunc) Decide(original source.Array, factorsToOriginal mip.Point, previousLevel int, factorsToPrevious mip.Point, chunkShape mip.Point) bool {
	return f(original, factorsToOriginal, previousLevel, factorsToPrevious, chunkShape)
}

// NeverLoopback always generates from the original array.
var NeverLoopback = HeuristicFunc(func(source.Array, mip.Point, int, mip.Point, mip.Point) bool { return false })

// AlwaysLoopback generates from a previous level whenever one is usable.
var AlwaysLoopback = HeuristicFunc(func(_ source.Array, _ mip.Point, previous int, _ mip.Point, _ mip.Point) bool { return previous >= 0 })

// DefaultHeuristic loops back when the previous level is itself reduced at least
// 8-fold in element count, or, for virtual sources, when the original planes needed
// to produce one plane of chunks would exceed a quarter of MaxMemory.
type DefaultHeuristic struct {
	MaxMemory int64
}

func (h DefaultHeuristic) String() string {
	return fmt.Sprintf("default loopback heuristic (max memory %s)", mip.HumanBytes(h.MaxMemory))
}

func (h DefaultHeuristic) Decide(original source.Array, factorsToOriginal mip.Point, previousLevel int, factorsToPrevious mip.Point, chunkShape mip.Point) bool {
	if previousLevel < 0 || len(factorsToPrevious) != len(factorsToOriginal) {
		return false
	}
	if factorsToOriginal.Prod()/factorsToPrevious.Prod() >= 8 {
		return true
	}
	if _, virtual := original.(source.Releaser); virtual && h.MaxMemory > 0 {
		dims := original.Dims()
		last := len(dims) - 1
		planeBytes := int64(mip.DataTypeBytes(original.DataType()))
		for d := 0; d < last; d++ {
			planeBytes *= dims[d]
		}
		required := planeBytes * factorsToOriginal[last] * chunkShape[last]
		if required > h.MaxMemory/4 {
			return true
		}
	}
	return false
}
