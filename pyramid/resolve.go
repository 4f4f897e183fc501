package pyramid

import (
	"fmt"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/source"
)

// SourceKind tags where a level's data comes from.
type SourceKind uint8

const (
	Original SourceKind = iota
	Loopback
)

// SourceDescriptor is fixed for the whole generation pass of a level.
type SourceDescriptor struct {
	Kind SourceKind

	// Level is the previous level read for Loopback, -1 for Original.
	Level int

	// Factors are the downsampling factors applied to the source: factors to original
	// for Original, the relative factors for Loopback.
	Factors mip.Point
}

func (s SourceDescriptor) String() string {
	if s.Kind == Loopback {
		return fmt.Sprintf("loopback(level %d, factors %s)", s.Level, s.Factors)
	}
	return fmt.Sprintf("original(factors %s)", s.Factors)
}

// MarshalText gives the descriptor form stored in the mipmap info.
func (s SourceDescriptor) MarshalText() ([]byte, error) {
	if s.Kind == Loopback {
		return []byte(fmt.Sprintf("loopback:%d", s.Level)), nil
	}
	return []byte("original"), nil
}

// ResolveSource determines the source of level l.  The nearest previous level p with an
// exact positive integer ratio F[l]/F[p] for which complete(p) is true is offered to the
// heuristic; otherwise, or if the heuristic declines, the original array is used.
func ResolveSource(levels []Level, l int, original source.Array, h LoopbackHeuristic, complete func(level int) bool) SourceDescriptor {
	desc := SourceDescriptor{Kind: Original, Level: -1, Factors: levels[l].FactorsToOriginal.Duplicate()}
	prev := -1
	var rel mip.Point
	for p := l - 1; p >= 0; p-- {
		if r, ok := ratio(levels[l].FactorsToOriginal, levels[p].FactorsToOriginal); ok {
			if complete != nil && !complete(p) {
				continue
			}
			prev, rel = p, r
			break
		}
	}
	if h == nil || prev < 0 {
		return desc
	}
	if h.Decide(original, levels[l].FactorsToOriginal, prev, rel, levels[l].BlockShape) {
		return SourceDescriptor{Kind: Loopback, Level: prev, Factors: rel}
	}
	return desc
}
