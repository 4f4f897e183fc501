package pyramid

import (
	"runtime"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/source"
)

// CacheGovernor is called by the coordinator after every plane, never while chunks
// are in flight.  usedLoopback is true if the plane was generated from a previous level.
type CacheGovernor interface {
	AfterPlane(usedLoopback bool)
}

// GovernorFunc adapts a function to a CacheGovernor.
type GovernorFunc func(usedLoopback bool)

func (f GovernorFunc) AfterPlane(usedLoopback bool) {
	f(usedLoopback)
}

// PressureFunc reports whether memory is under pressure.
type PressureFunc func() bool

// MemoryGovernor releases the cache of a virtual original source after planes read
// from that source if memory is under pressure.
type MemoryGovernor struct {
	Source   source.Array
	Pressure PressureFunc
}

// NewMemoryGovernor returns a governor for the source.  Sources that aren't
// source.Releaser are never released.
func NewMemoryGovernor(src source.Array, pressure PressureFunc) *MemoryGovernor {
	return &MemoryGovernor{Source: src, Pressure: pressure}
}

func (g *MemoryGovernor) AfterPlane(usedLoopback bool) {
	if usedLoopback || g.Pressure == nil {
		return
	}
	releaser, virtual := g.Source.(source.Releaser)
	if !virtual {
		return
	}
	if g.Pressure() {
		mip.Debugf("Memory pressure: releasing source cache\n")
		releaser.ReleaseCache()
	}
}

// RuntimePressure returns a predicate that reports pressure when the memory still
// available under maxBytes falls below fraction * maxBytes.  Available memory is
// maxBytes minus the heap in use.
func RuntimePressure(maxBytes int64, fraction float64) PressureFunc {
	return func() bool {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		free := maxBytes - int64(ms.HeapInuse)
		return float64(free) < fraction*float64(maxBytes)
	}
}
