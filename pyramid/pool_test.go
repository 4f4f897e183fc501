package pyramid

import (
	"sync/atomic"
	"testing"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/source"
)

func TestPoolSurvivesPanic(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	var ran int64
	tasks := make([]func(), 6)
	for i := range tasks {
		i := i
		tasks[i] = func() {
			atomic.AddInt64(&ran, 1)
			if i%2 == 0 {
				panic("task failure")
			}
		}
	}
	pool.RunAll(tasks)
	if ran != 6 {
		t.Fatalf("expected 6 tasks run, got %d", ran)
	}

	// Both workers must still be alive to run concurrent tasks.
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	blocking := func() {
		started <- struct{}{}
		<-release
	}
	done := make(chan struct{})
	go func() {
		pool.RunAll([]func(){blocking, blocking})
		close(done)
	}()
	<-started
	<-started
	close(release)
	<-done
}

func TestMemoryGovernor(t *testing.T) {
	dims := mip.NewPoint(16, 16, 8)
	v := testVirtual(t, dims)
	defer v.Close()
	if _, err := v.ReadRegion(mip.NewPoint(0, 0, 0), dims); err != nil {
		t.Fatal(err)
	}
	if v.CachedPieces() == 0 {
		t.Fatalf("expected planes in cache")
	}

	pressure := false
	g := NewMemoryGovernor(v, func() bool { return pressure })
	g.AfterPlane(false)
	if v.CachedPieces() == 0 {
		t.Errorf("cache released without pressure")
	}
	pressure = true
	g.AfterPlane(true)
	if v.CachedPieces() == 0 {
		t.Errorf("cache released after loopback plane")
	}
	g.AfterPlane(false)
	if v.CachedPieces() != 0 {
		t.Errorf("cache not released under pressure")
	}

	// Memory sources are never released.
	mem := source.NewMemory(nil)
	NewMemoryGovernor(mem, func() bool { return true }).AfterPlane(false)
}

func TestRuntimePressure(t *testing.T) {
	if RuntimePressure(1<<50, 0.5)() {
		t.Errorf("unexpected pressure with huge budget")
	}
	if !RuntimePressure(1, 0.5)() {
		t.Errorf("expected pressure with 1 byte budget")
	}
}
