package pyramid

import (
	"sync"

	"github.com/janelia-flyem/mipexport/mip"
)

// ProgressSink receives completion ratios in [0,1] for the current level and for the
// whole export.  Both ratios never decrease.
type ProgressSink interface {
	Progress(level int, levelFraction, overall float64)
}

// ProgressFunc adapts a function to a ProgressSink.
type ProgressFunc func(level int, levelFraction, overall float64)

func (f ProgressFunc) Progress(level int, levelFraction, overall float64) {
	f(level, levelFraction, overall)
}

// LogProgress logs progress each time overall completion advances by at least Step.
type LogProgress struct {
	Step float64

	mu   sync.Mutex
	last float64
}

func (lp *LogProgress) Progress(level int, levelFraction, overall float64) {
	step := lp.Step
	if step <= 0 {
		step = 0.1
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if overall-lp.last >= step || (overall >= 1 && lp.last < 1) {
		lp.last = overall
		mip.Infof("Level %d %.0f%% done, export %.0f%% done\n", level, levelFraction*100, overall*100)
	}
}

// progressTracker weights each level by its number of chunks.  It is only used by the
// coordinator goroutine.
type progressTracker struct {
	sink        ProgressSink
	total       int64
	done        int64
	lastOverall float64
}

func newProgressTracker(sink ProgressSink, levels []Level) *progressTracker {
	t := &progressTracker{sink: sink}
	for _, l := range levels {
		t.total += l.Grid().NumChunks()
	}
	return t
}

// advance records chunks handled for a level with levelTotal chunks.
func (t *progressTracker) advance(level int, levelDone, levelTotal, chunks int64) {
	t.done += chunks
	if t.sink == nil {
		return
	}
	overall := float64(t.done) / float64(t.total)
	if overall > 1 {
		overall = 1
	}
	if overall < t.lastOverall {
		overall = t.lastOverall
	}
	t.lastOverall = overall
	t.sink.Progress(level, float64(levelDone)/float64(levelTotal), overall)
}
