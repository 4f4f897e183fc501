package pyramid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DmitriyVTitov/size"

	"github.com/janelia-flyem/mipexport/downres"
	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/source"
	"github.com/janelia-flyem/mipexport/storage"
)

// maxReportedErrors caps the errors kept in a LevelReport.
const maxReportedErrors = 16

// LevelReport summarizes the generation pass of one level.
type LevelReport struct {
	Level  int
	Source SourceDescriptor

	Planes        int64
	ChunksTotal   int64
	ChunksWritten int64
	ChunksFailed  int64

	// ChunksSkipped were never attempted because of cancellation or fail-fast.
	ChunksSkipped int64

	// Errors holds the first failures.
	Errors []error

	Elapsed time.Duration
}

// Complete returns true if every chunk of the level was written.
func (r LevelReport) Complete() bool {
	return r.ChunksWritten == r.ChunksTotal
}

func (r LevelReport) String() string {
	return fmt.Sprintf("level %d from %s: %d/%d chunks written, %d failed, %d skipped over %d planes in %s",
		r.Level, r.Source, r.ChunksWritten, r.ChunksTotal, r.ChunksFailed, r.ChunksSkipped, r.Planes, r.Elapsed)
}

// Scheduler generates levels chunk by chunk on a worker pool.
type Scheduler struct {
	pool *WorkerPool
	cfg  Config
}

// NewScheduler returns a scheduler using the pool.  The pool isn't owned by the scheduler.
func NewScheduler(pool *WorkerPool, cfg Config) *Scheduler {
	return &Scheduler{pool: pool, cfg: cfg.withDefaults()}
}

// planeState is shared by the workers of one plane.
type planeState struct {
	written int64
	failed  int64
	skipped int64
	stop    int32

	mu   sync.Mutex
	errs []error
}

func (ps *planeState) fail(err error) {
	atomic.AddInt64(&ps.failed, 1)
	ps.mu.Lock()
	ps.errs = append(ps.errs, err)
	ps.mu.Unlock()
}

// GenerateLevel writes every chunk of the level to ds, reading src through an
// edge-extending view and downsampling by desc.Factors.  Planes are generated in
// increasing order along the slowest dimension; the governor is called after each
// plane.  onPlane, if non-nil, is called after each plane with the chunks handled.
// With FailFast the first chunk error is returned after its plane finishes.
// Cancellation is checked between chunks and between planes.
func (s *Scheduler) GenerateLevel(ctx context.Context, level Level, src source.Array, desc SourceDescriptor, ds storage.Dataset, onPlane func(chunks int64)) (LevelReport, error) {
	grid := level.Grid()
	report := LevelReport{
		Level:       level.Index,
		Source:      desc,
		ChunksTotal: grid.NumChunks(),
	}
	timedLog := mip.NewTimeLog()
	if !src.Dims().Equal(level.Dims.Mul(desc.Factors)) {
		mip.Debugf("Level %d source dims %s padded by border extension to %s\n", level.Index, src.Dims(), level.Dims.Mul(desc.Factors))
	}
	ext := source.ExtendBorder(src)
	usedLoopback := desc.Kind == Loopback

	var estimateOnce sync.Once
	for plane := int64(0); plane < grid.NumPlanes(); plane++ {
		if err := ctx.Err(); err != nil {
			report.ChunksSkipped = report.ChunksTotal - report.ChunksWritten - report.ChunksFailed
			report.Elapsed = timedLog.Elapsed()
			return report, err
		}
		positions := grid.PlanePositions(plane)
		queue := make(chan mip.Point, len(positions))
		for _, pos := range positions {
			queue <- pos
		}
		close(queue)

		var ps planeState
		numWorkers := s.cfg.Threads
		if numWorkers > len(positions) {
			numWorkers = len(positions)
		}
		tasks := make([]func(), numWorkers)
		for i := range tasks {
			tasks[i] = func() {
				for pos := range queue {
					if ctx.Err() != nil || atomic.LoadInt32(&ps.stop) != 0 {
						atomic.AddInt64(&ps.skipped, 1)
						continue
					}
					in, err := s.generateChunk(ext, grid, desc, ds, pos)
					if err != nil {
						mip.Errorf("Level %d chunk %s: %v\n", level.Index, pos, err)
						ps.fail(err)
						if s.cfg.Policy == FailFast {
							atomic.StoreInt32(&ps.stop, 1)
						}
						continue
					}
					atomic.AddInt64(&ps.written, 1)
					if in != nil {
						estimateOnce.Do(func() {
							perChunk := int64(size.Of(in))
							mip.Debugf("Level %d working set estimate: %s per chunk, %s per plane of %d chunks\n",
								level.Index, mip.HumanBytes(perChunk), mip.HumanBytes(perChunk*grid.PlaneChunks()), grid.PlaneChunks())
						})
					}
				}
			}
		}
		s.pool.RunAll(tasks)

		report.Planes++
		report.ChunksWritten += ps.written
		report.ChunksFailed += ps.failed
		report.ChunksSkipped += ps.skipped
		for _, err := range ps.errs {
			if len(report.Errors) < maxReportedErrors {
				report.Errors = append(report.Errors, err)
			}
		}
		if s.cfg.Governor != nil {
			s.cfg.Governor.AfterPlane(usedLoopback)
		}
		if onPlane != nil {
			onPlane(int64(len(positions)))
		}
		if s.cfg.Policy == FailFast && len(ps.errs) > 0 {
			report.ChunksSkipped = report.ChunksTotal - report.ChunksWritten - report.ChunksFailed
			report.Elapsed = timedLog.Elapsed()
			return report, ps.errs[0]
		}
		if err := ctx.Err(); err != nil {
			report.ChunksSkipped = report.ChunksTotal - report.ChunksWritten - report.ChunksFailed
			report.Elapsed = timedLog.Elapsed()
			return report, err
		}
	}
	report.Elapsed = timedLog.Elapsed()
	timedLog.Infof("Generated %s", report)
	return report, nil
}

// generateChunk produces and saves one chunk, returning the input buffer read.
// Panics are converted to errors so a bad chunk can't take down its worker.
func (s *Scheduler) generateChunk(ext source.Array, grid WorkGrid, desc SourceDescriptor, ds storage.Dataset, gridPos mip.Point) (in *mip.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic generating chunk %s: %v", gridPos, r)
		}
	}()
	region := grid.ChunkRegion(gridPos)
	inRegion := mip.Region{Offset: region.Offset.Mul(desc.Factors), Size: region.Size.Mul(desc.Factors)}
	in, err = ext.ReadRegion(inRegion.Offset, inRegion.Size)
	if err != nil {
		return nil, &mip.SourceReadError{Region: inRegion, Err: err}
	}
	out, err := downres.Downsample(s.cfg.Method, in, desc.Factors)
	if err != nil {
		return nil, err
	}
	if err := ds.SaveBlock(out, gridPos); err != nil {
		return nil, &mip.SinkWriteError{Path: ds.Path(), GridPos: gridPos, Err: err}
	}
	return in, nil
}

// IsChunkError returns true for errors confined to a single chunk.
func IsChunkError(err error) bool {
	var sre *mip.SourceReadError
	var swe *mip.SinkWriteError
	return errors.As(err, &sre) || errors.As(err, &swe)
}
