package pyramid

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/source"
	"github.com/janelia-flyem/mipexport/storage"
)

// Export writes all planned levels of src to the sink, one dataset per level, and
// returns the descriptor of what was written.  Levels are generated strictly in order.
// With BestEffort, failed chunks leave their level incomplete and incomplete levels are
// never used for loopback; the export still returns a nil error.  With FailFast, the
// first chunk or dataset error stops the export.  If the sink is a
// storage.DescriptorWriter, the descriptor is written to it at the end.
func Export(ctx context.Context, src source.Array, sink storage.ChunkedSink, levels []Level, cfg Config) (*MipmapInfo, error) {
	cfg = cfg.withDefaults()
	if len(levels) == 0 {
		return nil, mip.NewPlanningError(-1, "no levels to export")
	}
	if !levels[0].Dims.Equal(src.Dims()) {
		return nil, mip.NewPlanningError(0, "level 0 dims %s don't match source dims %s", levels[0].Dims, src.Dims())
	}
	for l := range levels {
		if levels[l].Index != l {
			return nil, mip.NewPlanningError(l, "level has index %d", levels[l].Index)
		}
	}

	timedLog := mip.NewTimeLog()
	pool := NewWorkerPool(cfg.Threads)
	defer pool.Close()
	sched := NewScheduler(pool, cfg)
	tracker := newProgressTracker(cfg.Progress, levels)

	info := &MipmapInfo{
		DataType:    src.DataType(),
		Compression: cfg.Compression,
		Method:      cfg.Method,
	}
	datasets := make(map[int]storage.Dataset, len(levels))
	complete := make(map[int]bool, len(levels))
	for l, level := range levels {
		if err := ctx.Err(); err != nil {
			return info, err
		}
		desc := ResolveSource(levels, l, src, cfg.Heuristic, func(p int) bool { return complete[p] })
		var in source.Array = src
		if desc.Kind == Loopback {
			in = NewLoopbackSource(datasets[desc.Level])
		}
		mip.Infof("Generating %s from %s\n", level, desc)

		path := cfg.DatasetPath(l)
		ml := MipmapLevel{
			Path:              path,
			Dims:              level.Dims,
			ResolutionFactors: level.FactorsToOriginal,
			ChunkShape:        level.BlockShape,
			Source:            desc,
		}
		attrs := levelAttributes(level, src.DataType())
		attrs.Compression = cfg.Compression
		ds, err := sink.CreateDataset(path, attrs)
		if err != nil {
			err = &mip.SinkWriteError{Path: path, Err: err}
			mip.Errorf("Level %d: %v\n", l, err)
			numChunks := level.Grid().NumChunks()
			ml.ChunksFailed = numChunks
			info.Levels = append(info.Levels, ml)
			tracker.advance(l, numChunks, numChunks, numChunks)
			if cfg.Policy == FailFast {
				return info, err
			}
			continue
		}
		datasets[l] = ds

		var levelDone int64
		numChunks := level.Grid().NumChunks()
		report, err := sched.GenerateLevel(ctx, level, in, desc, ds, func(chunks int64) {
			levelDone += chunks
			tracker.advance(l, levelDone, numChunks, chunks)
		})
		ml.ChunksWritten = report.ChunksWritten
		ml.ChunksFailed = report.ChunksFailed
		ml.Complete = report.Complete()
		info.Levels = append(info.Levels, ml)
		complete[l] = ml.Complete
		if err != nil {
			return info, fmt.Errorf("level %d: %w", l, err)
		}
		if !ml.Complete {
			mip.Warningf("Level %d incomplete: %d of %d chunks failed\n", l, report.ChunksFailed, report.ChunksTotal)
		}
	}

	if dw, ok := sink.(storage.DescriptorWriter); ok {
		data, err := info.JSON()
		if err != nil {
			return info, err
		}
		if err := dw.WriteMipmapInfo(data); err != nil {
			err = &mip.SinkWriteError{Path: storage.InfoKey, Err: err}
			if cfg.Policy == FailFast {
				return info, err
			}
			mip.Errorf("%v\n", err)
		}
	}
	timedLog.Infof("Exported %d levels", len(levels))
	return info, nil
}

func levelAttributes(level Level, dtype mip.DataType) storage.DatasetAttributes {
	return storage.DatasetAttributes{
		Dimensions: level.Dims,
		BlockSize:  level.BlockShape,
		DataType:   dtype,
	}
}
