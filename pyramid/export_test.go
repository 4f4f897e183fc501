package pyramid

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/janelia-flyem/mipexport/downres"
	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/source"
)

func workedExampleLevels(t *testing.T) []Level {
	block := mip.NewPoint(32, 32, 8)
	levels, err := Plan(mip.NewPoint(256, 256, 64),
		[]mip.Point{mip.NewPoint(1, 1, 1), mip.NewPoint(2, 2, 1), mip.NewPoint(4, 4, 2)},
		[]mip.Point{block, block, block})
	if err != nil {
		t.Fatal(err)
	}
	return levels
}

func TestExportWorkedExample(t *testing.T) {
	src := uint16Source(mip.NewPoint(256, 256, 64), func(pos mip.Point) uint16 {
		return uint16(pos[0] + pos[1]*3 + pos[2]*7)
	})
	sink, store := testSink("worked")
	cfg := DefaultConfig(4, 1<<30)
	info, err := Export(context.Background(), src, sink, workedExampleLevels(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	expected := []int{512, 128, 16}
	total := 0
	for l, n := range expected {
		keys := blockKeys(store, cfg.DatasetPath(l))
		if len(keys) != n {
			t.Errorf("level %d: expected %d chunks written, got %d", l, n, len(keys))
		}
		if info.Levels[l].ChunksWritten != int64(n) || !info.Levels[l].Complete {
			t.Errorf("level %d: bad descriptor %+v", l, info.Levels[l])
		}
		total += len(keys)
	}
	if total != 656 {
		t.Errorf("expected 656 chunks total, got %d", total)
	}

	// descriptor stored in the sink
	data, err := sink.ReadMipmapInfo()
	if err != nil {
		t.Fatal(err)
	}
	var stored struct {
		Levels []struct {
			ResolutionFactors []int64 `json:"resolutionFactors"`
			ChunkShape        []int64 `json:"chunkShape"`
		} `json:"levels"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("bad stored descriptor %s: %v", data, err)
	}
	if len(stored.Levels) != 3 || stored.Levels[2].ResolutionFactors[2] != 2 || stored.Levels[1].ChunkShape[0] != 32 {
		t.Errorf("bad stored descriptor: %s", data)
	}
}

func TestExportIdentityLevel(t *testing.T) {
	dims := mip.NewPoint(20, 9, 5)
	src := uint16Source(dims, func(pos mip.Point) uint16 { return uint16(pos[0]*pos[1] + pos[2]) })
	for _, method := range []downres.Method{downres.Average, downres.Subsample} {
		sink, _ := testSink("identity")
		levels, err := Plan(dims, []mip.Point{mip.NewPoint(1, 1, 1)}, []mip.Point{mip.NewPoint(8, 4, 2)})
		if err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig(3, 0)
		cfg.Method = method
		if _, err := Export(context.Background(), src, sink, levels, cfg); err != nil {
			t.Fatal(err)
		}
		ds, err := sink.OpenDataset("s0")
		if err != nil {
			t.Fatal(err)
		}
		written, err := NewLoopbackSource(ds).ReadRegion(mip.NewPoint(0, 0, 0), dims)
		if err != nil {
			t.Fatal(err)
		}
		orig, _ := src.ReadRegion(mip.NewPoint(0, 0, 0), dims)
		a, _ := written.Bytes()
		b, _ := orig.Bytes()
		if string(a) != string(b) {
			t.Errorf("%s: level 0 is not byte-identical to source", method)
		}
	}
}

func TestLoopbackEquivalence(t *testing.T) {
	dims := mip.NewPoint(64, 48, 16)
	src := float32Source(dims, func(pos mip.Point) float32 {
		return float32(math.Sin(float64(pos[0])*0.3)*100 + float64(pos[1]*pos[2]%17))
	})
	block := mip.NewPoint(16, 16, 4)
	levels, err := Plan(dims,
		[]mip.Point{mip.NewPoint(1, 1, 1), mip.NewPoint(2, 2, 2), mip.NewPoint(4, 4, 4)},
		[]mip.Point{block, block, block})
	if err != nil {
		t.Fatal(err)
	}

	direct, _ := testSink("direct")
	cfg := DefaultConfig(4, 0)
	cfg.Heuristic = NeverLoopback
	directInfo, err := Export(context.Background(), src, direct, levels, cfg)
	if err != nil {
		t.Fatal(err)
	}
	looped, _ := testSink("loopback")
	cfg.Heuristic = AlwaysLoopback
	loopInfo, err := Export(context.Background(), src, looped, levels, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if directInfo.Levels[2].Source.Kind != Original {
		t.Errorf("expected original source for direct level 2, got %s", directInfo.Levels[2].Source)
	}
	if s := loopInfo.Levels[2].Source; s.Kind != Loopback || s.Level != 1 || !s.Factors.Equal(mip.NewPoint(2, 2, 2)) {
		t.Errorf("expected loopback from level 1 for level 2, got %s", s)
	}

	for _, path := range []string{"s1", "s2"} {
		dsA, err := direct.OpenDataset(path)
		if err != nil {
			t.Fatal(err)
		}
		dsB, err := looped.OpenDataset(path)
		if err != nil {
			t.Fatal(err)
		}
		levelDims := dsA.Attributes().Dimensions
		a, err := NewLoopbackSource(dsA).ReadRegion(mip.NewPoint(0, 0, 0), levelDims)
		if err != nil {
			t.Fatal(err)
		}
		b, err := NewLoopbackSource(dsB).ReadRegion(mip.NewPoint(0, 0, 0), levelDims)
		if err != nil {
			t.Fatal(err)
		}
		va, _ := mip.Values[float32](a)
		vb, _ := mip.Values[float32](b)
		for i := range va {
			if math.Abs(float64(va[i]-vb[i])) > 1e-3 {
				t.Fatalf("%s element %d: direct %f vs loopback %f", path, i, va[i], vb[i])
			}
		}
	}
}

func TestPlaneBoundAndLevelOrdering(t *testing.T) {
	dims := mip.NewPoint(64, 64, 32)
	base := uint16Source(dims, func(pos mip.Point) uint16 { return uint16(pos[2]) })
	var inFlight, maxInFlight int64
	src := countingSource{Array: base, inFlight: &inFlight, maxInFlight: &maxInFlight}

	block := mip.NewPoint(16, 16, 4)
	levels, err := Plan(dims,
		[]mip.Point{mip.NewPoint(1, 1, 1), mip.NewPoint(2, 2, 1), mip.NewPoint(2, 2, 2)},
		[]mip.Point{block, block, block})
	if err != nil {
		t.Fatal(err)
	}
	kv, _ := testSink("bound")
	sink := &recordingSink{ChunkedSink: kv, inFlight: &inFlight}
	cfg := DefaultConfig(64, 0)
	cfg.Heuristic = NeverLoopback
	if _, err := Export(context.Background(), src, sink, levels, cfg); err != nil {
		t.Fatal(err)
	}
	maxPlane := levels[0].Grid().PlaneChunks()
	if maxInFlight > maxPlane {
		t.Errorf("%d chunks in flight, plane only has %d", maxInFlight, maxPlane)
	}
	if maxInFlight < 1 {
		t.Errorf("instrumentation recorded no chunks")
	}

	var prevLast int64
	for l := range levels {
		first, last, n := sink.levelWrites(cfg.DatasetPath(l))
		if int64(n) != levels[l].Grid().NumChunks() {
			t.Errorf("level %d: %d writes, expected %d", l, n, levels[l].Grid().NumChunks())
		}
		if first < prevLast {
			t.Errorf("level %d first write %d precedes previous level last write %d", l, first, prevLast)
		}
		prevLast = last
	}
}

func TestErrorPolicies(t *testing.T) {
	dims := mip.NewPoint(32, 32, 8)
	src := uint16Source(dims, func(pos mip.Point) uint16 { return 7 })
	block := mip.NewPoint(8, 8, 2)
	levels, err := Plan(dims,
		[]mip.Point{mip.NewPoint(1, 1, 1), mip.NewPoint(2, 2, 2), mip.NewPoint(4, 4, 4)},
		[]mip.Point{block, block, block})
	if err != nil {
		t.Fatal(err)
	}
	failAt := func(path string, pos mip.Point) bool {
		return path == "s0" && pos.Equal(mip.NewPoint(1, 2, 0))
	}

	// Best effort: level 0 is incomplete, later levels are written from the original.
	kv, store := testSink("best-effort")
	sink := &recordingSink{ChunkedSink: kv, failBlock: failAt}
	cfg := DefaultConfig(4, 0)
	cfg.Heuristic = AlwaysLoopback
	info, err := Export(context.Background(), src, sink, levels, cfg)
	if err != nil {
		t.Fatalf("best effort export returned error: %v", err)
	}
	if info.Levels[0].Complete || info.Levels[0].ChunksFailed != 1 {
		t.Errorf("expected level 0 incomplete with 1 failed chunk, got %+v", info.Levels[0])
	}
	if info.Levels[1].Source.Kind != Original {
		t.Errorf("incomplete level 0 must not be used for loopback, got %s", info.Levels[1].Source)
	}
	if info.Levels[2].Source.Kind != Loopback || info.Levels[2].Source.Level != 1 {
		t.Errorf("expected level 2 to loop back to complete level 1, got %s", info.Levels[2].Source)
	}
	if n := len(blockKeys(store, "s0")); n != int(levels[0].Grid().NumChunks())-1 {
		t.Errorf("expected all but one level 0 chunk written, got %d", n)
	}
	if info.Complete() {
		t.Errorf("descriptor should report incomplete pyramid")
	}

	// Fail fast: export stops after the failing plane with a SinkWriteError.
	kv, store = testSink("fail-fast")
	sink = &recordingSink{ChunkedSink: kv, failBlock: failAt}
	cfg.Policy = FailFast
	info, err = Export(context.Background(), src, sink, levels, cfg)
	var swe *mip.SinkWriteError
	if !errors.As(err, &swe) {
		t.Fatalf("expected SinkWriteError, got %v", err)
	}
	if !swe.GridPos.Equal(mip.NewPoint(1, 2, 0)) {
		t.Errorf("error reports wrong block %s", swe.GridPos)
	}
	if len(info.Levels) != 1 {
		t.Errorf("expected export to stop at level 0, got %d levels", len(info.Levels))
	}
	if n := len(blockKeys(store, "s0")); int64(n) > levels[0].Grid().PlaneChunks() {
		t.Errorf("fail fast wrote %d chunks, more than the first plane", n)
	}
	if keys := store.Keys("s1/"); len(keys) != 0 {
		t.Errorf("fail fast should not create level 1, found %v", keys)
	}
}

func TestDatasetCreateFailure(t *testing.T) {
	dims := mip.NewPoint(16, 16)
	src := uint16Source(dims, func(pos mip.Point) uint16 { return 1 })
	levels, err := Plan(dims, []mip.Point{mip.NewPoint(1, 1), mip.NewPoint(2, 2)},
		[]mip.Point{mip.NewPoint(8, 8), mip.NewPoint(8, 8)})
	if err != nil {
		t.Fatal(err)
	}
	kv, _ := testSink("create")
	sink := &recordingSink{ChunkedSink: kv, failCreate: "s1"}
	info, err := Export(context.Background(), src, sink, levels, DefaultConfig(2, 0))
	if err != nil {
		t.Fatal(err)
	}
	if info.Levels[1].Complete || info.Levels[1].ChunksFailed != 1 {
		t.Errorf("expected level 1 marked failed, got %+v", info.Levels[1])
	}
	cfg := DefaultConfig(2, 0)
	cfg.Policy = FailFast
	kv, _ = testSink("create-ff")
	sink = &recordingSink{ChunkedSink: kv, failCreate: "s1"}
	if _, err := Export(context.Background(), src, sink, levels, cfg); err == nil {
		t.Errorf("expected fail fast error on dataset creation")
	}
}

type panicSource struct {
	source.Array
}

func (ps panicSource) ReadRegion(offset, size mip.Point) (*mip.Buffer, error) {
	if offset[1] == 0 && offset[0] == 0 {
		panic("bad region")
	}
	return ps.Array.ReadRegion(offset, size)
}

func TestChunkPanicIsolated(t *testing.T) {
	dims := mip.NewPoint(16, 16)
	src := panicSource{uint16Source(dims, func(pos mip.Point) uint16 { return 3 })}
	levels, err := Plan(dims, []mip.Point{mip.NewPoint(1, 1), mip.NewPoint(2, 2)},
		[]mip.Point{mip.NewPoint(4, 4), mip.NewPoint(4, 4)})
	if err != nil {
		t.Fatal(err)
	}
	sink, _ := testSink("panic")
	info, err := Export(context.Background(), src, sink, levels, DefaultConfig(2, 0))
	if err != nil {
		t.Fatal(err)
	}
	for l, ml := range info.Levels {
		if ml.ChunksFailed != 1 || ml.ChunksWritten != levels[l].Grid().NumChunks()-1 {
			t.Errorf("level %d: expected exactly one failed chunk, got %+v", l, ml)
		}
	}
}

func TestSourceReadError(t *testing.T) {
	dims := mip.NewPoint(8, 8)
	src := uint16Source(dims, func(pos mip.Point) uint16 { return 3 })
	levels, err := Plan(dims, []mip.Point{mip.NewPoint(1, 1)}, []mip.Point{mip.NewPoint(4, 4)})
	if err != nil {
		t.Fatal(err)
	}
	sink, _ := testSink("readerr")
	ds, err := sink.CreateDataset("s0", levelAttributes(levels[0], src.DataType()))
	if err != nil {
		t.Fatal(err)
	}
	pool := NewWorkerPool(2)
	defer pool.Close()
	cfg := DefaultConfig(2, 0)
	cfg.Policy = FailFast
	sched := NewScheduler(pool, cfg)

	// Loopback from an empty dataset can't find any blocks.
	empty := NewLoopbackSource(ds)
	desc := SourceDescriptor{Kind: Loopback, Level: 0, Factors: mip.NewPoint(1, 1)}
	report, err := sched.GenerateLevel(context.Background(), levels[0], empty, desc, ds, nil)
	var sre *mip.SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("expected SourceReadError, got %v", err)
	}
	if !IsChunkError(err) {
		t.Errorf("source read error should be a chunk error")
	}
	if report.Complete() || report.ChunksWritten != 0 {
		t.Errorf("bad report: %s", report)
	}
}

func TestGovernorAndProgress(t *testing.T) {
	dims := mip.NewPoint(32, 32, 16)
	src := uint16Source(dims, func(pos mip.Point) uint16 { return uint16(pos[0]) })
	block := mip.NewPoint(8, 8, 4)
	levels, err := Plan(dims,
		[]mip.Point{mip.NewPoint(1, 1, 1), mip.NewPoint(2, 2, 2), mip.NewPoint(4, 4, 4)},
		[]mip.Point{block, block, block})
	if err != nil {
		t.Fatal(err)
	}
	var calls, loopbackCalls int
	var overall []float64
	var levelFractions = make(map[int][]float64)
	cfg := DefaultConfig(3, 0)
	cfg.Heuristic = AlwaysLoopback
	cfg.Governor = GovernorFunc(func(usedLoopback bool) {
		calls++
		if usedLoopback {
			loopbackCalls++
		}
	})
	cfg.Progress = ProgressFunc(func(level int, levelFraction, o float64) {
		overall = append(overall, o)
		levelFractions[level] = append(levelFractions[level], levelFraction)
	})
	sink, _ := testSink("governor")
	if _, err := Export(context.Background(), src, sink, levels, cfg); err != nil {
		t.Fatal(err)
	}
	var planes, loopbackPlanes int
	for l, level := range levels {
		planes += int(level.Grid().NumPlanes())
		if l > 0 {
			loopbackPlanes += int(level.Grid().NumPlanes())
		}
	}
	if calls != planes {
		t.Errorf("expected %d governor calls, one per plane, got %d", planes, calls)
	}
	if loopbackCalls != loopbackPlanes {
		t.Errorf("expected %d loopback governor calls, got %d", loopbackPlanes, loopbackCalls)
	}
	for i := 1; i < len(overall); i++ {
		if overall[i] < overall[i-1] {
			t.Fatalf("overall progress decreased: %v", overall)
		}
	}
	if len(overall) == 0 || overall[len(overall)-1] != 1 {
		t.Errorf("overall progress should end at 1: %v", overall)
	}
	for l, fractions := range levelFractions {
		if fractions[len(fractions)-1] != 1 {
			t.Errorf("level %d progress should end at 1: %v", l, fractions)
		}
	}
}

func TestExportCancelled(t *testing.T) {
	dims := mip.NewPoint(16, 16)
	src := uint16Source(dims, func(pos mip.Point) uint16 { return 1 })
	levels, err := Plan(dims, []mip.Point{mip.NewPoint(1, 1)}, []mip.Point{mip.NewPoint(4, 4)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink, store := testSink("cancel")
	if _, err := Export(ctx, src, sink, levels, DefaultConfig(2, 0)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if n := len(blockKeys(store, "s0")); n != 0 {
		t.Errorf("cancelled export wrote %d chunks", n)
	}
}

func TestCancelBetweenPlanes(t *testing.T) {
	dims := mip.NewPoint(8, 8, 8)
	src := uint16Source(dims, func(pos mip.Point) uint16 { return 1 })
	levels, err := Plan(dims, []mip.Point{mip.NewPoint(1, 1, 1)}, []mip.Point{mip.NewPoint(4, 4, 2)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := DefaultConfig(2, 0)
	cfg.Governor = GovernorFunc(func(bool) { cancel() })
	sink, store := testSink("cancel-plane")
	_, err = Export(ctx, src, sink, levels, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if n := len(blockKeys(store, "s0")); int64(n) != levels[0].Grid().PlaneChunks() {
		t.Errorf("expected only the first plane written, got %d chunks", n)
	}
}
