package pyramid

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/source"
	"github.com/janelia-flyem/mipexport/storage"
	"github.com/janelia-flyem/mipexport/storage/memstore"
)

func uint16Source(dims mip.Point, f func(pos mip.Point) uint16) *source.Memory {
	n := dims.Prod()
	values := make([]uint16, n)
	pos := make(mip.Point, len(dims))
	for i := int64(0); i < n; i++ {
		values[i] = f(pos)
		for d := range pos {
			pos[d]++
			if pos[d] < dims[d] {
				break
			}
			pos[d] = 0
		}
	}
	buf, err := mip.NewBufferFromSlice(dims, values)
	if err != nil {
		panic(err)
	}
	return source.NewMemory(buf)
}

func float32Source(dims mip.Point, f func(pos mip.Point) float32) *source.Memory {
	n := dims.Prod()
	values := make([]float32, n)
	pos := make(mip.Point, len(dims))
	for i := int64(0); i < n; i++ {
		values[i] = f(pos)
		for d := range pos {
			pos[d]++
			if pos[d] < dims[d] {
				break
			}
			pos[d] = 0
		}
	}
	buf, err := mip.NewBufferFromSlice(dims, values)
	if err != nil {
		panic(err)
	}
	return source.NewMemory(buf)
}

func testSink(name string) (*storage.KVSink, *memstore.Store) {
	return memstore.NewSink(fmt.Sprintf("pyramid-test-%s", name))
}

// blockKeys returns the block keys of a dataset, excluding its attributes.
func blockKeys(store *memstore.Store, path string) []string {
	var keys []string
	for _, k := range store.Keys(path + "/") {
		if k != path+"/attributes.json" {
			keys = append(keys, k)
		}
	}
	return keys
}

// countingSource tracks chunks whose source region was read but whose block
// isn't written yet.
type countingSource struct {
	source.Array
	inFlight    *int64
	maxInFlight *int64
}

func (cs countingSource) ReadRegion(offset, size mip.Point) (*mip.Buffer, error) {
	n := atomic.AddInt64(cs.inFlight, 1)
	for {
		max := atomic.LoadInt64(cs.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt64(cs.maxInFlight, max, n) {
			break
		}
	}
	return cs.Array.ReadRegion(offset, size)
}

type writeRecord struct {
	path string
	seq  int64
}

// recordingSink wraps a sink to record block writes in order and optionally fail some.
type recordingSink struct {
	storage.ChunkedSink

	seq      int64
	inFlight *int64

	// failBlock returns true for blocks whose write should fail.
	failBlock func(path string, gridPos mip.Point) bool

	failCreate string

	mu     sync.Mutex
	writes []writeRecord
}

func (rs *recordingSink) CreateDataset(path string, attrs storage.DatasetAttributes) (storage.Dataset, error) {
	if path == rs.failCreate {
		return nil, fmt.Errorf("refusing to create %q", path)
	}
	ds, err := rs.ChunkedSink.CreateDataset(path, attrs)
	if err != nil {
		return nil, err
	}
	return &recordingDataset{Dataset: ds, sink: rs}, nil
}

func (rs *recordingSink) WriteMipmapInfo(data []byte) error {
	return rs.ChunkedSink.(storage.DescriptorWriter).WriteMipmapInfo(data)
}

func (rs *recordingSink) levelWrites(path string) (first, last int64, n int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	first = -1
	for _, w := range rs.writes {
		if w.path != path {
			continue
		}
		if first < 0 {
			first = w.seq
		}
		last = w.seq
		n++
	}
	return
}

type recordingDataset struct {
	storage.Dataset
	sink *recordingSink
}

func (rd *recordingDataset) SaveBlock(buf *mip.Buffer, gridPos mip.Point) error {
	rs := rd.sink
	if rs.inFlight != nil {
		defer atomic.AddInt64(rs.inFlight, -1)
	}
	if rs.failBlock != nil && rs.failBlock(rd.Path(), gridPos) {
		return fmt.Errorf("injected failure at %s", gridPos)
	}
	if err := rd.Dataset.SaveBlock(buf, gridPos); err != nil {
		return err
	}
	rs.mu.Lock()
	rs.seq++
	rs.writes = append(rs.writes, writeRecord{path: rd.Path(), seq: rs.seq})
	rs.mu.Unlock()
	return nil
}
