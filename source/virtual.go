package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/coocood/freecache"
	"golang.org/x/sync/singleflight"

	"github.com/janelia-flyem/mipexport/mip"
)

// DefaultCacheBytes is the plane cache size used when none is given.
const DefaultCacheBytes = 256 * mip.Mega

// PlaneLoader returns one plane, i.e., all elements with the given coordinate along
// the slowest dimension.  The returned buffer has size 1 in that dimension.
type PlaneLoader func(plane int64) (*mip.Buffer, error)

// Virtual is a streamed Array that materializes planes on demand.  Loaded planes
// are kept in a freecache cache that is shared by all readers and that is only
// dropped through ReleaseCache.
type Virtual struct {
	dims   mip.Point
	dtype  mip.DataType
	loader PlaneLoader
	closer io.Closer

	cache     *freecache.Cache
	pieceSize int
	group     singleflight.Group

	loads int64 // number of planes loaded through the loader
}

// NewVirtual returns a virtual array that loads planes with the given loader and caches
// up to cacheBytes of plane data.
func NewVirtual(dims mip.Point, dtype mip.DataType, cacheBytes int, loader PlaneLoader) (*Virtual, error) {
	if !dims.Positive() {
		return nil, fmt.Errorf("bad virtual array dimensions %s", dims)
	}
	if loader == nil {
		return nil, fmt.Errorf("virtual array requires a plane loader")
	}
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheBytes
	}
	// freecache rejects entries larger than about 1/1024 of its size, so planes
	// are stored as pieces well under that limit.
	pieceSize := cacheBytes / 4096
	if pieceSize < 64 {
		pieceSize = 64
	}
	return &Virtual{
		dims:      dims.Duplicate(),
		dtype:     dtype,
		loader:    loader,
		cache:     freecache.NewCache(cacheBytes),
		pieceSize: pieceSize,
	}, nil
}

// OpenRawFile returns a virtual array over a raw little-endian file holding the
// elements in row-major order with dimension 0 innermost.
func OpenRawFile(path string, dims mip.Point, dtype mip.DataType, cacheBytes int) (*Virtual, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open raw source %q: %v", path, err)
	}
	n := len(dims)
	planeSize := dims.Duplicate()
	planeSize[n-1] = 1
	planeBytes := planeSize.Prod() * int64(mip.DataTypeBytes(dtype))
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if expected := planeBytes * dims[n-1]; fi.Size() < expected {
		f.Close()
		return nil, fmt.Errorf("raw source %q has %d bytes, expected %d for %s %s", path, fi.Size(), expected, dtype, dims)
	}
	loader := func(plane int64) (*mip.Buffer, error) {
		data := make([]byte, planeBytes)
		if _, err := f.ReadAt(data, plane*planeBytes); err != nil {
			return nil, fmt.Errorf("can't read plane %d of %q: %v", plane, path, err)
		}
		return mip.BufferFromBytes(dtype, planeSize, data)
	}
	v, err := NewVirtual(dims, dtype, cacheBytes, loader)
	if err != nil {
		f.Close()
		return nil, err
	}
	v.closer = f
	mip.Infof("Opened raw %s source %q with dimensions %s\n", dtype, path, dims)
	return v, nil
}

func (v *Virtual) Dims() mip.Point {
	return v.dims
}

func (v *Virtual) DataType() mip.DataType {
	return v.dtype
}

// Close releases the cache and any underlying file.
func (v *Virtual) Close() error {
	v.cache.Clear()
	if v.closer != nil {
		return v.closer.Close()
	}
	return nil
}

// ReleaseCache drops all materialized planes.
func (v *Virtual) ReleaseCache() {
	n := v.cache.EntryCount()
	v.cache.Clear()
	mip.Debugf("Released %d cached plane pieces of virtual source %s\n", n, v.dims)
}

// Loads returns the number of planes that had to be loaded, i.e., cache misses.
func (v *Virtual) Loads() int64 {
	return atomic.LoadInt64(&v.loads)
}

// CachedPieces returns the number of plane pieces currently cached.
func (v *Virtual) CachedPieces() int64 {
	return v.cache.EntryCount()
}

func (v *Virtual) planeSize() mip.Point {
	size := v.dims.Duplicate()
	size[len(size)-1] = 1
	return size
}

func pieceKey(plane int64, piece int) []byte {
	return []byte(strconv.FormatInt(plane, 10) + "/" + strconv.Itoa(piece))
}

var errShortPiece = errors.New("cached plane piece shorter than expected")

// cachedRow copies len(dst) bytes starting at byte beg of a plane from the cached
// pieces that overlap them.  It returns false if any piece is missing.
func (v *Virtual) cachedRow(plane int64, beg int, dst []byte) bool {
	for len(dst) > 0 {
		piece, within := beg/v.pieceSize, beg%v.pieceSize
		var n int
		err := v.cache.GetFn(pieceKey(plane, piece), func(value []byte) error {
			if within >= len(value) {
				return errShortPiece
			}
			n = copy(dst, value[within:])
			return nil
		})
		if err != nil {
			return false
		}
		dst = dst[n:]
		beg += n
	}
	return true
}

func (v *Virtual) store(plane int64, data []byte) {
	for piece, beg := 0, 0; beg < len(data); piece, beg = piece+1, beg+v.pieceSize {
		end := beg + v.pieceSize
		if end > len(data) {
			end = len(data)
		}
		if err := v.cache.Set(pieceKey(plane, piece), data[beg:end], 0); err != nil {
			mip.Debugf("Unable to cache plane %d piece %d: %v\n", plane, piece, err)
			return
		}
	}
}

// loadPlane returns the serialized plane, loading it at most once across concurrent
// callers.  The returned bytes are shared and must not be modified.
func (v *Virtual) loadPlane(z int64) ([]byte, error) {
	size := v.planeSize()
	result, err, _ := v.group.Do(strconv.FormatInt(z, 10), func() (interface{}, error) {
		buf, err := v.loader(z)
		if err != nil {
			return nil, err
		}
		if buf.Type != v.dtype || !buf.Size.Equal(size) {
			return nil, fmt.Errorf("plane loader returned %s %s, expected %s %s", buf.Type, buf.Size, v.dtype, size)
		}
		atomic.AddInt64(&v.loads, 1)
		data, err := buf.Bytes()
		if err != nil {
			return nil, err
		}
		v.store(z, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// ReadRegion copies each requested row straight from the cached plane pieces it
// overlaps.  A plane with any missing piece is loaded once for the call.
func (v *Virtual) ReadRegion(offset, size mip.Point) (*mip.Buffer, error) {
	if err := checkRegion(v.dims, offset, size); err != nil {
		return nil, err
	}
	n := len(size)
	elemBytes := mip.DataTypeBytes(v.dtype)
	out := make([]byte, int(size.Prod())*elemBytes)
	loaded := make(map[int64][]byte)
	readRow := func(z int64, beg int, dst []byte) error {
		data, found := loaded[z]
		if !found {
			if v.cachedRow(z, beg, dst) {
				return nil
			}
			var err error
			if data, err = v.loadPlane(z); err != nil {
				return err
			}
			loaded[z] = data
		}
		copy(dst, data[beg:beg+len(dst)])
		return nil
	}

	if n == 1 {
		for z := int64(0); z < size[0]; z++ {
			if err := readRow(offset[0]+z, 0, out[int(z)*elemBytes:int(z+1)*elemBytes]); err != nil {
				return nil, err
			}
		}
		return mip.BufferFromBytes(v.dtype, size, out)
	}

	planeStrides := v.planeSize().Strides()
	rowBytes := int(size[0]) * elemBytes
	var pos int
	var err error
	mip.ForEachRow(size, func(row mip.Point) {
		if err != nil {
			return
		}
		var idx int64
		for d := 0; d < n-1; d++ {
			idx += (offset[d] + row[d]) * planeStrides[d]
		}
		err = readRow(offset[n-1]+row[n-1], int(idx)*elemBytes, out[pos:pos+rowBytes])
		pos += rowBytes
	})
	if err != nil {
		return nil, err
	}
	return mip.BufferFromBytes(v.dtype, size, out)
}
