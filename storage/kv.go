package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/janelia-flyem/mipexport/mip"
)

// KeyValueStore is the minimal contract an engine must satisfy to back a KVSink.
type KeyValueStore interface {
	// Get returns the value for a key or nil if the key doesn't exist.
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Close() error
}

// InfoKey is the key under which the pyramid descriptor is stored.
const InfoKey = "info"

// KVSink implements ChunkedSink on top of a KeyValueStore.
type KVSink struct {
	name  string
	kv    KeyValueStore
	codec AttributesCodec

	mu       sync.Mutex
	datasets map[string]*kvDataset
}

// NewKVSink returns a sink that stores blocks and attributes in the given store.
func NewKVSink(name string, kv KeyValueStore, codec AttributesCodec) *KVSink {
	return &KVSink{
		name:     name,
		kv:       kv,
		codec:    codec,
		datasets: make(map[string]*kvDataset),
	}
}

func (s *KVSink) String() string {
	return s.name
}

// Store returns the underlying key-value store.
func (s *KVSink) Store() KeyValueStore {
	return s.kv
}

func (s *KVSink) CreateDataset(path string, attrs DatasetAttributes) (Dataset, error) {
	path = cleanPath(path)
	if path == "" {
		return nil, fmt.Errorf("dataset path must be non-empty")
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	data, err := s.codec.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Put(s.codec.Key(path), data); err != nil {
		return nil, fmt.Errorf("unable to write attributes of dataset %q: %v", path, err)
	}
	ds := &kvDataset{sink: s, path: path, attrs: attrs}
	s.mu.Lock()
	s.datasets[path] = ds
	s.mu.Unlock()
	mip.Debugf("Created dataset %q in %s: dims %s, block %s, %s\n", path, s.name, attrs.Dimensions, attrs.BlockSize, attrs.DataType)
	return ds, nil
}

func (s *KVSink) OpenDataset(path string) (Dataset, error) {
	path = cleanPath(path)
	s.mu.Lock()
	ds, found := s.datasets[path]
	s.mu.Unlock()
	if found {
		return ds, nil
	}
	data, err := s.kv.Get(s.codec.Key(path))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("dataset %q not found in %s", path, s.name)
	}
	attrs, err := s.codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("bad attributes for dataset %q: %v", path, err)
	}
	ds = &kvDataset{sink: s, path: path, attrs: attrs}
	s.mu.Lock()
	s.datasets[path] = ds
	s.mu.Unlock()
	return ds, nil
}

func (s *KVSink) WriteMipmapInfo(data []byte) error {
	return s.kv.Put(InfoKey, data)
}

// ReadMipmapInfo returns the stored descriptor or nil if none was written.
func (s *KVSink) ReadMipmapInfo() ([]byte, error) {
	return s.kv.Get(InfoKey)
}

func (s *KVSink) Close() error {
	return s.kv.Close()
}

func cleanPath(path string) string {
	return strings.Trim(path, "/")
}

type kvDataset struct {
	sink  *KVSink
	path  string
	attrs DatasetAttributes
}

func (ds *kvDataset) Path() string {
	return ds.path
}

func (ds *kvDataset) Attributes() DatasetAttributes {
	return ds.attrs
}

func (ds *kvDataset) SaveBlock(buf *mip.Buffer, gridPos mip.Point) error {
	data, err := EncodeBlock(ds.attrs, buf, gridPos)
	if err != nil {
		return err
	}
	return ds.sink.kv.Put(BlockKey(ds.path, gridPos), data)
}

func (ds *kvDataset) ReadBlock(gridPos mip.Point) (*mip.Buffer, error) {
	data, err := ds.sink.kv.Get(BlockKey(ds.path, gridPos))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrBlockNotFound
	}
	return DecodeBlock(ds.attrs, gridPos, data)
}
