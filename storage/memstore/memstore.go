// Package memstore provides an in-process key-value sink used for testing and for
// small pyramids that are consumed by the same process.
package memstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blang/semver"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/storage"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		mip.Errorf("Unable to make semver in memstore: %v\n", err)
	}
	e := Engine{"memstore", "In-memory key-value store", ver}
	storage.RegisterEngine(e)
}

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) Schemes() []string {
	return []string{"mem-kv"}
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewSink returns a sink for "mem-kv://<name>".  Sinks with the same name share
// a store until it is closed.
func (e Engine) NewSink(ref string) (storage.ChunkedSink, error) {
	name := strings.TrimPrefix(ref, "mem-kv://")
	registryMu.Lock()
	defer registryMu.Unlock()
	s, found := registry[name]
	if !found {
		s = New(name)
		registry[name] = s
	}
	return storage.NewKVSink(s.String(), s, storage.JSONAttributes{}), nil
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Store)
)

// Store is a thread-safe in-memory key-value store.
type Store struct {
	name string

	mu   sync.RWMutex
	data map[string][]byte

	puts uint64
}

// New returns an empty store.
func New(name string) *Store {
	return &Store{name: name, data: make(map[string][]byte)}
}

// NewSink returns a sink over a fresh in-memory store.
func NewSink(name string) (*storage.KVSink, *Store) {
	s := New(name)
	return storage.NewKVSink(s.String(), s, storage.JSONAttributes{}), s
}

func (s *Store) String() string {
	return fmt.Sprintf("memstore %q", s.name)
}

func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, found := s.data[key]
	if !found {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Put(key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	atomic.AddUint64(&s.puts, 1)
	return nil
}

// Puts returns the number of Put calls made on the store.
func (s *Store) Puts() uint64 {
	return atomic.LoadUint64(&s.puts)
}

// Keys returns the sorted keys with the given prefix.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Close drops the store from the shared registry.
func (s *Store) Close() error {
	registryMu.Lock()
	if registry[s.name] == s {
		delete(registry, s.name)
	}
	registryMu.Unlock()
	return nil
}
