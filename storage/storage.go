/*
	Package storage provides a unified interface to chunked sinks, the block stores that
	receive each pyramid level as a dataset of fixed-size blocks addressed by grid position.
	Since all serialization is delegated to the sink, engines only need a way to store a
	value per key.  Engines register themselves, keyed by the URL schemes they handle,
	and are opened through Open().
*/
package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blang/semver"

	"github.com/janelia-flyem/mipexport/mip"
)

// ErrBlockNotFound is returned when reading a block that was never written.
var ErrBlockNotFound = errors.New("block not found")

// ChunkedSink creates datasets, one per pyramid level, and accepts block writes.
type ChunkedSink interface {
	// CreateDataset creates (or replaces the attributes of) a dataset at the given path.
	CreateDataset(path string, attrs DatasetAttributes) (Dataset, error)

	// OpenDataset returns an existing dataset.
	OpenDataset(path string) (Dataset, error)

	Close() error
}

// Dataset is one N-D blocked array within a sink.  SaveBlock may be called concurrently
// for distinct grid positions.
type Dataset interface {
	Path() string
	Attributes() DatasetAttributes

	// SaveBlock writes the block at the given grid position.  The buffer size must be
	// the block size clipped to the dataset dimensions.
	SaveBlock(buf *mip.Buffer, gridPos mip.Point) error

	// ReadBlock returns the block at the given grid position or ErrBlockNotFound.
	ReadBlock(gridPos mip.Point) (*mip.Buffer, error)
}

// DescriptorWriter is implemented by sinks that can store the JSON descriptor of
// a written pyramid.
type DescriptorWriter interface {
	WriteMipmapInfo(data []byte) error
}

// Engine is a storage engine that can open sinks for references with given URL schemes.
type Engine interface {
	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// Schemes returns the URL schemes, e.g., "badger", handled by this engine.
	Schemes() []string

	// NewSink opens or creates the sink at the given reference.
	NewSink(ref string) (ChunkedSink, error)
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// RegisterEngine registers an Engine for all its schemes.  This function is called
// by engine packages in their init().
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	for _, scheme := range e.Schemes() {
		engines[scheme] = e
	}
}

// EnginesAvailable returns a description of the available storage engines.
func EnginesAvailable() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	var lines []string
	for scheme, e := range engines {
		lines = append(lines, fmt.Sprintf("%s:// -> %s [%s]: %s", scheme, e.GetName(), e.GetSemVer(), e.GetDescription()))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// Open returns a sink for a reference of the form "<scheme>://<location>".
func Open(ref string) (ChunkedSink, error) {
	parts := strings.SplitN(ref, "://", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("store reference %q must be of form <scheme>://<location>", ref)
	}
	enginesMu.RLock()
	e, found := engines[parts[0]]
	enginesMu.RUnlock()
	if !found {
		return nil, fmt.Errorf("no storage engine registered for scheme %q", parts[0])
	}
	mip.Infof("Opening %s sink @ %q\n", e.GetName(), ref)
	return e.NewSink(ref)
}
