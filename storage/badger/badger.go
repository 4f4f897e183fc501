package badger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/storage"
)

const (
	// DefaultSyncWrites is true if all writes are synced to disk, thereby making db resilient
	// at cost of speed.
	DefaultSyncWrites = false

	// InMemoryPath is the location for a badger store that is never persisted.
	InMemoryPath = ":memory:"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		mip.Errorf("Unable to make semver in badger: %v\n", err)
	}
	e := Engine{"badger", "BadgerDB", ver}
	storage.RegisterEngine(e)
}

// --- Engine Implementation ------

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
	return []string{"badger"}
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewSink returns a sink backed by badger for a reference "badger://<dir>[?options]".
func (e Engine) NewSink(ref string) (storage.ChunkedSink, error) {
	path, opts, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	db, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	return storage.NewKVSink(db.String(), db, storage.MsgpAttributes{}), nil
}

// BadgerDB is a KeyValueStore backed by a badger database.
type BadgerDB struct {
	// Directory of datastore
	directory string

	bdp      *badger.DB
	inMemory bool

	// stopSyncCh is used to signal the sync goroutine to stop.
	stopSyncCh chan bool
}

// Open returns a badger store, creating one at path if it doesn't exist.
func Open(path string, opts badger.Options) (*BadgerDB, error) {
	if path == InMemoryPath {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		mip.Infof("Database not already at path (%s). Creating directory...\n", path)
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, fmt.Errorf("Can't make directory at %s: %v", path, err)
		}
	}

	timedLog := mip.NewTimeLog()
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	db := &BadgerDB{
		directory:  path,
		bdp:        bdp,
		inMemory:   opts.InMemory,
		stopSyncCh: make(chan bool),
	}
	if !db.inMemory {
		go syncPeriodically(db)
	}
	timedLog.Infof("Opened badger @ path %s", path)
	return db, nil
}

// Periodically sync to prevent too many writes from being buffered
// if process crashes.
func syncPeriodically(db *BadgerDB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			mip.Debugf("Stopping sync goroutine for badger @ %s\n", db.directory)
			return
		case <-ticker.C:
			db.bdp.Sync()
		}
	}
}

func (db *BadgerDB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Get returns the value for a key or nil if not found.
func (db *BadgerDB) Get(key string) ([]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Get on closed BadgerDB")
	}
	var value []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// Put writes a value for a key.
func (db *BadgerDB) Put(key string, value []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on closed BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Keys returns all keys with the given prefix.
func (db *BadgerDB) Keys(prefix string) ([]string, error) {
	var keys []string
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Close closes the BadgerDB
func (db *BadgerDB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	if !db.inMemory {
		db.stopSyncCh <- true
	}
	err := db.bdp.Close()
	db.bdp = nil
	mip.Infof("Closed Badger DB @ %s\n", db.directory)
	return err
}

func trimScheme(ref string) string {
	return strings.TrimPrefix(ref, "badger://")
}
