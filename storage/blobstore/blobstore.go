/*
	Package blobstore writes pyramids to object storage through gocloud blob buckets.
	Each dataset is an N5-like directory: an "attributes.json" document plus one object
	per block keyed "<dataset>/<g0>/<g1>/...".  The pyramid descriptor is stored as
	the root "info" object, similar to neuroglancer precomputed volumes.
*/
package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/blang/semver"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/storage"
)

// DefaultTimeout bounds each bucket request.
const DefaultTimeout = 2 * time.Minute

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		mip.Errorf("Unable to make semver in blobstore: %v\n", err)
	}
	e := Engine{"blobstore", "Blob bucket (file, mem, gs, s3)", ver}
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
	return []string{"file", "mem", "gs", "s3"}
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewSink opens the bucket given by a gocloud URL, e.g., "gs://my-bucket?prefix=vol/".
// Local "file://" directories are created if necessary.
func (e Engine) NewSink(ref string) (storage.ChunkedSink, error) {
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("bad file reference %q: %v", ref, err)
		}
		if err := os.MkdirAll(u.Path, 0755); err != nil {
			return nil, fmt.Errorf("can't make directory at %s: %v", u.Path, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	bucket, err := blob.OpenBucket(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("can't open bucket %q: %v", ref, err)
	}
	s := New(ref, bucket)
	return storage.NewKVSink(s.String(), s, storage.JSONAttributes{}), nil
}

// Store adapts a *blob.Bucket to a storage.KeyValueStore.
type Store struct {
	ref    string
	bucket *blob.Bucket
}

// New returns a store over an opened bucket.  The store owns the bucket.
func New(ref string, bucket *blob.Bucket) *Store {
	return &Store{ref: ref, bucket: bucket}
}

func (s *Store) String() string {
	return fmt.Sprintf("blobstore @ %s", s.ref)
}

func (s *Store) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("can't read %q from %s: %v", key, s, err)
	}
	return data, nil
}

func (s *Store) Put(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	opts := &blob.WriterOptions{ContentType: contentType(key)}
	if err := s.bucket.WriteAll(ctx, key, value, opts); err != nil {
		return fmt.Errorf("can't write %q to %s: %v", key, s, err)
	}
	return nil
}

// Exists returns true if an object is stored under the key.
func (s *Store) Exists(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return s.bucket.Exists(ctx, key)
}

func (s *Store) Close() error {
	if err := s.bucket.Close(); err != nil {
		mip.Errorf("Error on closing %s: %v\n", s, err)
		return err
	}
	return nil
}

func contentType(key string) string {
	if key == storage.InfoKey || strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
