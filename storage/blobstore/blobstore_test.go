package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/twinj/uuid"

	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/storage"
)

func TestFileBucket(t *testing.T) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("mipexport-test-blob-%x", uuid.NewV4().Bytes()))
	defer os.RemoveAll(dir)

	sink, err := storage.Open("file://" + dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()
	ds, err := sink.CreateDataset("s0", storage.DatasetAttributes{
		Dimensions:  mip.NewPoint(6, 4),
		BlockSize:   mip.NewPoint(4, 4),
		DataType:    mip.T_uint8,
		Compression: mip.Zstd,
	})
	if err != nil {
		t.Fatal(err)
	}
	buf, err := mip.NewBufferFromSlice(mip.NewPoint(2, 4), []uint8{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.SaveBlock(buf, mip.NewPoint(1, 0)); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"s0/attributes.json", "s0/1/0"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name))); err != nil {
			t.Errorf("expected object %s on disk: %v", name, err)
		}
	}
	got, err := ds.ReadBlock(mip.NewPoint(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	values, _ := mip.Values[uint8](got)
	if len(values) != 8 || values[7] != 8 {
		t.Errorf("bad block read back: %v", values)
	}
	if _, err := ds.ReadBlock(mip.NewPoint(0, 0)); err != storage.ErrBlockNotFound {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestMemBucket(t *testing.T) {
	sink, err := storage.Open("mem://")
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()
	if err := sink.(storage.DescriptorWriter).WriteMipmapInfo([]byte(`{"numLevels":2}`)); err != nil {
		t.Fatal(err)
	}
	kv := sink.(*storage.KVSink).Store().(*Store)
	found, err := kv.Exists(storage.InfoKey)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Errorf("info object not written")
	}
	if contentType("s0/attributes.json") != "application/json" || contentType("s0/0/0") != "application/octet-stream" {
		t.Errorf("bad content types")
	}
}
