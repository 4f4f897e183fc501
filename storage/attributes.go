package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/janelia-flyem/mipexport/mip"
)

// DatasetAttributes describe the blocked layout of a dataset.
type DatasetAttributes struct {
	Dimensions  mip.Point       `json:"dimensions"`
	BlockSize   mip.Point       `json:"blockSize"`
	DataType    mip.DataType    `json:"dataType"`
	Compression mip.Compression `json:"compression"`
}

// Validate returns an error if the attributes are inconsistent.
func (a DatasetAttributes) Validate() error {
	if !a.Dimensions.Positive() {
		return fmt.Errorf("bad dataset dimensions %s", a.Dimensions)
	}
	if len(a.BlockSize) != len(a.Dimensions) || !a.BlockSize.Positive() {
		return fmt.Errorf("bad block size %s for %d-d dataset", a.BlockSize, len(a.Dimensions))
	}
	if mip.DataTypeBytes(a.DataType) == 0 {
		return fmt.Errorf("bad data type %d", uint8(a.DataType))
	}
	return nil
}

// GridSize returns the number of blocks along each dimension.
func (a DatasetAttributes) GridSize() mip.Point {
	return a.Dimensions.CeilDiv(a.BlockSize)
}

// BlockRegion returns the region covered by the block at the given grid position,
// clipped to the dataset dimensions.
func (a DatasetAttributes) BlockRegion(gridPos mip.Point) (mip.Region, error) {
	if len(gridPos) != len(a.Dimensions) {
		return mip.Region{}, fmt.Errorf("grid position %s doesn't match %d-d dataset", gridPos, len(a.Dimensions))
	}
	grid := a.GridSize()
	offset := gridPos.Mul(a.BlockSize)
	size := make(mip.Point, len(gridPos))
	for d := range gridPos {
		if gridPos[d] < 0 || gridPos[d] >= grid[d] {
			return mip.Region{}, fmt.Errorf("grid position %s outside grid %s", gridPos, grid)
		}
		size[d] = a.BlockSize[d]
		if rest := a.Dimensions[d] - offset[d]; rest < size[d] {
			size[d] = rest
		}
	}
	return mip.Region{Offset: offset, Size: size}, nil
}

// BlockKey returns the key of a block, e.g., "s1/3/0/2" for grid position (3,0,2).
func BlockKey(path string, gridPos mip.Point) string {
	parts := make([]string, len(gridPos)+1)
	parts[0] = strings.TrimSuffix(path, "/")
	for d, v := range gridPos {
		parts[d+1] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, "/")
}

// EncodeBlock checks a block against the dataset layout and serializes it.
func EncodeBlock(a DatasetAttributes, buf *mip.Buffer, gridPos mip.Point) ([]byte, error) {
	region, err := a.BlockRegion(gridPos)
	if err != nil {
		return nil, err
	}
	if buf.Type != a.DataType {
		return nil, fmt.Errorf("block %s has type %s, dataset has %s", gridPos, buf.Type, a.DataType)
	}
	if !buf.Size.Equal(region.Size) {
		return nil, fmt.Errorf("block %s has size %s, expected %s", gridPos, buf.Size, region.Size)
	}
	raw, err := buf.Bytes()
	if err != nil {
		return nil, err
	}
	return mip.SerializeData(raw, a.Compression, mip.CRC32)
}

// DecodeBlock deserializes a stored block.
func DecodeBlock(a DatasetAttributes, gridPos mip.Point, data []byte) (*mip.Buffer, error) {
	region, err := a.BlockRegion(gridPos)
	if err != nil {
		return nil, err
	}
	raw, _, err := mip.DeserializeData(data)
	if err != nil {
		return nil, fmt.Errorf("block %s: %v", gridPos, err)
	}
	return mip.BufferFromBytes(a.DataType, region.Size, raw)
}

// AttributesCodec stores dataset attributes under a per-dataset key.
type AttributesCodec interface {
	Key(path string) string
	Marshal(a DatasetAttributes) ([]byte, error)
	Unmarshal(data []byte) (DatasetAttributes, error)
}

// JSONAttributes stores attributes as an "attributes.json" document, N5 style.
type JSONAttributes struct{}

func (JSONAttributes) Key(path string) string {
	return strings.TrimSuffix(path, "/") + "/attributes.json"
}

func (JSONAttributes) Marshal(a DatasetAttributes) ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

func (JSONAttributes) Unmarshal(data []byte) (a DatasetAttributes, err error) {
	err = json.Unmarshal(data, &a)
	return
}
