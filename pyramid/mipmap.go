package pyramid

import (
	"encoding/json"

	"github.com/janelia-flyem/mipexport/downres"
	"github.com/janelia-flyem/mipexport/mip"
)

// MipmapLevel describes one written level.
type MipmapLevel struct {
	Path              string           `json:"path"`
	Dims              mip.Point        `json:"dimensions"`
	ResolutionFactors mip.Point        `json:"resolutionFactors"`
	ChunkShape        mip.Point        `json:"chunkShape"`
	Source            SourceDescriptor `json:"source"`
	ChunksWritten     int64            `json:"chunksWritten"`
	ChunksFailed      int64            `json:"chunksFailed,omitempty"`
	Complete          bool             `json:"complete"`
}

// MipmapInfo is the descriptor of a written pyramid.
type MipmapInfo struct {
	DataType    mip.DataType    `json:"dataType"`
	Compression mip.Compression `json:"compression"`
	Method      downres.Method  `json:"method"`
	Levels      []MipmapLevel   `json:"levels"`
}

// Complete returns true if every level was completely written.
func (m *MipmapInfo) Complete() bool {
	for _, l := range m.Levels {
		if !l.Complete {
			return false
		}
	}
	return true
}

// JSON returns the indented JSON form of the descriptor.
func (m *MipmapInfo) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
