package storage

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/janelia-flyem/mipexport/mip"
)

// MarshalMsg implements msgp.Marshaler.  Attributes are encoded as a 4-element array:
// dimensions, block size, data type, compression.
func (z DatasetAttributes) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendArrayHeader(o, 4)
	o = appendPoint(o, z.Dimensions)
	o = appendPoint(o, z.BlockSize)
	o = msgp.AppendUint8(o, uint8(z.DataType))
	o = msgp.AppendUint8(o, uint8(z.Compression))
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (z *DatasetAttributes) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var asz uint32
	asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return
	}
	if asz != 4 {
		err = msgp.ArrayError{Wanted: 4, Got: asz}
		return
	}
	z.Dimensions, bts, err = readPoint(bts)
	if err != nil {
		return
	}
	z.BlockSize, bts, err = readPoint(bts)
	if err != nil {
		return
	}
	var u uint8
	u, bts, err = msgp.ReadUint8Bytes(bts)
	if err != nil {
		return
	}
	z.DataType = mip.DataType(u)
	u, bts, err = msgp.ReadUint8Bytes(bts)
	if err != nil {
		return
	}
	z.Compression = mip.Compression(u)
	o = bts
	return
}

func (z DatasetAttributes) Msgsize() (s int) {
	s = msgp.ArrayHeaderSize + 2*msgp.ArrayHeaderSize + (len(z.Dimensions)+len(z.BlockSize))*msgp.Int64Size + 2*msgp.Uint8Size
	return
}

func appendPoint(o []byte, p mip.Point) []byte {
	o = msgp.AppendArrayHeader(o, uint32(len(p)))
	for _, v := range p {
		o = msgp.AppendInt64(o, v)
	}
	return o
}

func readPoint(bts []byte) (p mip.Point, o []byte, err error) {
	var n uint32
	n, bts, err = msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return
	}
	p = make(mip.Point, n)
	for i := range p {
		p[i], bts, err = msgp.ReadInt64Bytes(bts)
		if err != nil {
			return
		}
	}
	o = bts
	return
}

// MsgpAttributes stores attributes in msgpack under a ".attrs" key.
type MsgpAttributes struct{}

func (MsgpAttributes) Key(path string) string {
	return path + "/.attrs"
}

func (MsgpAttributes) Marshal(a DatasetAttributes) ([]byte, error) {
	return a.MarshalMsg(nil)
}

func (MsgpAttributes) Unmarshal(data []byte) (a DatasetAttributes, err error) {
	_, err = a.UnmarshalMsg(data)
	return
}
