package downres

import (
	"fmt"

	"github.com/janelia-flyem/mipexport/mip"
)

func subsampleT[T mip.Number](in []T, inSize mip.Point, out []T, outSize mip.Point, factors mip.Point) {
	inStrides := inSize.Strides()
	f0 := factors[0]
	nx := outSize[0]
	var o int64
	mip.ForEachRow(outSize, func(pos mip.Point) {
		var base int64
		for d := 1; d < len(pos); d++ {
			base += pos[d] * factors[d] * inStrides[d]
		}
		if f0 == 1 {
			copy(out[o:o+nx], in[base:base+nx])
		} else {
			for x := int64(0); x < nx; x++ {
				out[o+x] = in[base+x*f0]
			}
		}
		o += nx
	})
}

// subsample sets output[i] = input[i*factor].
func subsample(in, out *mip.Buffer, factors mip.Point) error {
	switch data := in.Data.(type) {
	case []uint8:
		subsampleT(data, in.Size, out.Data.([]uint8), out.Size, factors)
	case []int8:
		subsampleT(data, in.Size, out.Data.([]int8), out.Size, factors)
	case []uint16:
		subsampleT(data, in.Size, out.Data.([]uint16), out.Size, factors)
	case []int16:
		subsampleT(data, in.Size, out.Data.([]int16), out.Size, factors)
	case []uint32:
		subsampleT(data, in.Size, out.Data.([]uint32), out.Size, factors)
	case []int32:
		subsampleT(data, in.Size, out.Data.([]int32), out.Size, factors)
	case []uint64:
		subsampleT(data, in.Size, out.Data.([]uint64), out.Size, factors)
	case []int64:
		subsampleT(data, in.Size, out.Data.([]int64), out.Size, factors)
	case []float32:
		subsampleT(data, in.Size, out.Data.([]float32), out.Size, factors)
	case []float64:
		subsampleT(data, in.Size, out.Data.([]float64), out.Size, factors)
	default:
		return fmt.Errorf("can't subsample buffer data of type %T", in.Data)
	}
	return nil
}
