package downres

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/mipexport/mip"
)

// accumulate sums every input element into the accumulator element of its footprint.
// The input is visited row by row with dimension 0 innermost.
func accumulate[T mip.Number](in []T, inSize mip.Point, acc []float64, outSize mip.Point, factors mip.Point) {
	outStrides := outSize.Strides()
	f0 := factors[0]
	nx := inSize[0]
	var i int64
	mip.ForEachRow(inSize, func(pos mip.Point) {
		var base int64
		for d := 1; d < len(pos); d++ {
			base += (pos[d] / factors[d]) * outStrides[d]
		}
		row := in[i : i+nx]
		if f0 == 1 {
			for x, v := range row {
				acc[base+int64(x)] += float64(v)
			}
		} else {
			for x, v := range row {
				acc[base+int64(x)/f0] += float64(v)
			}
		}
		i += nx
	})
}

func roundClamp(v, lo, hi float64) float64 {
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func store[T mip.Number](acc []float64, scale float64, out []T, conv func(float64) T) {
	for i, sum := range acc {
		out[i] = conv(sum * scale)
	}
}

// average sets output[i] to the mean of the prod(factors) input elements in its footprint.
// Sums are accumulated in float64 and rounded to nearest for integer types.
func average(in, out *mip.Buffer, factors mip.Point) error {
	acc := make([]float64, out.NumElements())
	scale := 1.0 / float64(factors.Prod())
	switch data := in.Data.(type) {
	case []uint8:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]uint8), func(v float64) uint8 { return uint8(roundClamp(v, 0, math.MaxUint8)) })
	case []int8:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]int8), func(v float64) int8 { return int8(roundClamp(v, math.MinInt8, math.MaxInt8)) })
	case []uint16:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]uint16), func(v float64) uint16 { return uint16(roundClamp(v, 0, math.MaxUint16)) })
	case []int16:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]int16), func(v float64) int16 { return int16(roundClamp(v, math.MinInt16, math.MaxInt16)) })
	case []uint32:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]uint32), func(v float64) uint32 { return uint32(roundClamp(v, 0, math.MaxUint32)) })
	case []int32:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]int32), func(v float64) int32 { return int32(roundClamp(v, math.MinInt32, math.MaxInt32)) })
	case []uint64:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]uint64), func(v float64) uint64 {
			v = math.Round(v)
			if v <= 0 {
				return 0
			}
			if v >= math.MaxUint64 {
				return math.MaxUint64
			}
			return uint64(v)
		})
	case []int64:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]int64), func(v float64) int64 {
			v = math.Round(v)
			if v <= math.MinInt64 {
				return math.MinInt64
			}
			if v >= math.MaxInt64 {
				return math.MaxInt64
			}
			return int64(v)
		})
	case []float32:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]float32), func(v float64) float32 { return float32(v) })
	case []float64:
		accumulate(data, in.Size, acc, out.Size, factors)
		store(acc, scale, out.Data.([]float64), func(v float64) float64 { return v })
	default:
		return fmt.Errorf("can't average buffer data of type %T", in.Data)
	}
	return nil
}
