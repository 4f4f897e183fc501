/*
	Package downres computes lower-resolution blocks from higher-resolution regions.
	Two methods are provided: stride subsampling, which picks the first element of each
	footprint, and block averaging, which takes the mean of all elements in a footprint.
	Both produce the same output size for a given factor vector, and a factor of 1 in a
	dimension is an exact copy along that dimension.
*/
package downres

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/mipexport/mip"
)

// Method selects the downsampling algorithm.
type Method uint8

const (
	Average Method = iota
	Subsample
)

func (m Method) String() string {
	switch m {
	case Average:
		return "average"
	case Subsample:
		return "subsample"
	default:
		return "unknown"
	}
}

// ParseMethod returns the Method for "average" or "subsample".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "average", "mean":
		return Average, nil
	case "subsample", "stride":
		return Subsample, nil
	}
	return Average, fmt.Errorf("unknown downsampling method %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	parsed, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// OutputSize returns the size of the block produced from an input of the given size.
func OutputSize(inSize, factors mip.Point) mip.Point {
	return inSize.Div(factors)
}

func checkFactors(in *mip.Buffer, factors mip.Point) error {
	if len(factors) != len(in.Size) {
		return fmt.Errorf("factors %s don't match %d-d input", factors, len(in.Size))
	}
	for d, f := range factors {
		if f <= 0 {
			return fmt.Errorf("factor %d in dimension %d must be a positive integer", f, d)
		}
		if in.Size[d]%f != 0 {
			return fmt.Errorf("input size %s not a multiple of factors %s", in.Size, factors)
		}
	}
	return nil
}

// Downsample returns the block computed from the input region using the given
// method.  The input size must be a multiple of the factors in every dimension,
// which the scheduler guarantees by reading a region of the output size times
// the factors through an edge-extending view.
func Downsample(method Method, in *mip.Buffer, factors mip.Point) (*mip.Buffer, error) {
	if err := checkFactors(in, factors); err != nil {
		return nil, err
	}
	out, err := mip.NewBuffer(in.Type, OutputSize(in.Size, factors))
	if err != nil {
		return nil, err
	}
	if factors.AllOnes() {
		if err := mip.CopyRegion(out, make(mip.Point, len(out.Size)), in, make(mip.Point, len(in.Size)), in.Size); err != nil {
			return nil, err
		}
		return out, nil
	}
	switch method {
	case Subsample:
		err = subsample(in, out, factors)
	case Average:
		err = average(in, out, factors)
	default:
		err = fmt.Errorf("unknown downsampling method %d", method)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
