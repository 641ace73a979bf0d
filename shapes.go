package goflow

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Prod returns the product of dims. The empty (scalar) shape has one
// element.
func Prod(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// Flat returns the backing float64 slice of t. Scalar tensors are
// returned as a one-element slice.
func Flat(t *tensor.Dense) []float64 {
	switch data := t.Data().(type) {
	case float64:
		return []float64{data}
	case []float64:
		return data
	default:
		panic(fmt.Sprintf("flat: expected float64 data but got %T", data))
	}
}

// FromFlat constructs a tensor of the given shape backed by data. The
// empty shape produces a scalar tensor.
func FromFlat(shape tensor.Shape, data []float64) *tensor.Dense {
	if len(shape) == 0 {
		return tensor.New(tensor.FromScalar(data[0]))
	}
	return tensor.NewDense(tensor.Float64, shape.Clone(),
		tensor.WithBacking(data))
}

// TrailingBatch checks that the trailing dimensions of full equal
// want exactly and returns the leading (batch) dimensions. The name
// is used in error messages.
func TrailingBatch(name string, full, want tensor.Shape) (tensor.Shape,
	error) {
	if len(full) < len(want) {
		return nil, fmt.Errorf("expected trailing dimensions matching %v "+
			"for %v; got %v", want, name, full)
	}

	split := len(full) - len(want)
	for i, d := range want {
		if full[split+i] != d {
			return nil, fmt.Errorf("expected trailing dimensions matching "+
				"%v for %v; got %v", want, name, full)
		}
	}
	return full[:split].Clone(), nil
}

// BroadcastShapes broadcasts two batch shapes together with numpy
// semantics: shapes are aligned at their trailing dimension and each
// pair of dimensions must be equal or contain a 1.
func BroadcastShapes(a, b tensor.Shape) (tensor.Shape, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}

	out := make(tensor.Shape, n)
	for i := 1; i <= n; i++ {
		da, db := 1, 1
		if i <= len(a) {
			da = a[len(a)-i]
		}
		if i <= len(b) {
			db = b[len(b)-i]
		}

		switch {
		case da == db, db == 1:
			out[n-i] = da
		case da == 1:
			out[n-i] = db
		default:
			return nil, fmt.Errorf("cannot broadcast shapes %v and %v", a, b)
		}
	}
	return out, nil
}

// BatchIndex maps coords in a broadcast result shape back to the flat
// index of an input whose batch shape is in, aligning shapes at their
// trailing dimension and repeating size-1 dimensions.
func BatchIndex(coords []int, in tensor.Shape) int {
	offset := len(coords) - len(in)
	idx := 0
	for i, d := range in {
		c := coords[offset+i]
		if d == 1 {
			c = 0
		}
		idx = idx*d + c
	}
	return idx
}

// Coords converts a flat index into multidimensional coordinates for
// shape.
func Coords(flat int, shape tensor.Shape) []int {
	coords := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		coords[i] = flat % shape[i]
		flat /= shape[i]
	}
	return coords
}
