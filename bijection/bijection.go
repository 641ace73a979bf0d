// Package bijection provides invertible transformations that track
// the log-absolute-determinant of their Jacobian, for use in
// normalizing flows and transformed distributions.
package bijection

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"
)

// ErrNotInvertible is returned by bijections whose inverse is
// deliberately not implemented, such as the block autoregressive
// network, which would require iterative numerical root finding to
// invert. Use errors.Is to distinguish it from numeric failures.
var ErrNotInvertible = errors.New("bijection does not support inversion")

// Bijection is an invertible mapping between spaces of equal
// dimensionality. All methods are defined for a single unbatched
// input whose shape equals Shape(); batching over inputs is the
// responsibility of the caller (see the distribution package).
//
// Conditional bijections declare the shape of their conditioning
// variable with CondShape; unconditional bijections return nil and
// ignore the condition argument.
type Bijection interface {
	Shape() tensor.Shape
	CondShape() tensor.Shape

	// Transform applies the forward transformation to x.
	Transform(x, condition *tensor.Dense) (*tensor.Dense, error)

	// TransformAndLogDet applies the forward transformation and also
	// returns the log absolute determinant of its Jacobian at x.
	TransformAndLogDet(x, condition *tensor.Dense) (*tensor.Dense, float64,
		error)

	// Inverse applies the inverse transformation to y.
	Inverse(y, condition *tensor.Dense) (*tensor.Dense, error)

	// InverseAndLogDet applies the inverse transformation and also
	// returns the log absolute determinant of the inverse Jacobian
	// at y.
	InverseAndLogDet(y, condition *tensor.Dense) (*tensor.Dense, float64,
		error)
}

// checkShape validates that an unbatched input has exactly the
// declared shape.
func checkShape(name string, got, want tensor.Shape) error {
	if got.Eq(want) {
		return nil
	}
	return fmt.Errorf("expected %v to have shape %v but got %v", name, want,
		got)
}

// mergeCondShapes merges conditioning shapes: all non-nil shapes must
// be equal, and the merged shape is nil only when every input is nil.
func mergeCondShapes(shapes ...tensor.Shape) (tensor.Shape, error) {
	var merged tensor.Shape
	for _, s := range shapes {
		if s == nil {
			continue
		}
		if merged != nil && !merged.Eq(s) {
			return nil, fmt.Errorf("mismatched conditioning shapes %v and %v",
				merged, s)
		}
		merged = s
	}
	return merged, nil
}
