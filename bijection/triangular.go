package bijection

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goflow"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// TriangularAffine is the transformation y = L*x + loc where L is a
// lower triangular matrix with nonzero diagonal. It is the bijection
// behind the multivariate normal: with L the Cholesky factor of a
// covariance matrix, it maps standard normal noise to correlated
// noise. The forward log-determinant is the sum of the logs of the
// absolute diagonal entries; the inverse is a triangular solve.
type TriangularAffine struct {
	shape tensor.Shape // (dim,)
	loc   []float64
	lower *mat.TriDense
}

// NewTriangularAffine returns a TriangularAffine bijection. loc must
// be a vector whose length matches the order of lower, and the
// diagonal of lower must be nonzero.
func NewTriangularAffine(loc *tensor.Dense, lower *mat.TriDense) (
	*TriangularAffine, error) {
	if len(loc.Shape()) != 1 {
		return nil, fmt.Errorf("newTriangularAffine: expected loc to be a "+
			"vector but got shape %v", loc.Shape())
	}

	dim, kind := lower.Triangle()
	if kind != mat.Lower {
		return nil, fmt.Errorf("newTriangularAffine: expected a lower " +
			"triangular matrix")
	}
	if loc.Shape()[0] != dim {
		return nil, fmt.Errorf("newTriangularAffine: expected loc of length "+
			"%v but got %v", dim, loc.Shape()[0])
	}

	for i := 0; i < dim; i++ {
		if lower.At(i, i) == 0 {
			return nil, fmt.Errorf("newTriangularAffine: diagonal entry %d "+
				"is zero; the transformation is not invertible", i)
		}
	}

	locData := make([]float64, dim)
	copy(locData, goflow.Flat(loc))

	cp := mat.NewTriDense(dim, mat.Lower, nil)
	cp.Copy(lower)

	return &TriangularAffine{
		shape: tensor.Shape{dim},
		loc:   locData,
		lower: cp,
	}, nil
}

func (t *TriangularAffine) Shape() tensor.Shape     { return t.shape }
func (t *TriangularAffine) CondShape() tensor.Shape { return nil }

// Loc returns the location of the bijection.
func (t *TriangularAffine) Loc() *tensor.Dense {
	out := make([]float64, len(t.loc))
	copy(out, t.loc)
	return goflow.FromFlat(t.shape, out)
}

// Lower returns a copy of the lower triangular matrix.
func (t *TriangularAffine) Lower() *mat.TriDense {
	dim, _ := t.lower.Triangle()
	cp := mat.NewTriDense(dim, mat.Lower, nil)
	cp.Copy(t.lower)
	return cp
}

func (t *TriangularAffine) logDiagDet() float64 {
	dim, _ := t.lower.Triangle()
	logDet := 0.0
	for i := 0; i < dim; i++ {
		logDet += math.Log(math.Abs(t.lower.At(i, i)))
	}
	return logDet
}

func (t *TriangularAffine) Transform(x, condition *tensor.Dense) (
	*tensor.Dense, error) {
	y, _, err := t.TransformAndLogDet(x, condition)
	if err != nil {
		return nil, fmt.Errorf("transform: %v", err)
	}
	return y, nil
}

func (t *TriangularAffine) TransformAndLogDet(x, condition *tensor.Dense) (
	*tensor.Dense, float64, error) {
	if err := checkShape("x", x.Shape(), t.shape); err != nil {
		return nil, 0, fmt.Errorf("transformAndLogDet: %v", err)
	}

	dim := t.shape[0]
	xv := mat.NewVecDense(dim, goflow.Flat(x))

	var y mat.VecDense
	y.MulVec(t.lower, xv)

	out := make([]float64, dim)
	for i := 0; i < dim; i++ {
		out[i] = y.AtVec(i) + t.loc[i]
	}
	return goflow.FromFlat(t.shape, out), t.logDiagDet(), nil
}

func (t *TriangularAffine) Inverse(y, condition *tensor.Dense) (
	*tensor.Dense, error) {
	x, _, err := t.InverseAndLogDet(y, condition)
	if err != nil {
		return nil, fmt.Errorf("inverse: %v", err)
	}
	return x, nil
}

func (t *TriangularAffine) InverseAndLogDet(y, condition *tensor.Dense) (
	*tensor.Dense, float64, error) {
	if err := checkShape("y", y.Shape(), t.shape); err != nil {
		return nil, 0, fmt.Errorf("inverseAndLogDet: %v", err)
	}

	dim := t.shape[0]
	yd := goflow.Flat(y)

	rhs := make([]float64, dim)
	for i := 0; i < dim; i++ {
		rhs[i] = yd[i] - t.loc[i]
	}

	// Triangular solve for L*x = y - loc.
	var x mat.VecDense
	if err := x.SolveVec(t.lower, mat.NewVecDense(dim, rhs)); err != nil {
		return nil, 0, fmt.Errorf("inverseAndLogDet: %v", err)
	}

	out := make([]float64, dim)
	for i := 0; i < dim; i++ {
		out[i] = x.AtVec(i)
	}
	return goflow.FromFlat(t.shape, out), -t.logDiagDet(), nil
}
