package distribution

import (
	"fmt"

	"github.com/samuelfneumann/goflow"
	"github.com/samuelfneumann/goflow/bijection"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// NewNormal returns an independent normal distribution with the given
// mean and standard deviation for each entry. loc and scale must have
// identical shapes, and scale must be strictly positive.
//
// The distribution is a Transformed: a standard normal base pushed
// through an Affine bijection, so loc and scale are trainable.
func NewNormal(loc, scale *tensor.Dense) (*Transformed, error) {
	if !loc.Shape().Eq(scale.Shape()) {
		return nil, fmt.Errorf("newNormal: expected loc and scale to have "+
			"the same shape but got %v and %v", loc.Shape(), scale.Shape())
	}

	affine, err := bijection.NewAffine(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("newNormal: %v", err)
	}
	return NewTransformed(NewStandardNormal(loc.Shape()...), affine)
}

// NewLogNormal returns a log-normal distribution; loc and scale refer
// to the underlying normal distribution.
func NewLogNormal(loc, scale *tensor.Dense) (*Transformed, error) {
	if !loc.Shape().Eq(scale.Shape()) {
		return nil, fmt.Errorf("newLogNormal: expected loc and scale to "+
			"have the same shape but got %v and %v", loc.Shape(),
			scale.Shape())
	}

	affine, err := bijection.NewAffine(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("newLogNormal: %v", err)
	}
	chain, err := bijection.NewChain(affine,
		bijection.NewExp(loc.Shape()...))
	if err != nil {
		return nil, fmt.Errorf("newLogNormal: %v", err)
	}
	return NewTransformed(NewStandardNormal(loc.Shape()...), chain)
}

// NewMultivariateNormal returns a multivariate normal distribution
// parameterised internally by the Cholesky factor of the covariance
// matrix: a standard normal base pushed through a TriangularAffine
// bijection. The covariance must be symmetric positive definite.
func NewMultivariateNormal(loc *tensor.Dense, covariance *mat.SymDense) (
	*Transformed, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(covariance); !ok {
		return nil, fmt.Errorf("newMultivariateNormal: covariance is not " +
			"positive definite")
	}

	dim := covariance.Symmetric()
	lower := mat.NewTriDense(dim, mat.Lower, nil)
	chol.LTo(lower)

	tri, err := bijection.NewTriangularAffine(loc, lower)
	if err != nil {
		return nil, fmt.Errorf("newMultivariateNormal: %v", err)
	}
	return NewTransformed(NewStandardNormal(dim), tri)
}

// NewUniform returns a uniform distribution on [minval, maxval).
// minval and maxval must have identical shapes with
// maxval > minval everywhere.
func NewUniform(minval, maxval *tensor.Dense) (*Transformed, error) {
	if !minval.Shape().Eq(maxval.Shape()) {
		return nil, fmt.Errorf("newUniform: expected minval and maxval to "+
			"have the same shape but got %v and %v", minval.Shape(),
			maxval.Shape())
	}

	minData, maxData := goflow.Flat(minval), goflow.Flat(maxval)
	width := make([]float64, len(minData))
	for i := range width {
		if maxData[i] <= minData[i] {
			return nil, fmt.Errorf("newUniform: expected maxval > minval "+
				"but got %v <= %v", maxData[i], minData[i])
		}
		width[i] = maxData[i] - minData[i]
	}

	affine, err := bijection.NewAffine(minval,
		goflow.FromFlat(minval.Shape(), width))
	if err != nil {
		return nil, fmt.Errorf("newUniform: %v", err)
	}
	return NewTransformed(newStandardUniform(minval.Shape()), affine)
}

// NewGumbel returns a Gumbel distribution with the given location and
// scale.
func NewGumbel(loc, scale *tensor.Dense) (*Transformed, error) {
	if !loc.Shape().Eq(scale.Shape()) {
		return nil, fmt.Errorf("newGumbel: expected loc and scale to have "+
			"the same shape but got %v and %v", loc.Shape(), scale.Shape())
	}

	affine, err := bijection.NewAffine(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("newGumbel: %v", err)
	}
	return NewTransformed(newStandardGumbel(loc.Shape()), affine)
}

// NewCauchy returns a Cauchy distribution with the given location
// and scale.
func NewCauchy(loc, scale *tensor.Dense) (*Transformed, error) {
	if !loc.Shape().Eq(scale.Shape()) {
		return nil, fmt.Errorf("newCauchy: expected loc and scale to have "+
			"the same shape but got %v and %v", loc.Shape(), scale.Shape())
	}

	affine, err := bijection.NewAffine(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("newCauchy: %v", err)
	}
	return NewTransformed(newStandardCauchy(loc.Shape()), affine)
}

// NewLaplace returns a Laplace distribution with the given location
// and scale.
func NewLaplace(loc, scale *tensor.Dense) (*Transformed, error) {
	if !loc.Shape().Eq(scale.Shape()) {
		return nil, fmt.Errorf("newLaplace: expected loc and scale to have "+
			"the same shape but got %v and %v", loc.Shape(), scale.Shape())
	}

	affine, err := bijection.NewAffine(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("newLaplace: %v", err)
	}
	return NewTransformed(newStandardLaplace(loc.Shape()), affine)
}

// NewExponential returns an exponential distribution with the given
// rate (1/scale), which must be strictly positive.
func NewExponential(rate *tensor.Dense) (*Transformed, error) {
	rateData := goflow.Flat(rate)
	scale := make([]float64, len(rateData))
	for i, r := range rateData {
		if r <= 0 {
			return nil, fmt.Errorf("newExponential: rate must be strictly "+
				"positive but got %v", r)
		}
		scale[i] = 1 / r
	}

	scaleBij, err := bijection.NewScale(goflow.FromFlat(rate.Shape(), scale))
	if err != nil {
		return nil, fmt.Errorf("newExponential: %v", err)
	}
	return NewTransformed(newStandardExponential(rate.Shape()), scaleBij)
}

// NewStudentT returns a Student's t distribution with the given
// degrees of freedom, location and scale. df must be strictly
// positive, and all three must have identical shapes.
func NewStudentT(df, loc, scale *tensor.Dense) (*Transformed, error) {
	if !df.Shape().Eq(loc.Shape()) || !loc.Shape().Eq(scale.Shape()) {
		return nil, fmt.Errorf("newStudentT: expected df, loc and scale to "+
			"have the same shape but got %v, %v and %v", df.Shape(),
			loc.Shape(), scale.Shape())
	}

	base, err := newStandardStudentT(df)
	if err != nil {
		return nil, fmt.Errorf("newStudentT: %v", err)
	}
	affine, err := bijection.NewAffine(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("newStudentT: %v", err)
	}
	return NewTransformed(base, affine)
}
