package bijection

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goflow"
	"gorgonia.org/tensor"
)

// Affine is the elementwise transformation y = loc + scale * x. The
// scale is stored as a raw log-scale parameter, so the derived scale
// is always strictly positive no matter what a training step writes
// into the raw tensor.
type Affine struct {
	shape    tensor.Shape
	loc      *goflow.Parameter
	logScale *goflow.Parameter
}

// NewAffine returns an Affine bijection with the given location and
// scale, which must have identical shapes. Scale entries must be
// strictly positive.
func NewAffine(loc, scale *tensor.Dense) (*Affine, error) {
	if !loc.Shape().Eq(scale.Shape()) {
		return nil, fmt.Errorf("newAffine: expected loc and scale to have "+
			"the same shape but got %v and %v", loc.Shape(), scale.Shape())
	}

	scaleData := goflow.Flat(scale)
	logScale := make([]float64, len(scaleData))
	for i, s := range scaleData {
		if s <= 0 {
			return nil, fmt.Errorf("newAffine: scale must be strictly "+
				"positive but got %v", s)
		}
		logScale[i] = math.Log(s)
	}

	return &Affine{
		shape:    loc.Shape().Clone(),
		loc:      goflow.NewParameter(loc),
		logScale: goflow.NewParameter(goflow.FromFlat(loc.Shape(), logScale)),
	}, nil
}

func (a *Affine) Shape() tensor.Shape     { return a.shape }
func (a *Affine) CondShape() tensor.Shape { return nil }

// Loc returns the location of the bijection.
func (a *Affine) Loc() *tensor.Dense { return a.loc.Clone() }

// Scale returns the (strictly positive) scale of the bijection,
// derived from the raw log-scale parameter.
func (a *Affine) Scale() *tensor.Dense {
	logScale := a.logScale.Data()
	scale := make([]float64, len(logScale))
	for i, ls := range logScale {
		scale[i] = math.Exp(ls)
	}
	return goflow.FromFlat(a.shape, scale)
}

// Parameters returns the trainable location and raw log-scale.
func (a *Affine) Parameters() []*goflow.Parameter {
	return []*goflow.Parameter{a.loc, a.logScale}
}

func (a *Affine) Transform(x, condition *tensor.Dense) (*tensor.Dense,
	error) {
	y, _, err := a.TransformAndLogDet(x, condition)
	if err != nil {
		return nil, fmt.Errorf("transform: %v", err)
	}
	return y, nil
}

func (a *Affine) TransformAndLogDet(x, condition *tensor.Dense) (
	*tensor.Dense, float64, error) {
	if err := checkShape("x", x.Shape(), a.shape); err != nil {
		return nil, 0, fmt.Errorf("transformAndLogDet: %v", err)
	}

	xd := goflow.Flat(x)
	loc := a.loc.Data()
	logScale := a.logScale.Data()

	y := make([]float64, len(xd))
	logDet := 0.0
	for i := range xd {
		y[i] = loc[i] + math.Exp(logScale[i])*xd[i]
		logDet += logScale[i]
	}
	return goflow.FromFlat(a.shape, y), logDet, nil
}

func (a *Affine) Inverse(y, condition *tensor.Dense) (*tensor.Dense, error) {
	x, _, err := a.InverseAndLogDet(y, condition)
	if err != nil {
		return nil, fmt.Errorf("inverse: %v", err)
	}
	return x, nil
}

func (a *Affine) InverseAndLogDet(y, condition *tensor.Dense) (*tensor.Dense,
	float64, error) {
	if err := checkShape("y", y.Shape(), a.shape); err != nil {
		return nil, 0, fmt.Errorf("inverseAndLogDet: %v", err)
	}

	yd := goflow.Flat(y)
	loc := a.loc.Data()
	logScale := a.logScale.Data()

	x := make([]float64, len(yd))
	logDet := 0.0
	for i := range yd {
		x[i] = (yd[i] - loc[i]) * math.Exp(-logScale[i])
		logDet -= logScale[i]
	}
	return goflow.FromFlat(a.shape, x), logDet, nil
}

// Scale is the elementwise transformation y = scale * x with strictly
// positive scale, stored raw as a log-scale like Affine.
type Scale struct {
	affine *Affine
}

// NewScale returns a Scale bijection. Scale entries must be strictly
// positive.
func NewScale(scale *tensor.Dense) (*Scale, error) {
	loc := goflow.FromFlat(scale.Shape(),
		make([]float64, len(goflow.Flat(scale))))

	affine, err := NewAffine(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("newScale: %v", err)
	}
	return &Scale{affine: affine}, nil
}

func (s *Scale) Shape() tensor.Shape     { return s.affine.Shape() }
func (s *Scale) CondShape() tensor.Shape { return nil }

// ScaleValue returns the scale of the bijection.
func (s *Scale) ScaleValue() *tensor.Dense { return s.affine.Scale() }

// Parameters returns only the raw log-scale; the zero location of a
// pure scaling is fixed.
func (s *Scale) Parameters() []*goflow.Parameter {
	return []*goflow.Parameter{s.affine.logScale}
}

func (s *Scale) Transform(x, condition *tensor.Dense) (*tensor.Dense,
	error) {
	return s.affine.Transform(x, condition)
}

func (s *Scale) TransformAndLogDet(x, condition *tensor.Dense) (
	*tensor.Dense, float64, error) {
	return s.affine.TransformAndLogDet(x, condition)
}

func (s *Scale) Inverse(y, condition *tensor.Dense) (*tensor.Dense, error) {
	return s.affine.Inverse(y, condition)
}

func (s *Scale) InverseAndLogDet(y, condition *tensor.Dense) (*tensor.Dense,
	float64, error) {
	return s.affine.InverseAndLogDet(y, condition)
}
