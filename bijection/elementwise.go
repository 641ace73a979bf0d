package bijection

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goflow"
	"gorgonia.org/tensor"
)

// Exp is the elementwise transformation y = exp(x), mapping the real
// line onto the positive reals. Its inverse is only defined for
// strictly positive inputs; non-positive inputs yield NaN or -Inf
// log-determinants, which density evaluation treats as zero
// probability.
type Exp struct {
	shape tensor.Shape
}

// NewExp returns an Exp bijection over the given shape.
func NewExp(shape ...int) *Exp {
	return &Exp{shape: tensor.Shape(shape).Clone()}
}

func (e *Exp) Shape() tensor.Shape     { return e.shape }
func (e *Exp) CondShape() tensor.Shape { return nil }

func (e *Exp) Transform(x, condition *tensor.Dense) (*tensor.Dense, error) {
	y, _, err := e.TransformAndLogDet(x, condition)
	if err != nil {
		return nil, fmt.Errorf("transform: %v", err)
	}
	return y, nil
}

func (e *Exp) TransformAndLogDet(x, condition *tensor.Dense) (*tensor.Dense,
	float64, error) {
	if err := checkShape("x", x.Shape(), e.shape); err != nil {
		return nil, 0, fmt.Errorf("transformAndLogDet: %v", err)
	}

	xd := goflow.Flat(x)
	y := make([]float64, len(xd))
	logDet := 0.0
	for i, v := range xd {
		y[i] = math.Exp(v)
		logDet += v
	}
	return goflow.FromFlat(e.shape, y), logDet, nil
}

func (e *Exp) Inverse(y, condition *tensor.Dense) (*tensor.Dense, error) {
	x, _, err := e.InverseAndLogDet(y, condition)
	if err != nil {
		return nil, fmt.Errorf("inverse: %v", err)
	}
	return x, nil
}

func (e *Exp) InverseAndLogDet(y, condition *tensor.Dense) (*tensor.Dense,
	float64, error) {
	if err := checkShape("y", y.Shape(), e.shape); err != nil {
		return nil, 0, fmt.Errorf("inverseAndLogDet: %v", err)
	}

	yd := goflow.Flat(y)
	x := make([]float64, len(yd))
	logDet := 0.0
	for i, v := range yd {
		x[i] = math.Log(v)
		logDet -= x[i]
	}
	return goflow.FromFlat(e.shape, x), logDet, nil
}

// Tanh is the elementwise transformation y = tanh(x), mapping the
// real line onto (-1, 1). The log-determinant uses the stable
// softplus identity rather than logging 1-tanh(x)^2 directly.
type Tanh struct {
	shape tensor.Shape
}

// NewTanh returns a Tanh bijection over the given shape.
func NewTanh(shape ...int) *Tanh {
	return &Tanh{shape: tensor.Shape(shape).Clone()}
}

func (t *Tanh) Shape() tensor.Shape     { return t.shape }
func (t *Tanh) CondShape() tensor.Shape { return nil }

func (t *Tanh) Transform(x, condition *tensor.Dense) (*tensor.Dense, error) {
	y, _, err := t.TransformAndLogDet(x, condition)
	if err != nil {
		return nil, fmt.Errorf("transform: %v", err)
	}
	return y, nil
}

func (t *Tanh) TransformAndLogDet(x, condition *tensor.Dense) (*tensor.Dense,
	float64, error) {
	if err := checkShape("x", x.Shape(), t.shape); err != nil {
		return nil, 0, fmt.Errorf("transformAndLogDet: %v", err)
	}

	xd := goflow.Flat(x)
	y := make([]float64, len(xd))
	logDet := 0.0
	for i, v := range xd {
		y[i] = math.Tanh(v)
		logDet += goflow.LogTanhDeriv(v)
	}
	return goflow.FromFlat(t.shape, y), logDet, nil
}

func (t *Tanh) Inverse(y, condition *tensor.Dense) (*tensor.Dense, error) {
	x, _, err := t.InverseAndLogDet(y, condition)
	if err != nil {
		return nil, fmt.Errorf("inverse: %v", err)
	}
	return x, nil
}

func (t *Tanh) InverseAndLogDet(y, condition *tensor.Dense) (*tensor.Dense,
	float64, error) {
	if err := checkShape("y", y.Shape(), t.shape); err != nil {
		return nil, 0, fmt.Errorf("inverseAndLogDet: %v", err)
	}

	yd := goflow.Flat(y)
	x := make([]float64, len(yd))
	logDet := 0.0
	for i, v := range yd {
		x[i] = math.Atanh(v)
		logDet -= goflow.LogTanhDeriv(x[i])
	}
	return goflow.FromFlat(t.shape, x), logDet, nil
}
