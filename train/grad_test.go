package train

import (
	"math"
	"testing"

	"github.com/samuelfneumann/goflow"
	"gorgonia.org/tensor"
)

func newParam(data ...float64) *goflow.Parameter {
	backing := make([]float64, len(data))
	copy(backing, data)

	return goflow.NewParameter(tensor.NewDense(
		tensor.Float64,
		tensor.Shape{len(data)},
		tensor.WithBacking(backing),
	))
}

func TestFiniteDifferenceQuadratic(t *testing.T) {
	const tol = 1e-5

	p := newParam(1.0, 2.0, 3.0)
	targets := []float64{0.0, 1.0, -1.0}

	loss := func() (float64, error) {
		sum := 0.0
		for i, v := range p.Data() {
			diff := v - targets[i]
			sum += diff * diff
		}
		return sum, nil
	}

	vg := FiniteDifference(1e-6)
	value, err := vg(loss, []*goflow.Parameter{p})
	if err != nil {
		t.Fatal(err)
	}

	if want := 1.0 + 1.0 + 16.0; math.Abs(value-want) > tol {
		t.Errorf("expected loss %v, got %v", want, value)
	}

	grad := p.GradData()
	for i, v := range p.Data() {
		want := 2 * (v - targets[i])
		if math.Abs(grad[i]-want) > tol {
			t.Errorf("gradient %d: expected %v, got %v", i, want, grad[i])
		}
	}

	// The parameter values must be untouched by the perturbations.
	for i, want := range []float64{1.0, 2.0, 3.0} {
		if p.Data()[i] != want {
			t.Errorf("parameter %d: expected %v, got %v", i, want,
				p.Data()[i])
		}
	}
}

func TestFiniteDifferenceTwoParameters(t *testing.T) {
	const tol = 1e-5

	a := newParam(2.0)
	b := newParam(3.0)

	// f(a, b) = a * b, so df/da = b and df/db = a.
	loss := func() (float64, error) {
		return a.Data()[0] * b.Data()[0], nil
	}

	if _, err := FiniteDifference(1e-6)(loss,
		[]*goflow.Parameter{a, b}); err != nil {
		t.Fatal(err)
	}

	if got := a.GradData()[0]; math.Abs(got-3.0) > tol {
		t.Errorf("expected gradient 3, got %v", got)
	}
	if got := b.GradData()[0]; math.Abs(got-2.0) > tol {
		t.Errorf("expected gradient 2, got %v", got)
	}
}

func TestFiniteDifferenceBadStep(t *testing.T) {
	p := newParam(1.0)
	loss := func() (float64, error) { return 0, nil }

	if _, err := FiniteDifference(0)(loss, []*goflow.Parameter{p}); err == nil {
		t.Error("expected an error for a zero step size")
	}
	if _, err := FiniteDifference(-1e-6)(loss,
		[]*goflow.Parameter{p}); err == nil {
		t.Error("expected an error for a negative step size")
	}
}
