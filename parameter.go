package goflow

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Parameter is a trainable tensor together with its gradient. It
// implements gorgonia.ValueGrad, so a slice of Parameters can be
// stepped directly by a Gorgonia solver such as the Adam solver.
//
// Fixed metadata like masks and shapes is never held in a Parameter;
// only tensors that gradients should flow into are.
type Parameter struct {
	value *tensor.Dense
	grad  *tensor.Dense
}

// NewParameter returns a Parameter holding value, with a zero
// gradient of the same shape.
func NewParameter(value *tensor.Dense) *Parameter {
	grad := tensor.NewDense(
		tensor.Float64,
		value.Shape().Clone(),
		tensor.WithBacking(make([]float64, len(Flat(value)))),
	)

	return &Parameter{value: value, grad: grad}
}

// Value implements gorgonia.ValueGrad.
func (p *Parameter) Value() G.Value { return p.value }

// Grad implements gorgonia.ValueGrad.
func (p *Parameter) Grad() (G.Value, error) { return p.grad, nil }

// Data returns the backing slice of the parameter value. Writes to
// the returned slice change the parameter.
func (p *Parameter) Data() []float64 { return Flat(p.value) }

// GradData returns the backing slice of the gradient.
func (p *Parameter) GradData() []float64 { return Flat(p.grad) }

// ZeroGrad sets the gradient to zero.
func (p *Parameter) ZeroGrad() {
	g := p.GradData()
	for i := range g {
		g[i] = 0
	}
}

// Clone returns a deep copy of the parameter value. Gradients are not
// copied.
func (p *Parameter) Clone() *tensor.Dense {
	return p.value.Clone().(*tensor.Dense)
}

// Set overwrites the parameter value in place with src, which must
// have the same number of elements.
func (p *Parameter) Set(src []float64) error {
	dst := p.Data()
	if len(src) != len(dst) {
		return fmt.Errorf("set: expected %d elements but got %d", len(dst),
			len(src))
	}
	copy(dst, src)
	return nil
}

// Parameterised is anything holding trainable Parameters. Bijections
// and distributions with trainable tensors implement it; training
// code collects the leaves through this interface.
type Parameterised interface {
	Parameters() []*Parameter
}
