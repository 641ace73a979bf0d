package bijection

import (
	"fmt"

	"github.com/samuelfneumann/goflow"
	"gorgonia.org/tensor"
)

// Chain composes bijections in sequence. Transform applies the
// bijections in order, summing their log-determinants; Inverse
// applies the inverses in reverse order.
type Chain struct {
	shape      tensor.Shape
	condShape  tensor.Shape
	bijections []Bijection
}

// NewChain returns a Chain over the given bijections, which must all
// share the same shape, and whose conditioning shapes, where
// declared, must agree.
func NewChain(bijections ...Bijection) (*Chain, error) {
	if len(bijections) == 0 {
		return nil, fmt.Errorf("newChain: expected at least one bijection")
	}

	shape := bijections[0].Shape()
	condShapes := make([]tensor.Shape, len(bijections))
	for i, b := range bijections {
		if !b.Shape().Eq(shape) {
			return nil, fmt.Errorf("newChain: expected all bijections to "+
				"have shape %v but bijection %d has shape %v", shape, i,
				b.Shape())
		}
		condShapes[i] = b.CondShape()
	}

	condShape, err := mergeCondShapes(condShapes...)
	if err != nil {
		return nil, fmt.Errorf("newChain: %v", err)
	}

	return &Chain{
		shape:      shape.Clone(),
		condShape:  condShape,
		bijections: bijections,
	}, nil
}

func (c *Chain) Shape() tensor.Shape     { return c.shape }
func (c *Chain) CondShape() tensor.Shape { return c.condShape }

// Bijections returns the bijections of the chain in forward order.
func (c *Chain) Bijections() []Bijection { return c.bijections }

// MergeChains splices any nested Chains into a single flat Chain.
// This is purely an optimization: the returned chain applies exactly
// the same transformations in exactly the same order.
func (c *Chain) MergeChains() *Chain {
	flat := make([]Bijection, 0, len(c.bijections))
	for _, b := range c.bijections {
		if nested, ok := b.(*Chain); ok {
			flat = append(flat, nested.MergeChains().bijections...)
		} else {
			flat = append(flat, b)
		}
	}

	return &Chain{
		shape:      c.shape,
		condShape:  c.condShape,
		bijections: flat,
	}
}

// Parameters collects the trainable parameters of every member
// bijection that has any.
func (c *Chain) Parameters() []*goflow.Parameter {
	var params []*goflow.Parameter
	for _, b := range c.bijections {
		if p, ok := b.(goflow.Parameterised); ok {
			params = append(params, p.Parameters()...)
		}
	}
	return params
}

func (c *Chain) Transform(x, condition *tensor.Dense) (*tensor.Dense,
	error) {
	y := x
	var err error
	for i, b := range c.bijections {
		if y, err = b.Transform(y, condition); err != nil {
			return nil, fmt.Errorf("transform: bijection %d: %v", i, err)
		}
	}
	return y, nil
}

func (c *Chain) TransformAndLogDet(x, condition *tensor.Dense) (
	*tensor.Dense, float64, error) {
	y := x
	logDet := 0.0
	for i, b := range c.bijections {
		var ld float64
		var err error
		if y, ld, err = b.TransformAndLogDet(y, condition); err != nil {
			return nil, 0, fmt.Errorf("transformAndLogDet: bijection %d: %v",
				i, err)
		}
		logDet += ld
	}
	return y, logDet, nil
}

func (c *Chain) Inverse(y, condition *tensor.Dense) (*tensor.Dense, error) {
	x := y
	var err error
	for i := len(c.bijections) - 1; i >= 0; i-- {
		if x, err = c.bijections[i].Inverse(x, condition); err != nil {
			return nil, fmt.Errorf("inverse: bijection %d: %v", i, err)
		}
	}
	return x, nil
}

func (c *Chain) InverseAndLogDet(y, condition *tensor.Dense) (*tensor.Dense,
	float64, error) {
	x := y
	logDet := 0.0
	for i := len(c.bijections) - 1; i >= 0; i-- {
		var ld float64
		var err error
		x, ld, err = c.bijections[i].InverseAndLogDet(x, condition)
		if err != nil {
			return nil, 0, fmt.Errorf("inverseAndLogDet: bijection %d: %v",
				i, err)
		}
		logDet += ld
	}
	return x, logDet, nil
}

// Invert swaps the forward and inverse directions of a bijection.
type Invert struct {
	bijection Bijection
}

// NewInvert returns the inverse of b as a bijection in its own right.
func NewInvert(b Bijection) *Invert {
	return &Invert{bijection: b}
}

func (iv *Invert) Shape() tensor.Shape     { return iv.bijection.Shape() }
func (iv *Invert) CondShape() tensor.Shape { return iv.bijection.CondShape() }

func (iv *Invert) Transform(x, condition *tensor.Dense) (*tensor.Dense,
	error) {
	return iv.bijection.Inverse(x, condition)
}

func (iv *Invert) TransformAndLogDet(x, condition *tensor.Dense) (
	*tensor.Dense, float64, error) {
	return iv.bijection.InverseAndLogDet(x, condition)
}

func (iv *Invert) Inverse(y, condition *tensor.Dense) (*tensor.Dense,
	error) {
	return iv.bijection.Transform(y, condition)
}

func (iv *Invert) InverseAndLogDet(y, condition *tensor.Dense) (
	*tensor.Dense, float64, error) {
	return iv.bijection.TransformAndLogDet(y, condition)
}

// Parameters exposes the wrapped bijection's parameters, if any.
func (iv *Invert) Parameters() []*goflow.Parameter {
	if p, ok := iv.bijection.(goflow.Parameterised); ok {
		return p.Parameters()
	}
	return nil
}
