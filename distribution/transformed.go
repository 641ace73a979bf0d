package distribution

import (
	"fmt"

	"github.com/samuelfneumann/goflow"
	"github.com/samuelfneumann/goflow/bijection"
	"gorgonia.org/tensor"
)

// Transformed couples a base distribution with a bijection to form a
// new distribution: sampling pushes base samples through the forward
// bijection, and density evaluation pulls observations back through
// the inverse bijection, adding the log-determinant correction from
// the change-of-variables formula.
type Transformed struct {
	dist
	base      Distribution
	baseK     kernel
	bijection bijection.Bijection
	condShape tensor.Shape
}

// NewTransformed returns the distribution of bijection(x) for
// x ~ base. The bijection's shape must equal the base distribution's
// shape, and if both declare a conditioning shape the two must be
// identical.
func NewTransformed(base Distribution, b bijection.Bijection) (*Transformed,
	error) {
	if !b.Shape().Eq(base.Shape()) {
		return nil, fmt.Errorf("newTransformed: expected the bijection "+
			"shape %v to equal the base distribution shape %v", b.Shape(),
			base.Shape())
	}

	baseK, ok := base.(kernel)
	if !ok {
		return nil, fmt.Errorf("newTransformed: base distribution %T was "+
			"not created by this package", base)
	}

	var condShape tensor.Shape
	bc, dc := b.CondShape(), base.CondShape()
	switch {
	case bc != nil && dc != nil:
		if !bc.Eq(dc) {
			return nil, fmt.Errorf("newTransformed: the base distribution "+
				"and bijection are both conditional but have mismatched "+
				"conditioning shapes %v and %v", dc, bc)
		}
		condShape = bc
	case bc != nil:
		condShape = bc
	case dc != nil:
		condShape = dc
	}

	transformed := &Transformed{
		base:      base,
		baseK:     baseK,
		bijection: b,
		condShape: condShape,
	}
	transformed.dist = dist{transformed}
	return transformed, nil
}

func (t *Transformed) Shape() tensor.Shape     { return t.base.Shape() }
func (t *Transformed) CondShape() tensor.Shape { return t.condShape }

// Base returns the base distribution.
func (t *Transformed) Base() Distribution { return t.base }

// Bijection returns the transforming bijection.
func (t *Transformed) Bijection() bijection.Bijection { return t.bijection }

// Parameters collects the trainable parameters of the base
// distribution and the bijection.
func (t *Transformed) Parameters() []*goflow.Parameter {
	var params []*goflow.Parameter
	if p, ok := t.base.(goflow.Parameterised); ok {
		params = append(params, p.Parameters()...)
	}
	if p, ok := t.bijection.(goflow.Parameterised); ok {
		params = append(params, p.Parameters()...)
	}
	return params
}

// bijCondition wraps the unbatched conditioning slice for the
// bijection, which takes tensors. Unconditional bijections get nil.
func (t *Transformed) bijCondition(condition []float64) *tensor.Dense {
	cs := t.bijection.CondShape()
	if cs == nil || condition == nil {
		return nil
	}
	return goflow.FromFlat(cs, condition)
}

func (t *Transformed) sampleOne(key goflow.Key, condition []float64) (
	[]float64, error) {
	z, err := t.baseK.sampleOne(key, condition)
	if err != nil {
		return nil, err
	}

	y, err := t.bijection.Transform(goflow.FromFlat(t.Shape(), z),
		t.bijCondition(condition))
	if err != nil {
		return nil, err
	}
	return goflow.Flat(y), nil
}

func (t *Transformed) logProbOne(x, condition []float64) (float64, error) {
	z, logDet, err := t.bijection.InverseAndLogDet(
		goflow.FromFlat(t.Shape(), x), t.bijCondition(condition))
	if err != nil {
		return 0, err
	}

	baseLp, err := t.baseK.logProbOne(goflow.Flat(z), condition)
	if err != nil {
		return 0, err
	}
	return baseLp + logDet, nil
}

// sampleAndLogProbOne draws jointly from the base and corrects with
// the forward log-determinant, avoiding a redundant inverse pass.
func (t *Transformed) sampleAndLogProbOne(key goflow.Key,
	condition []float64) ([]float64, float64, error) {
	z, err := t.baseK.sampleOne(key, condition)
	if err != nil {
		return nil, 0, err
	}
	baseLp, err := t.baseK.logProbOne(z, condition)
	if err != nil {
		return nil, 0, err
	}

	y, fwdLogDet, err := t.bijection.TransformAndLogDet(
		goflow.FromFlat(t.Shape(), z), t.bijCondition(condition))
	if err != nil {
		return nil, 0, err
	}
	return goflow.Flat(y), baseLp - fwdLogDet, nil
}

// MergeTransforms unnests transformed-of-transformed distributions,
// returning an equivalent Transformed whose base is not itself
// Transformed: the nested bijections are collected outer to inner and
// flattened into a single Chain, with the outer bijection applied
// last in the forward direction.
func (t *Transformed) MergeTransforms() (*Transformed, error) {
	nested, ok := t.base.(*Transformed)
	if !ok {
		return t, nil
	}

	bijections := []bijection.Bijection{t.bijection}
	var base Distribution = nested
	for {
		inner, ok := base.(*Transformed)
		if !ok {
			break
		}
		bijections = append(bijections, inner.bijection)
		base = inner.base
	}

	// Innermost bijection first: it is applied first going forward.
	reversed := make([]bijection.Bijection, len(bijections))
	for i, b := range bijections {
		reversed[len(bijections)-1-i] = b
	}

	chain, err := bijection.NewChain(reversed...)
	if err != nil {
		return nil, fmt.Errorf("mergeTransforms: %v", err)
	}
	return NewTransformed(base, chain.MergeChains())
}

// SpecializeCondition pins a conditional distribution to one instance
// of its conditioning variable, making it act like an unconditional
// distribution.
type SpecializeCondition struct {
	dist
	wrapped   Distribution
	wrappedK  kernel
	condition []float64
}

// NewSpecializeCondition returns d specialized to the given
// condition, whose shape must equal d.CondShape() exactly.
func NewSpecializeCondition(d Distribution, condition *tensor.Dense) (
	*SpecializeCondition, error) {
	wrappedK, ok := d.(kernel)
	if !ok {
		return nil, fmt.Errorf("newSpecializeCondition: distribution %T "+
			"was not created by this package", d)
	}

	// Validate only after the distribution is known: the condition
	// shape is checked against the stored distribution.
	cs := d.CondShape()
	if cs == nil {
		return nil, fmt.Errorf("newSpecializeCondition: expected a " +
			"conditional distribution")
	}
	if condition == nil || !condition.Shape().Eq(cs) {
		got := tensor.Shape(nil)
		if condition != nil {
			got = condition.Shape()
		}
		return nil, fmt.Errorf("newSpecializeCondition: expected condition "+
			"shape %v but got %v", cs, got)
	}

	condData := make([]float64, len(goflow.Flat(condition)))
	copy(condData, goflow.Flat(condition))

	s := &SpecializeCondition{
		wrapped:   d,
		wrappedK:  wrappedK,
		condition: condData,
	}
	s.dist = dist{s}
	return s, nil
}

func (s *SpecializeCondition) Shape() tensor.Shape     { return s.wrapped.Shape() }
func (s *SpecializeCondition) CondShape() tensor.Shape { return nil }

// Condition returns the pinned conditioning variable.
func (s *SpecializeCondition) Condition() *tensor.Dense {
	out := make([]float64, len(s.condition))
	copy(out, s.condition)
	return goflow.FromFlat(s.wrapped.CondShape(), out)
}

func (s *SpecializeCondition) sampleOne(key goflow.Key,
	condition []float64) ([]float64, error) {
	return s.wrappedK.sampleOne(key, s.condition)
}

func (s *SpecializeCondition) logProbOne(x, condition []float64) (float64,
	error) {
	return s.wrappedK.logProbOne(x, s.condition)
}

func (s *SpecializeCondition) sampleAndLogProbOne(key goflow.Key,
	condition []float64) ([]float64, float64, error) {
	if jk, ok := s.wrappedK.(jointKernel); ok {
		return jk.sampleAndLogProbOne(key, s.condition)
	}

	x, err := s.wrappedK.sampleOne(key, s.condition)
	if err != nil {
		return nil, 0, err
	}
	lp, err := s.wrappedK.logProbOne(x, s.condition)
	if err != nil {
		return nil, 0, err
	}
	return x, lp, nil
}
