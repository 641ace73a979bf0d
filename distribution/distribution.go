// Package distribution provides probability distributions over
// tensors, including distributions transformed by bijections for
// normalizing-flow density estimation and variational inference.
//
// Every distribution is defined mathematically for a single unbatched
// point whose shape is Shape(), optionally conditioned on a single
// unbatched conditioning variable of shape CondShape(). The public
// methods broadcast over leading (batch) dimensions: trailing
// dimensions of every input must equal the declared shapes exactly,
// and each batch element is evaluated independently with its own
// split of the random key.
package distribution

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goflow"
	"gorgonia.org/tensor"
)

// Distribution is a probability distribution.
//
// Sample draws sampleShape-many samples; the output has shape
// sampleShape + Shape() for unconditional distributions and
// sampleShape + conditionBatchShape + Shape() when a batched
// condition is supplied.
//
// LogProb evaluates the log probability density of x, broadcasting
// the leading dimensions of x and condition together; values that are
// numerically undefined (NaN) are reported as -Inf, treating
// out-of-support points as zero probability.
//
// SampleAndLogProb draws samples jointly with their log densities;
// for transformed distributions this is cheaper than sampling and
// then calling LogProb, since it avoids inverting the bijection.
type Distribution interface {
	Shape() tensor.Shape
	CondShape() tensor.Shape

	Sample(key goflow.Key, sampleShape tensor.Shape,
		condition *tensor.Dense) (*tensor.Dense, error)

	LogProb(x, condition *tensor.Dense) (*tensor.Dense, error)

	SampleAndLogProb(key goflow.Key, sampleShape tensor.Shape,
		condition *tensor.Dense) (*tensor.Dense, *tensor.Dense, error)
}

// kernel is the unbatched core of a distribution: methods are defined
// for exactly one point and one conditioning variable, both flattened
// row-major. The dist wrapper vectorizes a kernel into the public
// Distribution methods.
type kernel interface {
	Shape() tensor.Shape
	CondShape() tensor.Shape
	sampleOne(key goflow.Key, condition []float64) ([]float64, error)
	logProbOne(x, condition []float64) (float64, error)
}

// jointKernel is implemented by kernels that can draw a sample
// together with its log density more cheaply than sampling and
// evaluating separately.
type jointKernel interface {
	sampleAndLogProbOne(key goflow.Key, condition []float64) ([]float64,
		float64, error)
}

// dist vectorizes a kernel over batch dimensions. Concrete
// distributions embed a dist pointing back at themselves, inheriting
// the public Sample, LogProb and SampleAndLogProb methods.
type dist struct {
	k kernel
}

// condBatch validates the condition against the kernel's declared
// conditioning shape and returns its leading batch dimensions along
// with its flattened data. Unconditional kernels ignore the condition
// entirely.
func (d dist) condBatch(condition *tensor.Dense) (tensor.Shape, []float64,
	error) {
	cs := d.k.CondShape()
	if cs == nil {
		return nil, nil, nil
	}
	if condition == nil {
		return nil, nil, fmt.Errorf("expected a condition with trailing "+
			"dimensions %v but got none", cs)
	}

	batch, err := goflow.TrailingBatch("condition", condition.Shape(), cs)
	if err != nil {
		return nil, nil, err
	}
	return batch, goflow.Flat(condition), nil
}

// conditionAt slices the unbatched conditioning variable for the
// given batch coordinates.
func (d dist) conditionAt(coords []int, condBatch tensor.Shape,
	condData []float64) []float64 {
	if condData == nil {
		return nil
	}

	size := goflow.Prod(d.k.CondShape())
	idx := goflow.BatchIndex(coords, condBatch)
	return condData[idx*size : (idx+1)*size]
}

func (d dist) LogProb(x, condition *tensor.Dense) (*tensor.Dense, error) {
	if x == nil {
		return nil, fmt.Errorf("logProb: expected x with trailing "+
			"dimensions %v but got none", d.k.Shape())
	}

	xBatch, err := goflow.TrailingBatch("x", x.Shape(), d.k.Shape())
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	condBatch, condData, err := d.condBatch(condition)
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	batch, err := goflow.BroadcastShapes(xBatch, condBatch)
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	xData := goflow.Flat(x)
	size := goflow.Prod(d.k.Shape())

	out := make([]float64, goflow.Prod(batch))
	for i := range out {
		coords := goflow.Coords(i, batch)

		xIdx := goflow.BatchIndex(coords, xBatch)
		lp, err := d.k.logProbOne(xData[xIdx*size:(xIdx+1)*size],
			d.conditionAt(coords, condBatch, condData))
		if err != nil {
			return nil, fmt.Errorf("logProb: %v", err)
		}

		if math.IsNaN(lp) {
			lp = math.Inf(-1)
		}
		out[i] = lp
	}

	return goflow.FromFlat(batch, out), nil
}

func (d dist) Sample(key goflow.Key, sampleShape tensor.Shape,
	condition *tensor.Dense) (*tensor.Dense, error) {
	samples, _, err := d.sample(key, sampleShape, condition, false)
	if err != nil {
		return nil, fmt.Errorf("sample: %v", err)
	}
	return samples, nil
}

func (d dist) SampleAndLogProb(key goflow.Key, sampleShape tensor.Shape,
	condition *tensor.Dense) (*tensor.Dense, *tensor.Dense, error) {
	samples, logProbs, err := d.sample(key, sampleShape, condition, true)
	if err != nil {
		return nil, nil, fmt.Errorf("sampleAndLogProb: %v", err)
	}
	return samples, logProbs, nil
}

// sample implements Sample and SampleAndLogProb. The output batch
// shape is sampleShape followed by the condition's batch shape; one
// independent subkey is split off per output element.
func (d dist) sample(key goflow.Key, sampleShape tensor.Shape,
	condition *tensor.Dense, withLogProb bool) (*tensor.Dense,
	*tensor.Dense, error) {
	condBatch, condData, err := d.condBatch(condition)
	if err != nil {
		return nil, nil, err
	}

	batch := make(tensor.Shape, 0, len(sampleShape)+len(condBatch))
	batch = append(batch, sampleShape...)
	batch = append(batch, condBatch...)

	n := goflow.Prod(batch)
	keys := key.Split(n)
	size := goflow.Prod(d.k.Shape())

	samples := make([]float64, n*size)
	var logProbs []float64
	if withLogProb {
		logProbs = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		coords := goflow.Coords(i, batch)
		// Condition batch dimensions trail the sample dimensions.
		cond := d.conditionAt(coords[len(sampleShape):], condBatch, condData)

		var s []float64
		var lp float64
		if withLogProb {
			s, lp, err = d.jointSampleOne(keys[i], cond)
		} else {
			s, err = d.k.sampleOne(keys[i], cond)
		}
		if err != nil {
			return nil, nil, err
		}

		copy(samples[i*size:(i+1)*size], s)
		if withLogProb {
			logProbs[i] = lp
		}
	}

	outShape := make(tensor.Shape, 0, len(batch)+len(d.k.Shape()))
	outShape = append(outShape, batch...)
	outShape = append(outShape, d.k.Shape()...)

	var logProbT *tensor.Dense
	if withLogProb {
		logProbT = goflow.FromFlat(batch, logProbs)
	}
	return goflow.FromFlat(outShape, samples), logProbT, nil
}

// jointSampleOne uses the kernel's joint method when available and
// otherwise falls back to sampling then evaluating. It is deliberately
// named differently from jointKernel's method: dist is embedded in
// every kernel, and a promoted sampleAndLogProbOne would make each
// kernel satisfy jointKernel with this very method.
func (d dist) jointSampleOne(key goflow.Key, condition []float64) (
	[]float64, float64, error) {
	if jk, ok := d.k.(jointKernel); ok {
		return jk.sampleAndLogProbOne(key, condition)
	}

	s, err := d.k.sampleOne(key, condition)
	if err != nil {
		return nil, 0, err
	}
	lp, err := d.k.logProbOne(s, condition)
	if err != nil {
		return nil, 0, err
	}
	return s, lp, nil
}
