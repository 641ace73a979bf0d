package train

import (
	"fmt"

	"github.com/samuelfneumann/goflow"
	"github.com/samuelfneumann/goflow/distribution"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Target evaluates the log density of an unnormalised target at one
// unbatched point of the approximating distribution's shape.
type Target func(x *tensor.Dense) (float64, error)

// VariationalConfig holds the variational training settings.
// Zero-valued fields fall back to the defaults documented on each
// field.
type VariationalConfig struct {
	// Steps is the number of gradient steps. Defaults to 100.
	Steps int

	// Samples is the number of Monte Carlo samples per ELBO estimate.
	// Defaults to 500.
	Samples int

	// LearnRate is the Adam learning rate. Defaults to 5e-4.
	LearnRate float64

	// ClipNorm clips gradients elementwise to [-ClipNorm, ClipNorm]
	// when positive. Zero disables clipping.
	ClipNorm float64

	// Grad computes loss gradients. Defaults to
	// FiniteDifference(1e-6).
	Grad ValueAndGrad
}

func (c *VariationalConfig) fillDefaults() {
	if c.Steps == 0 {
		c.Steps = 100
	}
	if c.Samples == 0 {
		c.Samples = 500
	}
	if c.LearnRate == 0 {
		c.LearnRate = 5e-4
	}
	if c.Grad == nil {
		c.Grad = FiniteDifference(1e-6)
	}
}

// ELBOLoss estimates the negative evidence lower bound of d against
// target with n Monte Carlo samples drawn from key:
//
//	E[log q(x) - log p(x)], x ~ q
//
// where q is d's density and p the unnormalised target. Minimising it
// over d's parameters minimises the KL divergence from d to the
// normalised target.
func ELBOLoss(key goflow.Key, d distribution.Distribution, target Target,
	n int) (float64, error) {
	if n < 1 {
		return 0, fmt.Errorf("elboLoss: expected a positive sample count "+
			"but got %d", n)
	}

	samples, lps, err := d.SampleAndLogProb(key, tensor.Shape{n}, nil)
	if err != nil {
		return 0, fmt.Errorf("elboLoss: %v", err)
	}

	eventSize := goflow.Prod(d.Shape())
	sampleData := goflow.Flat(samples)
	lpData := goflow.Flat(lps)

	loss := 0.0
	for i := 0; i < n; i++ {
		point := make([]float64, eventSize)
		copy(point, sampleData[i*eventSize:(i+1)*eventSize])

		targetLp, err := target(goflow.FromFlat(d.Shape(), point))
		if err != nil {
			return 0, fmt.Errorf("elboLoss: sample %d: %v", i, err)
		}
		loss += lpData[i] - targetLp
	}
	return loss / float64(n), nil
}

// FitToVariationalTarget fits d to an unnormalised target log density
// by minimising the negative ELBO with Adam, returning the per-step
// loss estimates. Each step draws fresh samples from its own subkey
// of key, so the loss sequence is reproducible for a fixed key.
func FitToVariationalTarget(key goflow.Key, d distribution.Distribution,
	target Target, conf VariationalConfig) ([]float64, error) {
	conf.fillDefaults()

	params, err := parametersOf(d)
	if err != nil {
		return nil, fmt.Errorf("fitToVariationalTarget: %v", err)
	}
	if target == nil {
		return nil, fmt.Errorf("fitToVariationalTarget: expected a target")
	}
	if d.CondShape() != nil {
		return nil, fmt.Errorf("fitToVariationalTarget: expected an " +
			"unconditional distribution")
	}

	solver := newSolver(Config{
		LearnRate: conf.LearnRate,
		ClipNorm:  conf.ClipNorm,
	})
	vgs := make([]G.ValueGrad, len(params))
	for i, p := range params {
		vgs[i] = p
	}

	keys := key.Split(conf.Steps)
	losses := make([]float64, 0, conf.Steps)

	for step := 0; step < conf.Steps; step++ {
		stepKey := keys[step]
		loss := func() (float64, error) {
			return ELBOLoss(stepKey, d, target, conf.Samples)
		}

		value, err := conf.Grad(loss, params)
		if err != nil {
			return nil, fmt.Errorf("fitToVariationalTarget: step %d: %v",
				step, err)
		}
		if err := solver.Step(vgs); err != nil {
			return nil, fmt.Errorf("fitToVariationalTarget: step %d: %v",
				step, err)
		}
		for _, p := range params {
			p.ZeroGrad()
		}

		losses = append(losses, value)
	}
	return losses, nil
}
