// Package train fits distributions with trainable parameters to
// observed data by maximum likelihood, or to an unnormalised target
// density by minimising a variational objective. Gradients are
// supplied through the ValueAndGrad capability, and parameters are
// stepped with the Gorgonia Adam solver.
package train

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goflow"
)

// Loss evaluates the scalar training objective at the current
// parameter values. Implementations read the parameters each call, so
// perturbing a parameter and re-evaluating yields the perturbed loss.
type Loss func() (float64, error)

// ValueAndGrad evaluates a loss and writes its gradient with respect
// to each parameter into the parameter's gradient buffer, returning
// the loss value.
type ValueAndGrad func(loss Loss, params []*goflow.Parameter) (float64,
	error)

// FiniteDifference returns a ValueAndGrad that estimates gradients
// with central differences of step size eps. Each parameter element
// costs two loss evaluations, so it suits small parameter counts.
func FiniteDifference(eps float64) ValueAndGrad {
	return func(loss Loss, params []*goflow.Parameter) (float64, error) {
		if eps <= 0 {
			return 0, fmt.Errorf("finiteDifference: expected a positive "+
				"step size but got %v", eps)
		}

		value, err := loss()
		if err != nil {
			return 0, fmt.Errorf("finiteDifference: %v", err)
		}

		for _, p := range params {
			data := p.Data()
			grad := p.GradData()

			for i := range data {
				orig := data[i]

				data[i] = orig + eps
				hi, err := loss()
				if err != nil {
					data[i] = orig
					return 0, fmt.Errorf("finiteDifference: %v", err)
				}

				data[i] = orig - eps
				lo, err := loss()
				if err != nil {
					data[i] = orig
					return 0, fmt.Errorf("finiteDifference: %v", err)
				}

				data[i] = orig
				grad[i] = (hi - lo) / (2 * eps)
			}
		}
		return value, nil
	}
}

// parametersOf extracts the trainable parameters of v, failing when v
// carries none.
func parametersOf(v interface{}) ([]*goflow.Parameter, error) {
	p, ok := v.(goflow.Parameterised)
	if !ok {
		return nil, fmt.Errorf("expected a parameterised value but got %T", v)
	}

	params := p.Parameters()
	if len(params) == 0 {
		return nil, fmt.Errorf("expected at least one trainable parameter")
	}
	return params, nil
}

// finiteOrInf maps NaN losses to +Inf so a numerically broken
// evaluation never looks like an improvement.
func finiteOrInf(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}
