package train

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goflow"
	"github.com/samuelfneumann/goflow/distribution"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Config holds the maximum-likelihood training settings. Zero-valued
// fields fall back to the defaults documented on each field.
type Config struct {
	// MaxEpochs is the maximum number of passes over the training
	// split. Defaults to 100.
	MaxEpochs int

	// MaxPatience is the number of consecutive epochs the validation
	// loss may fail to improve before training stops. Defaults to 5.
	MaxPatience int

	// BatchSize is the number of observations per gradient step.
	// Partial trailing batches are dropped. Defaults to 100 or the
	// training-split size, whichever is smaller.
	BatchSize int

	// LearnRate is the Adam learning rate. Defaults to 5e-4.
	LearnRate float64

	// ClipNorm clips gradients elementwise to [-ClipNorm, ClipNorm]
	// when positive. Zero disables clipping.
	ClipNorm float64

	// ValProp is the proportion of the data held out for validation.
	// Defaults to 0.1.
	ValProp float64

	// Grad computes loss gradients. Defaults to
	// FiniteDifference(1e-6).
	Grad ValueAndGrad
}

func (c *Config) fillDefaults() {
	if c.MaxEpochs == 0 {
		c.MaxEpochs = 100
	}
	if c.MaxPatience == 0 {
		c.MaxPatience = 5
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.LearnRate == 0 {
		c.LearnRate = 5e-4
	}
	if c.ValProp == 0 {
		c.ValProp = 0.1
	}
	if c.Grad == nil {
		c.Grad = FiniteDifference(1e-6)
	}
}

// Losses records the per-epoch mean training loss and validation loss
// of a fit.
type Losses struct {
	Train []float64
	Val   []float64
}

// FitToData fits d to observations x by minimising the mean negative
// log likelihood with Adam. The observations have shape (n,) followed
// by d's shape; for a conditional distribution, condition pairs each
// observation with its conditioning variable and has shape (n,)
// followed by d's conditioning shape.
//
// The data is shuffled once into training and validation splits, the
// training split is reshuffled each epoch, and the parameters giving
// the lowest validation loss are restored before returning. Training
// stops after conf.MaxEpochs epochs or once the validation loss has
// not improved for conf.MaxPatience consecutive epochs.
func FitToData(key goflow.Key, d distribution.Distribution,
	x, condition *tensor.Dense, conf Config) (*Losses, error) {
	conf.fillDefaults()

	params, err := parametersOf(d)
	if err != nil {
		return nil, fmt.Errorf("fitToData: %v", err)
	}

	n, xData, condData, err := splitRows(d, x, condition)
	if err != nil {
		return nil, fmt.Errorf("fitToData: %v", err)
	}

	permKey, epochKey := key.Split2()
	rng := rand.New(permKey.Source())

	perm := rng.Perm(n)
	nVal := int(conf.ValProp * float64(n))
	if nVal < 1 {
		nVal = 1
	}
	if nVal >= n {
		return nil, fmt.Errorf("fitToData: expected at least 2 "+
			"observations to hold out a validation split, got %d", n)
	}
	trainIdx := perm[:n-nVal]
	valIdx := perm[n-nVal:]

	batchSize := conf.BatchSize
	if batchSize > len(trainIdx) {
		batchSize = len(trainIdx)
	}

	solver := newSolver(conf)
	vgs := make([]G.ValueGrad, len(params))
	for i, p := range params {
		vgs[i] = p
	}

	eventSize := goflow.Prod(d.Shape())
	condSize := 0
	if d.CondShape() != nil {
		condSize = goflow.Prod(d.CondShape())
	}

	batchLoss := func(idx []int) Loss {
		bx := gatherRows(xData, idx, eventSize, d.Shape())
		var bc *tensor.Dense
		if condData != nil {
			bc = gatherRows(condData, idx, condSize, d.CondShape())
		}

		return func() (float64, error) {
			lps, err := d.LogProb(bx, bc)
			if err != nil {
				return 0, err
			}
			return negMean(goflow.Flat(lps)), nil
		}
	}

	losses := &Losses{}
	bestVal := math.Inf(1)
	var bestParams [][]float64
	patience := 0

	epochRNG := rand.New(epochKey.Source())
	for epoch := 0; epoch < conf.MaxEpochs; epoch++ {
		shuffle(epochRNG, trainIdx)

		epochLoss, batches := 0.0, 0
		for start := 0; start+batchSize <= len(trainIdx); start += batchSize {
			loss := batchLoss(trainIdx[start : start+batchSize])

			value, err := conf.Grad(loss, params)
			if err != nil {
				return nil, fmt.Errorf("fitToData: epoch %d: %v", epoch, err)
			}
			if err := solver.Step(vgs); err != nil {
				return nil, fmt.Errorf("fitToData: epoch %d: %v", epoch, err)
			}
			for _, p := range params {
				p.ZeroGrad()
			}

			epochLoss += value
			batches++
		}
		losses.Train = append(losses.Train, epochLoss/float64(batches))

		valLoss, err := batchLoss(valIdx)()
		if err != nil {
			return nil, fmt.Errorf("fitToData: epoch %d: %v", epoch, err)
		}
		losses.Val = append(losses.Val, valLoss)

		if finiteOrInf(valLoss) < bestVal {
			bestVal = finiteOrInf(valLoss)
			bestParams = snapshot(params)
			patience = 0
		} else {
			patience++
			if patience >= conf.MaxPatience {
				break
			}
		}
	}

	if err := restore(params, bestParams); err != nil {
		return nil, fmt.Errorf("fitToData: %v", err)
	}
	return losses, nil
}

// newSolver builds the Adam solver described by conf.
func newSolver(conf Config) G.Solver {
	opts := []G.SolverOpt{G.WithLearnRate(conf.LearnRate)}
	if conf.ClipNorm > 0 {
		opts = append(opts, G.WithClip(conf.ClipNorm))
	}
	return G.NewAdamSolver(opts...)
}

// splitRows validates the row structure of x and condition against d
// and returns the row count with the flat backing data.
func splitRows(d distribution.Distribution, x, condition *tensor.Dense) (
	int, []float64, []float64, error) {
	if x == nil {
		return 0, nil, nil, fmt.Errorf("expected observations")
	}

	batch, err := goflow.TrailingBatch("x", x.Shape(), d.Shape())
	if err != nil {
		return 0, nil, nil, err
	}
	if len(batch) != 1 {
		return 0, nil, nil, fmt.Errorf("expected observations with a "+
			"single leading batch dimension but got shape %v", x.Shape())
	}
	n := batch[0]

	var condData []float64
	if d.CondShape() != nil {
		if condition == nil {
			return 0, nil, nil, fmt.Errorf("expected a conditioning " +
				"variable for each observation")
		}
		condBatch, err := goflow.TrailingBatch("condition",
			condition.Shape(), d.CondShape())
		if err != nil {
			return 0, nil, nil, err
		}
		if len(condBatch) != 1 || condBatch[0] != n {
			return 0, nil, nil, fmt.Errorf("expected %d conditioning "+
				"variables but got shape %v", n, condition.Shape())
		}
		condData = goflow.Flat(condition)
	}

	return n, goflow.Flat(x), condData, nil
}

// gatherRows copies the rows at idx out of flat row-major data into a
// batch tensor of shape (len(idx),) followed by event.
func gatherRows(data []float64, idx []int, rowSize int,
	event tensor.Shape) *tensor.Dense {
	out := make([]float64, len(idx)*rowSize)
	for i, row := range idx {
		copy(out[i*rowSize:(i+1)*rowSize], data[row*rowSize:(row+1)*rowSize])
	}

	shape := append(tensor.Shape{len(idx)}, event...)
	return goflow.FromFlat(shape, out)
}

func negMean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum -= v
	}
	return sum / float64(len(vals))
}

func shuffle(rng *rand.Rand, idx []int) {
	rng.Shuffle(len(idx), func(i, j int) {
		idx[i], idx[j] = idx[j], idx[i]
	})
}

func snapshot(params []*goflow.Parameter) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		data := p.Data()
		out[i] = make([]float64, len(data))
		copy(out[i], data)
	}
	return out
}

func restore(params []*goflow.Parameter, saved [][]float64) error {
	if saved == nil {
		return nil
	}
	for i, p := range params {
		if err := p.Set(saved[i]); err != nil {
			return err
		}
	}
	return nil
}
