package distribution

import (
	"math"
	"testing"

	"github.com/samuelfneumann/goflow"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// condShift is a conditional test distribution: an independent normal
// whose mean is the conditioning variable.
type condShift struct {
	dist
	shape tensor.Shape
}

func newCondShift(dim int) *condShift {
	c := &condShift{shape: tensor.Shape{dim}}
	c.dist = dist{c}
	return c
}

func (c *condShift) Shape() tensor.Shape     { return c.shape }
func (c *condShift) CondShape() tensor.Shape { return c.shape }

func (c *condShift) sampleOne(key goflow.Key, condition []float64) (
	[]float64, error) {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: key.Source()}

	out := make([]float64, c.shape[0])
	for i := range out {
		out[i] = condition[i] + norm.Rand()
	}
	return out, nil
}

func (c *condShift) logProbOne(x, condition []float64) (float64, error) {
	lp := 0.0
	for i, v := range x {
		norm := distuv.Normal{Mu: condition[i], Sigma: 1}
		lp += norm.LogProb(v)
	}
	return lp, nil
}

func newVec(data ...float64) *tensor.Dense {
	return tensor.NewDense(tensor.Float64, tensor.Shape{len(data)},
		tensor.WithBacking(data))
}

func TestSampleShape(t *testing.T) {
	dist := NewStandardNormal(2)

	tests := []struct {
		sampleShape tensor.Shape
		want        tensor.Shape
	}{
		{tensor.Shape{}, tensor.Shape{2}},
		{tensor.Shape{10}, tensor.Shape{10, 2}},
		{tensor.Shape{3, 4}, tensor.Shape{3, 4, 2}},
	}

	for i, test := range tests {
		samples, err := dist.Sample(goflow.NewKey(uint64(i)),
			test.sampleShape, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !samples.Shape().Eq(test.want) {
			t.Errorf("test %d: expected shape %v but got %v", i, test.want,
				samples.Shape())
		}
	}
}

func TestSampleConditionShape(t *testing.T) {
	dist := newCondShift(3)

	// Unbatched condition: output is sampleShape + shape.
	condition := newVec(1, 2, 3)
	samples, err := dist.Sample(goflow.NewKey(0), tensor.Shape{10},
		condition)
	if err != nil {
		t.Fatal(err)
	}
	if !samples.Shape().Eq(tensor.Shape{10, 3}) {
		t.Errorf("expected shape (10, 3) but got %v", samples.Shape())
	}

	// Batched condition: output is sampleShape + batch + shape.
	batched := tensor.NewDense(tensor.Float64, tensor.Shape{5, 3},
		tensor.WithBacking(make([]float64, 15)))

	samples, err = dist.Sample(goflow.NewKey(0), nil, batched)
	if err != nil {
		t.Fatal(err)
	}
	if !samples.Shape().Eq(tensor.Shape{5, 3}) {
		t.Errorf("expected shape (5, 3) but got %v", samples.Shape())
	}

	samples, err = dist.Sample(goflow.NewKey(0), tensor.Shape{10}, batched)
	if err != nil {
		t.Fatal(err)
	}
	if !samples.Shape().Eq(tensor.Shape{10, 5, 3}) {
		t.Errorf("expected shape (10, 5, 3) but got %v", samples.Shape())
	}
}

func TestSampleMissingCondition(t *testing.T) {
	dist := newCondShift(2)

	if _, err := dist.Sample(goflow.NewKey(0), tensor.Shape{4},
		nil); err == nil {
		t.Error("expected an error for a missing condition")
	}
	if _, err := dist.LogProb(newVec(0, 0), nil); err == nil {
		t.Error("expected an error for a missing condition")
	}
}

func TestSampleDeterministic(t *testing.T) {
	dist := NewStandardNormal(3)

	a, err := dist.Sample(goflow.NewKey(42), tensor.Shape{7}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := dist.Sample(goflow.NewKey(42), tensor.Shape{7}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ad, bd := goflow.Flat(a), goflow.Flat(b)
	for i := range ad {
		if ad[i] != bd[i] {
			t.Fatal("expected identical samples for identical keys")
		}
	}

	// Batch elements use independent subkey streams.
	same := true
	for i := 0; i < 3; i++ {
		if ad[i] != ad[3+i] {
			same = false
		}
	}
	if same {
		t.Error("expected different batch elements to differ")
	}
}

func TestLogProbShape(t *testing.T) {
	dist := NewStandardNormal(2)

	// A single unbatched point yields a scalar.
	lp, err := dist.LogProb(newVec(0.5, -0.5), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(lp.Shape()) != 0 {
		t.Errorf("expected a scalar log probability but got shape %v",
			lp.Shape())
	}

	// A batch of 5 yields shape (5).
	x := tensor.NewDense(tensor.Float64, tensor.Shape{5, 2},
		tensor.WithBacking(make([]float64, 10)))
	lp, err = dist.LogProb(x, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !lp.Shape().Eq(tensor.Shape{5}) {
		t.Errorf("expected shape (5) but got %v", lp.Shape())
	}
}

func TestLogProbShapeMismatch(t *testing.T) {
	dist := NewStandardNormal(2)

	if _, err := dist.LogProb(newVec(1, 2, 3), nil); err == nil {
		t.Error("expected a shape mismatch error")
	}
	if _, err := dist.LogProb(nil, nil); err == nil {
		t.Error("expected an error for missing x")
	}
}

// TestLogProbBroadcast checks that x and condition batch dimensions
// broadcast together.
func TestLogProbBroadcast(t *testing.T) {
	dist := newCondShift(2)

	// One point against a batch of 3 conditions.
	x := newVec(0, 0)
	conditions := tensor.NewDense(tensor.Float64, tensor.Shape{3, 2},
		tensor.WithBacking([]float64{0, 0, 1, 1, 2, 2}))

	lp, err := dist.LogProb(x, conditions)
	if err != nil {
		t.Fatal(err)
	}
	if !lp.Shape().Eq(tensor.Shape{3}) {
		t.Fatalf("expected shape (3) but got %v", lp.Shape())
	}

	// Density of the origin decreases as the conditional mean moves
	// away from it.
	lps := goflow.Flat(lp)
	if !(lps[0] > lps[1] && lps[1] > lps[2]) {
		t.Errorf("expected decreasing densities but got %v", lps)
	}

	// Matching batch shapes evaluate pairwise.
	xs := tensor.NewDense(tensor.Float64, tensor.Shape{3, 2},
		tensor.WithBacking([]float64{0, 0, 1, 1, 2, 2}))
	lp, err = dist.LogProb(xs, conditions)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range goflow.Flat(lp) {
		if math.Abs(v-lps[0]) > 1e-12 {
			t.Errorf("entry %d: expected %v but got %v", i, lps[0], v)
		}
	}
}

func TestSampleAndLogProbConsistent(t *testing.T) {
	dist := newCondShift(2)
	condition := newVec(0.5, -1)

	samples, lps, err := dist.SampleAndLogProb(goflow.NewKey(13),
		tensor.Shape{6}, condition)
	if err != nil {
		t.Fatal(err)
	}

	check, err := dist.LogProb(samples, condition)
	if err != nil {
		t.Fatal(err)
	}

	want, got := goflow.Flat(check), goflow.Flat(lps)
	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-10 {
			t.Errorf("entry %d: expected %v but got %v", i, want[i], got[i])
		}
	}
}
