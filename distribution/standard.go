package distribution

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goflow"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// StandardNormal is an independent standard normal over each entry of
// its shape. Unlike Normal it has no trainable parameters.
type StandardNormal struct {
	dist
	shape tensor.Shape
}

// NewStandardNormal returns a standard normal distribution of the
// given shape. An empty shape gives a scalar distribution.
func NewStandardNormal(shape ...int) *StandardNormal {
	s := &StandardNormal{shape: tensor.Shape(shape).Clone()}
	s.dist = dist{s}
	return s
}

func (s *StandardNormal) Shape() tensor.Shape     { return s.shape }
func (s *StandardNormal) CondShape() tensor.Shape { return nil }

func (s *StandardNormal) sampleOne(key goflow.Key, condition []float64) (
	[]float64, error) {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: key.Source()}

	out := make([]float64, goflow.Prod(s.shape))
	for i := range out {
		out[i] = norm.Rand()
	}
	return out, nil
}

func (s *StandardNormal) logProbOne(x, condition []float64) (float64,
	error) {
	norm := distuv.Normal{Mu: 0, Sigma: 1}

	lp := 0.0
	for _, v := range x {
		lp += norm.LogProb(v)
	}
	return lp, nil
}

// standardUniform is an independent uniform (0, 1) over each entry.
type standardUniform struct {
	dist
	shape tensor.Shape
}

func newStandardUniform(shape tensor.Shape) *standardUniform {
	s := &standardUniform{shape: shape.Clone()}
	s.dist = dist{s}
	return s
}

func (s *standardUniform) Shape() tensor.Shape     { return s.shape }
func (s *standardUniform) CondShape() tensor.Shape { return nil }

func (s *standardUniform) sampleOne(key goflow.Key, condition []float64) (
	[]float64, error) {
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: key.Source()}

	out := make([]float64, goflow.Prod(s.shape))
	for i := range out {
		out[i] = uniform.Rand()
	}
	return out, nil
}

func (s *standardUniform) logProbOne(x, condition []float64) (float64,
	error) {
	uniform := distuv.Uniform{Min: 0, Max: 1}

	lp := 0.0
	for _, v := range x {
		lp += uniform.LogProb(v)
	}
	return lp, nil
}

// standardGumbel is an independent standard Gumbel over each entry.
type standardGumbel struct {
	dist
	shape tensor.Shape
}

func newStandardGumbel(shape tensor.Shape) *standardGumbel {
	s := &standardGumbel{shape: shape.Clone()}
	s.dist = dist{s}
	return s
}

func (s *standardGumbel) Shape() tensor.Shape     { return s.shape }
func (s *standardGumbel) CondShape() tensor.Shape { return nil }

func (s *standardGumbel) sampleOne(key goflow.Key, condition []float64) (
	[]float64, error) {
	gumbel := distuv.GumbelRight{Mu: 0, Beta: 1, Src: key.Source()}

	out := make([]float64, goflow.Prod(s.shape))
	for i := range out {
		out[i] = gumbel.Rand()
	}
	return out, nil
}

func (s *standardGumbel) logProbOne(x, condition []float64) (float64,
	error) {
	gumbel := distuv.GumbelRight{Mu: 0, Beta: 1}

	lp := 0.0
	for _, v := range x {
		lp += gumbel.LogProb(v)
	}
	return lp, nil
}

// standardLaplace is an independent standard Laplace over each entry.
type standardLaplace struct {
	dist
	shape tensor.Shape
}

func newStandardLaplace(shape tensor.Shape) *standardLaplace {
	s := &standardLaplace{shape: shape.Clone()}
	s.dist = dist{s}
	return s
}

func (s *standardLaplace) Shape() tensor.Shape     { return s.shape }
func (s *standardLaplace) CondShape() tensor.Shape { return nil }

func (s *standardLaplace) sampleOne(key goflow.Key, condition []float64) (
	[]float64, error) {
	laplace := distuv.Laplace{Mu: 0, Scale: 1, Src: key.Source()}

	out := make([]float64, goflow.Prod(s.shape))
	for i := range out {
		out[i] = laplace.Rand()
	}
	return out, nil
}

func (s *standardLaplace) logProbOne(x, condition []float64) (float64,
	error) {
	laplace := distuv.Laplace{Mu: 0, Scale: 1}

	lp := 0.0
	for _, v := range x {
		lp += laplace.LogProb(v)
	}
	return lp, nil
}

// standardExponential is an independent unit-rate exponential over
// each entry.
type standardExponential struct {
	dist
	shape tensor.Shape
}

func newStandardExponential(shape tensor.Shape) *standardExponential {
	s := &standardExponential{shape: shape.Clone()}
	s.dist = dist{s}
	return s
}

func (s *standardExponential) Shape() tensor.Shape     { return s.shape }
func (s *standardExponential) CondShape() tensor.Shape { return nil }

func (s *standardExponential) sampleOne(key goflow.Key,
	condition []float64) ([]float64, error) {
	exponential := distuv.Exponential{Rate: 1, Src: key.Source()}

	out := make([]float64, goflow.Prod(s.shape))
	for i := range out {
		out[i] = exponential.Rand()
	}
	return out, nil
}

func (s *standardExponential) logProbOne(x, condition []float64) (float64,
	error) {
	exponential := distuv.Exponential{Rate: 1}

	lp := 0.0
	for _, v := range x {
		lp += exponential.LogProb(v)
	}
	return lp, nil
}

// standardStudentT is an independent Student's t with per-entry
// degrees of freedom, stored raw as log-df so that any value a
// training step writes still derives a positive df.
type standardStudentT struct {
	dist
	shape tensor.Shape
	logDf []float64
}

func newStandardStudentT(df *tensor.Dense) (*standardStudentT, error) {
	dfData := goflow.Flat(df)
	logDf := make([]float64, len(dfData))
	for i, v := range dfData {
		if v <= 0 {
			return nil, fmt.Errorf("newStandardStudentT: degrees of "+
				"freedom must be positive but got %v", v)
		}
		logDf[i] = math.Log(v)
	}

	s := &standardStudentT{shape: df.Shape().Clone(), logDf: logDf}
	s.dist = dist{s}
	return s, nil
}

func (s *standardStudentT) Shape() tensor.Shape     { return s.shape }
func (s *standardStudentT) CondShape() tensor.Shape { return nil }

// df returns the degrees of freedom for entry i.
func (s *standardStudentT) df(i int) float64 {
	return math.Exp(s.logDf[i])
}

func (s *standardStudentT) sampleOne(key goflow.Key, condition []float64) (
	[]float64, error) {
	src := key.Source()

	out := make([]float64, goflow.Prod(s.shape))
	for i := range out {
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: s.df(i), Src: src}
		out[i] = t.Rand()
	}
	return out, nil
}

func (s *standardStudentT) logProbOne(x, condition []float64) (float64,
	error) {
	lp := 0.0
	for i, v := range x {
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: s.df(i)}
		lp += t.LogProb(v)
	}
	return lp, nil
}

// standardCauchy is an independent standard Cauchy over each entry.
// Student's t with one degree of freedom has exactly the Cauchy
// density, so the distuv t distribution backs both draws and log
// probabilities.
type standardCauchy struct {
	dist
	shape tensor.Shape
}

func newStandardCauchy(shape tensor.Shape) *standardCauchy {
	s := &standardCauchy{shape: shape.Clone()}
	s.dist = dist{s}
	return s
}

func (s *standardCauchy) Shape() tensor.Shape     { return s.shape }
func (s *standardCauchy) CondShape() tensor.Shape { return nil }

func (s *standardCauchy) sampleOne(key goflow.Key, condition []float64) (
	[]float64, error) {
	cauchy := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: 1, Src: key.Source()}

	out := make([]float64, goflow.Prod(s.shape))
	for i := range out {
		out[i] = cauchy.Rand()
	}
	return out, nil
}

func (s *standardCauchy) logProbOne(x, condition []float64) (float64,
	error) {
	cauchy := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: 1}

	lp := 0.0
	for _, v := range x {
		lp += cauchy.LogProb(v)
	}
	return lp, nil
}
