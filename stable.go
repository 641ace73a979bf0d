package goflow

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// Softplus computes log(1 + exp(x)) without overflow for large x or
// needless underflow for very negative x.
func Softplus(x float64) float64 {
	switch {
	case x > 35:
		return x
	case x < -35:
		return math.Exp(x)
	default:
		return math.Log1p(math.Exp(x))
	}
}

// LogTanhDeriv computes log(1 - tanh(x)^2), the log derivative of
// tanh, in closed form. Naively logging 1-tanh(x)^2 cancels
// catastrophically once tanh saturates; the softplus identity
//
//	log(1 - tanh(x)^2) = 2*(log 2 - x - softplus(-2x))
//
// stays accurate arbitrarily far into the tails.
func LogTanhDeriv(x float64) float64 {
	return 2 * (math.Ln2 - x - Softplus(-2*x))
}

// LogMatMulExp computes log(exp(X) @ exp(Y)) without leaving the log
// domain. x and y hold stacks of matrices with shapes (n, a, b) and
// (n, b, c); matrix i of the result is the log-domain product of
// matrix i of x with matrix i of y. 2-dimensional inputs are treated
// as stacks of one.
//
// Stability comes from shifting: the row maxima of x and column
// maxima of y are subtracted before exponentiating and added back
// after the log, so entries spanning hundreds of orders of magnitude
// in log space neither overflow nor vanish. Entries of -Inf are
// treated as exact zeros of exp(X) and exp(Y).
func LogMatMulExp(x, y *tensor.Dense) (*tensor.Dense, error) {
	xs, err := stackDims("x", x)
	if err != nil {
		return nil, fmt.Errorf("logMatMulExp: %v", err)
	}
	ys, err := stackDims("y", y)
	if err != nil {
		return nil, fmt.Errorf("logMatMulExp: %v", err)
	}

	if xs[0] != ys[0] || xs[2] != ys[1] {
		return nil, fmt.Errorf("logMatMulExp: cannot multiply shapes %v and "+
			"%v", x.Shape(), y.Shape())
	}

	n, a, b, c := xs[0], xs[1], xs[2], ys[2]
	xd := Flat(x)
	yd := Flat(y)
	out := make([]float64, n*a*c)

	for m := 0; m < n; m++ {
		xm := xd[m*a*b : (m+1)*a*b]
		ym := yd[m*b*c : (m+1)*b*c]
		om := out[m*a*c : (m+1)*a*c]

		// Row maxima of x, column maxima of y.
		xShift := make([]float64, a)
		for i := 0; i < a; i++ {
			xShift[i] = math.Inf(-1)
			for k := 0; k < b; k++ {
				if v := xm[i*b+k]; v > xShift[i] {
					xShift[i] = v
				}
			}
		}
		yShift := make([]float64, c)
		for j := 0; j < c; j++ {
			yShift[j] = math.Inf(-1)
			for k := 0; k < b; k++ {
				if v := ym[k*c+j]; v > yShift[j] {
					yShift[j] = v
				}
			}
		}

		for i := 0; i < a; i++ {
			for j := 0; j < c; j++ {
				if math.IsInf(xShift[i], -1) || math.IsInf(yShift[j], -1) {
					// A fully -Inf row or column: the product entry
					// is an exact zero.
					om[i*c+j] = math.Inf(-1)
					continue
				}

				sum := 0.0
				for k := 0; k < b; k++ {
					xv, yv := xm[i*b+k], ym[k*c+j]
					if math.IsInf(xv, -1) || math.IsInf(yv, -1) {
						continue
					}
					sum += math.Exp(xv-xShift[i]) * math.Exp(yv-yShift[j])
				}
				om[i*c+j] = math.Log(sum) + xShift[i] + yShift[j]
			}
		}
	}

	outShape := tensor.Shape{n, a, c}
	if len(x.Shape()) == 2 && len(y.Shape()) == 2 {
		outShape = tensor.Shape{a, c}
	}
	return tensor.NewDense(tensor.Float64, outShape,
		tensor.WithBacking(out)), nil
}

// stackDims normalizes a 2- or 3-dimensional tensor to stack
// dimensions (n, rows, cols).
func stackDims(name string, t *tensor.Dense) ([3]int, error) {
	s := t.Shape()
	switch len(s) {
	case 2:
		return [3]int{1, s[0], s[1]}, nil
	case 3:
		return [3]int{s[0], s[1], s[2]}, nil
	default:
		return [3]int{}, fmt.Errorf("expected %v to have 2 or 3 dimensions "+
			"but got shape %v", name, s)
	}
}
