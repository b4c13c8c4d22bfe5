// Package emitlib provides the emission-model kernels for hidden Markov
// model estimation: a weighted count accumulator for discrete (categorical)
// output models and a Gaussian density evaluator, together with the
// Baum-Welch machinery that consumes them.
//
// All matrices are flat row-major slices with explicit dimensions, e.g. a
// T x K weight matrix w stores w[t*K+k].
package emitlib

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// Minimum allowed value for an estimated observation SD
	sdmin = 1e-8

	// Tolerance below which a normalization sum is treated as zero
	normtol = 1e-10
)

// Fatal precondition violations detected at the kernel boundary.
// Kernel errors wrap one of these values.
var (
	// ErrShape indicates a dimension disagreement between arguments.
	ErrShape = errors.New("emitlib: shape mismatch")

	// ErrSymbol indicates a discrete symbol outside [0, nsymbol).
	ErrSymbol = errors.New("emitlib: symbol index out of range")

	// ErrSigma indicates a non-positive standard deviation, which signals
	// a collapsed Gaussian component upstream and is never clamped.
	ErrSigma = errors.New("emitlib: non-positive standard deviation")
)

// Float is the set of floating point precisions the kernels support.
type Float interface {
	~float32 | ~float64
}

// Symbol is the set of integer index widths the discrete kernel supports.
type Symbol interface {
	~int32 | ~int64 | ~int
}

// normalize the values in x to have a maximum of 1, returning the scale.
// If the maximum is degenerate, fill x with z and return 0.
func normalizeMax(x []float64, z float64) float64 {
	scale := floats.Max(x)
	if scale < normtol {
		for j := range x {
			x[j] = z
		}
		return 0
	}
	floats.Scale(1/scale, x)
	return scale
}

// normalize the values in x to have a sum of 1.  If the sum is degenerate,
// fill x with z instead.
func normalizeSum(x []float64, z float64) {
	scale := floats.Sum(x)
	if scale < normtol {
		for j := range x {
			x[j] = z
		}
		return
	}
	floats.Scale(1/scale, x)
}

func argmax(x []float64) int {
	j := 0
	v := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > v {
			v = x[i]
			j = i
		}
	}

	return j
}

// Zero the elements of x
func zero(x []float64) {
	for j := range x {
		x[j] = 0
	}
}

// makeFloatArray makes a collection of slices with the given lengths,
// packed contiguously.
func makeFloatArray(lens []int) [][]float64 {

	var n int
	for _, c := range lens {
		n += c
	}

	bka := make([]float64, n)
	x := make([][]float64, len(lens))
	ii := 0
	for j, c := range lens {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}

// logmat writes elementwise logs of src into dst.
func logmat(dst, src []float64) {
	for j := range src {
		dst[j] = math.Log(src[j])
	}
}
