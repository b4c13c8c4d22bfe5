package emitlib

import (
	"fmt"
	"log"
	"math"
)

const (
	// -log(sqrt(2*pi))
	logInvSqrt2Pi = -0.9189385332046727

	// Density floors, per precision.  Densities that would underflow are
	// clamped here so that no exact zero reaches a downstream division.
	densityFloor64 = 1e-305
	densityFloor32 = 1e-35
)

func densityFloor[F Float]() float64 {
	var z F
	switch any(z).(type) {
	case float32:
		return densityFloor32
	default:
		return densityFloor64
	}
}

// checkSigmas validates the Gaussian parameter arrays.  The sigmas are
// standard deviations and must be strictly positive; a violation indicates
// a collapsed component upstream and is reported rather than clamped.
func checkSigmas[F Float](mus, sigmas []F) error {

	if len(mus) == 0 || len(mus) != len(sigmas) {
		return fmt.Errorf("%w: %d means, %d standard deviations", ErrShape, len(mus), len(sigmas))
	}

	for k, sd := range sigmas {
		if !(sd > 0) {
			return fmt.Errorf("%w: sigmas[%d] = %v", ErrSigma, k, float64(sd))
		}
	}

	return nil
}

// gaussInto writes the densities of a single observation under each of the
// K univariate Gaussians into out.  The log density is formed first and
// exponentiated, then floored.
func gaussInto[F Float](o F, mus, sigmas []F, out []F, floor float64) {
	for k := range mus {
		sd := float64(sigmas[k])
		z := (float64(o) - float64(mus[k])) / sd
		d := math.Exp(logInvSqrt2Pi - math.Log(sd) - 0.5*z*z)
		if d < floor {
			d = floor
		}
		out[k] = F(d)
	}
}

// PO returns the Gaussian emission densities of a single observation under
// K states, with mus[k] and sigmas[k] the mean and standard deviation of
// state k.  If out is non-nil it must have length K; the densities are
// written into it and it is returned, avoiding allocation in per-time-step
// loops.  Otherwise a fresh slice is allocated.
func PO[F Float](o F, mus, sigmas []F, out []F) ([]F, error) {

	if err := checkSigmas(mus, sigmas); err != nil {
		return nil, err
	}

	if out == nil {
		out = make([]F, len(mus))
	} else if len(out) != len(mus) {
		return nil, fmt.Errorf("%w: out has length %d, want %d", ErrShape, len(out), len(mus))
	}

	gaussInto(o, mus, sigmas, out, densityFloor[F]())

	return out, nil
}

// PObs is the batched form of PO: the result is a T x K row-major density
// matrix whose row t holds the state densities of obs[t].  Rows are
// computed independently.
func PObs[F Float](obs []F, mus, sigmas []F, out []F) ([]F, error) {

	if err := checkSigmas(mus, sigmas); err != nil {
		return nil, err
	}

	nstate := len(mus)
	if out == nil {
		out = make([]F, len(obs)*nstate)
	} else if len(out) != len(obs)*nstate {
		return nil, fmt.Errorf("%w: out has length %d, want %d x %d",
			ErrShape, len(out), len(obs), nstate)
	}

	floor := densityFloor[F]()
	for t, o := range obs {
		gaussInto(o, mus, sigmas, out[t*nstate:(t+1)*nstate], floor)
	}

	return out, nil
}

// PODiag returns the emission densities of a single ndim-dimensional
// observation under K diagonal-covariance Gaussians.  mus and sigmas are
// K x ndim row-major; the density for a state is the product of its
// per-dimension univariate densities, accumulated in log space.
func PODiag[F Float](o []F, mus, sigmas []F, out []F) ([]F, error) {

	ndim := len(o)
	if ndim == 0 || len(mus)%ndim != 0 {
		return nil, fmt.Errorf("%w: %d means with ndim = %d", ErrShape, len(mus), ndim)
	}
	if err := checkSigmas(mus, sigmas); err != nil {
		return nil, err
	}

	nstate := len(mus) / ndim
	if out == nil {
		out = make([]F, nstate)
	} else if len(out) != nstate {
		return nil, fmt.Errorf("%w: out has length %d, want %d", ErrShape, len(out), nstate)
	}

	floor := densityFloor[F]()
	for k := 0; k < nstate; k++ {
		ld := 0.0
		ii := k * ndim
		for j := 0; j < ndim; j++ {
			sd := float64(sigmas[ii+j])
			z := (float64(o[j]) - float64(mus[ii+j])) / sd
			ld += logInvSqrt2Pi - math.Log(sd) - 0.5*z*z
		}
		d := math.Exp(ld)
		if d < floor {
			d = floor
		}
		out[k] = F(d)
	}

	return out, nil
}

// PObsDiag is the batched form of PODiag.  obs is T x ndim row-major and
// the result is T x K.
func PObsDiag[F Float](obs []F, ndim int, mus, sigmas []F, out []F) ([]F, error) {

	if ndim <= 0 || len(obs)%ndim != 0 {
		return nil, fmt.Errorf("%w: %d observation values with ndim = %d", ErrShape, len(obs), ndim)
	}
	if len(mus)%ndim != 0 {
		return nil, fmt.Errorf("%w: %d means with ndim = %d", ErrShape, len(mus), ndim)
	}
	if err := checkSigmas(mus, sigmas); err != nil {
		return nil, err
	}

	ntime := len(obs) / ndim
	nstate := len(mus) / ndim
	if out == nil {
		out = make([]F, ntime*nstate)
	} else if len(out) != ntime*nstate {
		return nil, fmt.Errorf("%w: out has length %d, want %d x %d",
			ErrShape, len(out), ntime, nstate)
	}

	for t := 0; t < ntime; t++ {
		// Parameters were validated above, so the row call cannot fail.
		_, _ = PODiag(obs[t*ndim:(t+1)*ndim], mus, sigmas, out[t*nstate:(t+1)*nstate])
	}

	return out, nil
}

// GaussianModel is a Gaussian output model with one univariate component
// per hidden state.
type GaussianModel struct {

	// The observation means, one per state
	Mean []float64

	// The observation standard deviations, one per state
	Std []float64

	// Accumulated weighted moments, cleared by Reestimate
	wsum []float64
	msum []float64
	vsum []float64
}

// NewGaussianModel returns a GaussianModel with zero means and unit
// standard deviations.
func NewGaussianModel(nstate int) *GaussianModel {

	std := make([]float64, nstate)
	for j := range std {
		std[j] = 1
	}

	return &GaussianModel{
		Mean: make([]float64, nstate),
		Std:  std,
		wsum: make([]float64, nstate),
		msum: make([]float64, nstate),
		vsum: make([]float64, nstate),
	}
}

// NState returns the number of hidden states.
func (gm *GaussianModel) NState() int {
	return len(gm.Mean)
}

// StateProbs writes the T x K emission density matrix for one observation
// sequence into out.
func (gm *GaussianModel) StateProbs(obs []float64, out []float64) error {
	_, err := PObs(obs, gm.Mean, gm.Std, out)
	return err
}

// Accumulate adds the weighted moments of one sequence to the internal
// accumulators.
func (gm *GaussianModel) Accumulate(obs []float64, gamma []float64) error {

	ns := len(gm.Mean)
	if len(gamma) != len(obs)*ns {
		return fmt.Errorf("%w: gamma has length %d, want %d x %d", ErrShape, len(gamma), len(obs), ns)
	}

	if gm.wsum == nil {
		// The accumulators do not survive serialization
		gm.wsum = make([]float64, ns)
		gm.msum = make([]float64, ns)
		gm.vsum = make([]float64, ns)
	}

	jw := 0
	for _, y := range obs {
		for k := 0; k < ns; k++ {
			w := gamma[jw+k]
			gm.wsum[k] += w
			gm.msum[k] += w * y
			gm.vsum[k] += w * y * y
		}
		jw += ns
	}

	return nil
}

// Reestimate recomputes the means and standard deviations from the
// accumulated moments and clears the accumulators.  A state whose weight
// sum underflows keeps its previous parameters.  Standard deviations are
// floored away from zero so the next E-step cannot see a degenerate
// component.
func (gm *GaussianModel) Reestimate() error {

	for k := range gm.Mean {
		if gm.wsum[k] >= normtol {
			mn := gm.msum[k] / gm.wsum[k]
			v := gm.vsum[k]/gm.wsum[k] - mn*mn
			if v < 0 {
				v = 0
			}
			gm.Mean[k] = mn
			gm.Std[k] = math.Sqrt(v)
		}
		if gm.Std[k] < sdmin {
			gm.Std[k] = sdmin
		}
	}

	zero(gm.wsum)
	zero(gm.msum)
	zero(gm.vsum)

	return nil
}

func (gm *GaussianModel) writeParams(lg *log.Logger, labels []string) {

	lg.Printf("Means:\n")
	writeMatrix(lg, gm.Mean, len(gm.Mean), 1, labels)
	lg.Printf("\n")

	lg.Printf("Standard deviations:\n")
	writeMatrix(lg, gm.Std, len(gm.Std), 1, labels)
	lg.Printf("\n")
}

// SetStartMoments seeds the model parameters from the marginal moments of
// the data: the state means are spread around the pooled mean by pooled
// standard deviation steps, and every state starts at the pooled SD.
func (gm *GaussianModel) SetStartMoments(obs [][]float64) {

	var mn, va, n float64
	for _, seq := range obs {
		for _, y := range seq {
			mn += y
			n++
		}
	}
	if n == 0 {
		return
	}
	mn /= n

	for _, seq := range obs {
		for _, y := range seq {
			d := y - mn
			va += d * d
		}
	}
	sd := math.Sqrt(va / n)
	if sd < sdmin {
		sd = 1
	}

	ns := float64(len(gm.Mean))
	for k := range gm.Mean {
		gm.Mean[k] = mn + sd*(2*float64(k)-(ns-1))/ns
		gm.Std[k] = sd
	}
}
