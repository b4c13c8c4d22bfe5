package emitlib

import (
	"fmt"
	"log"
)

// UpdatePOut accumulates weighted symbol counts into pout, the sufficient
// statistic for the M-step of a discrete output model.  obs is a sequence
// of T symbols, weights is a T x K matrix of state posteriors, and pout is
// a K x nsymbol table; for every time point t and state k,
//
//	pout[k*nsymbol + obs[t]] += weights[t*K + k]
//
// Accumulation is time-major and deterministic.  No normalization is
// performed, so several sequences may be accumulated into one table before
// a single normalization pass; the caller zeros pout to start fresh.
//
// The symbols are validated before any accumulation, so a failing call
// leaves pout untouched.
func UpdatePOut[F Float, I Symbol](obs []I, weights []F, pout []F, nsymbol int) error {

	if nsymbol <= 0 || len(pout) == 0 || len(pout)%nsymbol != 0 {
		return fmt.Errorf("%w: pout has length %d, not a positive multiple of nsymbol=%d",
			ErrShape, len(pout), nsymbol)
	}
	nstate := len(pout) / nsymbol

	if len(weights) != len(obs)*nstate {
		return fmt.Errorf("%w: weights has length %d, want %d x %d",
			ErrShape, len(weights), len(obs), nstate)
	}

	for t, s := range obs {
		if s < 0 || int(s) >= nsymbol {
			return fmt.Errorf("%w: obs[%d] = %d with nsymbol = %d", ErrSymbol, t, int64(s), nsymbol)
		}
	}

	jw := 0
	for _, s := range obs {
		jp := int(s)
		for k := 0; k < nstate; k++ {
			pout[jp] += weights[jw+k]
			jp += nsymbol
		}
		jw += nstate
	}

	return nil
}

// DiscreteModel is a categorical output model over a finite symbol
// alphabet.  POut holds the K x NSymbol emission probabilities.  The
// observation symbol type is a type parameter so 32- and 64-bit coded
// trajectories use the same model.
type DiscreteModel[I Symbol] struct {

	// Number of hidden states
	NStates int

	// Size of the symbol alphabet
	NSymbol int

	// The emission probabilities, NStates x NSymbol
	POut []float64

	// Accumulated weighted counts, cleared by Reestimate
	counts []float64
}

// NewDiscreteModel returns a DiscreteModel with uniform emission
// probabilities.
func NewDiscreteModel[I Symbol](nstate, nsymbol int) *DiscreteModel[I] {

	pout := make([]float64, nstate*nsymbol)
	for j := range pout {
		pout[j] = 1 / float64(nsymbol)
	}

	return &DiscreteModel[I]{
		NStates: nstate,
		NSymbol: nsymbol,
		POut:    pout,
		counts:  make([]float64, nstate*nsymbol),
	}
}

// NState returns the number of hidden states.
func (dm *DiscreteModel[I]) NState() int {
	return dm.NStates
}

// StateProbs writes the T x K matrix of emission probabilities for one
// symbol sequence into out.
func (dm *DiscreteModel[I]) StateProbs(obs []I, out []float64) error {

	ns := dm.NStates
	if len(out) != len(obs)*ns {
		return fmt.Errorf("%w: out has length %d, want %d x %d", ErrShape, len(out), len(obs), ns)
	}

	for t, s := range obs {
		if s < 0 || int(s) >= dm.NSymbol {
			return fmt.Errorf("%w: obs[%d] = %d with nsymbol = %d", ErrSymbol, t, int64(s), dm.NSymbol)
		}
	}

	for t, s := range obs {
		jp := int(s)
		for k := 0; k < ns; k++ {
			out[t*ns+k] = dm.POut[jp]
			jp += dm.NSymbol
		}
	}

	return nil
}

// Accumulate adds the weighted symbol counts for one sequence to the
// internal count table.
func (dm *DiscreteModel[I]) Accumulate(obs []I, gamma []float64) error {
	if dm.counts == nil {
		// The accumulator does not survive serialization
		dm.counts = make([]float64, dm.NStates*dm.NSymbol)
	}
	return UpdatePOut(obs, gamma, dm.counts, dm.NSymbol)
}

func (dm *DiscreteModel[I]) writeParams(lg *log.Logger, labels []string) {

	lg.Printf("Emission probabilities:\n")
	writeMatrix(lg, dm.POut, dm.NStates, dm.NSymbol, labels)
	lg.Printf("\n")
}

// Reestimate converts the accumulated counts to emission probabilities by
// normalizing each state's row, then clears the accumulator.  A state with
// no accumulated weight falls back to the uniform distribution.
func (dm *DiscreteModel[I]) Reestimate() error {

	for k := 0; k < dm.NStates; k++ {
		i, j := k*dm.NSymbol, (k+1)*dm.NSymbol
		copy(dm.POut[i:j], dm.counts[i:j])
		normalizeSum(dm.POut[i:j], 1/float64(dm.NSymbol))
	}

	zero(dm.counts)

	return nil
}
