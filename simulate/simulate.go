// Package simulate generates synthetic data from known HMM parameters,
// for testing and for exercising the estimation programs.
package simulate

import (
	"compress/gzip"
	"encoding/gob"
	"math/rand"
	"os"

	"github.com/statforge/hmmemit/emitlib"
)

// genDiscrete draws from the given probability vector, which must sum to 1.
func genDiscrete(pr []float64, rng *rand.Rand) int {

	u := rng.Float64()
	p := 0.0
	for j := range pr {
		p += pr[j]
		if u < p {
			return j
		}
	}

	// Can't reach here
	panic("Not a probability vector")
}

// RandomTrans returns a diagonally dominant nstate x nstate transition
// matrix with the given probability of staying in the current state.
func RandomTrans(nstate int, stay float64) []float64 {

	tr := make([]float64, nstate*nstate)
	for i := 0; i < nstate; i++ {
		for j := 0; j < nstate; j++ {
			if i == j {
				tr[i*nstate+j] = stay
			} else {
				tr[i*nstate+j] = (1 - stay) / float64(nstate-1)
			}
		}
	}
	if nstate == 1 {
		tr[0] = 1
	}

	return tr
}

// UniformInit returns the uniform initial state distribution.
func UniformInit(nstate int) []float64 {

	init := make([]float64, nstate)
	for i := range init {
		init[i] = 1 / float64(nstate)
	}

	return init
}

// States generates a random state sequence of length ntime from the given
// transition matrix and initial distribution.
func States(trans, init []float64, ntime int, rng *rand.Rand) []int {

	nstate := len(init)
	states := make([]int, ntime)

	states[0] = genDiscrete(init, rng)
	for t := 1; t < ntime; t++ {
		st := states[t-1]
		row := trans[st*nstate : (st+1)*nstate]
		states[t] = genDiscrete(row, rng)
	}

	return states
}

// Discrete generates a symbol sequence from a state sequence and a
// nstate x nsymbol emission probability table.
func Discrete[I emitlib.Symbol](states []int, pout []float64, nsymbol int, rng *rand.Rand) []I {

	obs := make([]I, len(states))
	for t, st := range states {
		row := pout[st*nsymbol : (st+1)*nsymbol]
		obs[t] = I(genDiscrete(row, rng))
	}

	return obs
}

// Gaussian generates an observation sequence from a state sequence and
// per-state means and standard deviations.
func Gaussian(states []int, mean, std []float64, rng *rand.Rand) []float64 {

	obs := make([]float64, len(states))
	for t, st := range states {
		obs[t] = mean[st] + rng.NormFloat64()*std[st]
	}

	return obs
}

// Dataset holds simulated sequences together with the parameters that
// generated them.
type Dataset[O any] struct {

	// The true state sequences
	States [][]int

	// The observation sequences
	Obs [][]O

	// The generating transition matrix and initial distribution
	Trans []float64
	Init  []float64

	// Discrete generating parameters (empty for Gaussian data)
	POut    []float64
	NSymbol int

	// Gaussian generating parameters (empty for discrete data)
	Mean []float64
	Std  []float64
}

// Write saves the dataset to a gzip-compressed gob file.
func (ds *Dataset[O]) Write(fname string) error {

	fid, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer fid.Close()

	gid := gzip.NewWriter(fid)
	defer gid.Close()

	return gob.NewEncoder(gid).Encode(ds)
}

// ReadDataset reads a dataset from a gzip-compressed gob file.
func ReadDataset[O any](fname string) (*Dataset[O], error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	gid, err := gzip.NewReader(fid)
	if err != nil {
		return nil, err
	}
	defer gid.Close()

	var ds Dataset[O]
	if err := gob.NewDecoder(gid).Decode(&ds); err != nil {
		return nil, err
	}

	return &ds, nil
}
