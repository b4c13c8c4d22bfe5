package main

import (
	"flag"
	"math/rand"
	"time"

	"github.com/statforge/hmmemit/simulate"
)

func main() {

	var obsmodel, outname string
	flag.StringVar(&obsmodel, "obsmodel", "gaussian", "Observation distribution (gaussian or discrete)")
	flag.StringVar(&outname, "outname", "", "Output file name prefix")

	var nState, nSymbol, nSeq, nTime int
	flag.IntVar(&nState, "nstate", 0, "Number of states")
	flag.IntVar(&nSymbol, "nsymbol", 0, "Number of symbols (discrete model only)")
	flag.IntVar(&nSeq, "nseq", 0, "Number of sequences")
	flag.IntVar(&nTime, "ntime", 0, "Number of time points per sequence")

	var stay float64
	flag.Float64Var(&stay, "stay", 0.8, "Probability of remaining in the current state")

	var seed int64
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 uses the clock)")
	flag.Parse()

	if outname == "" {
		panic("'outname' is required")
	}
	if nState == 0 || nSeq == 0 || nTime == 0 {
		panic("'nstate', 'nseq', and 'ntime' are required")
	}

	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	trans := simulate.RandomTrans(nState, stay)
	init := simulate.UniformInit(nState)

	states := make([][]int, nSeq)
	for p := range states {
		states[p] = simulate.States(trans, init, nTime, rng)
	}

	switch obsmodel {
	case "gaussian":
		mean := make([]float64, nState)
		std := make([]float64, nState)
		for k := 0; k < nState; k++ {
			mean[k] = 3 * float64(k)
			std[k] = 1
		}

		ds := &simulate.Dataset[float64]{
			States: states,
			Obs:    make([][]float64, nSeq),
			Trans:  trans,
			Init:   init,
			Mean:   mean,
			Std:    std,
		}
		for p := range states {
			ds.Obs[p] = simulate.Gaussian(states[p], mean, std, rng)
		}

		if err := ds.Write(outname + ".gob.gz"); err != nil {
			panic(err)
		}

	case "discrete":
		if nSymbol < 2 {
			panic("'nsymbol' must be at least 2 for the discrete model")
		}

		// Each state prefers one symbol and spreads the rest uniformly.
		pout := make([]float64, nState*nSymbol)
		for k := 0; k < nState; k++ {
			for n := 0; n < nSymbol; n++ {
				if n == k%nSymbol {
					pout[k*nSymbol+n] = 0.7
				} else {
					pout[k*nSymbol+n] = 0.3 / float64(nSymbol-1)
				}
			}
		}

		ds := &simulate.Dataset[int64]{
			States:  states,
			Obs:     make([][]int64, nSeq),
			Trans:   trans,
			Init:    init,
			POut:    pout,
			NSymbol: nSymbol,
		}
		for p := range states {
			ds.Obs[p] = simulate.Discrete[int64](states[p], pout, nSymbol, rng)
		}

		if err := ds.Write(outname + ".gob.gz"); err != nil {
			panic(err)
		}

	default:
		panic("unknown observation model")
	}
}
