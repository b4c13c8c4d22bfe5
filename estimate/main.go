package main

import (
	"encoding/gob"
	"flag"
	"log"

	"github.com/statforge/hmmemit/emitlib"
	"github.com/statforge/hmmemit/simulate"
)

func report[O any](logger *log.Logger, hmm *emitlib.HMM[O], truth [][]int) {

	pstates, err := hmm.ReconstructStates()
	if err != nil {
		panic(err)
	}

	var e, n int
	logger.Printf("Per-sequence reconstruction errors:")
	for p := range pstates {
		q := emitlib.CompareStates(pstates[p], truth[p])
		logger.Printf("%d %d/%d\n", p, q, len(truth[p]))
		e += q
		n += len(truth[p])
	}
	logger.Printf("Overall: %d/%d\n", e, n)
}

func fit[O any](out emitlib.OutputModel[O], obs [][]O, truth [][]int, outname string, maxiter int) *emitlib.HMM[O] {

	hmm := emitlib.New(out, obs)
	logger := hmm.SetLogger(outname)
	hmm.Initialize()
	hmm.SetStartParams()

	if err := hmm.Fit(maxiter); err != nil {
		panic(err)
	}

	hmm.WriteSummary(nil, "Estimated parameters:")
	report(logger, hmm, truth)

	return hmm
}

func main() {

	var obsmodel, dataname, outname string
	flag.StringVar(&obsmodel, "obsmodel", "gaussian", "Observation distribution (gaussian or discrete)")
	flag.StringVar(&dataname, "dataname", "", "Dataset file name")
	flag.StringVar(&outname, "outname", "", "Output file name prefix")

	var maxiter int
	flag.IntVar(&maxiter, "maxiter", 50, "Maximum number of EM iterations")
	flag.Parse()

	if dataname == "" || outname == "" {
		panic("'dataname' and 'outname' are required")
	}

	switch obsmodel {
	case "gaussian":
		gob.Register(&emitlib.GaussianModel{})

		ds, err := simulate.ReadDataset[float64](dataname)
		if err != nil {
			panic(err)
		}

		out := emitlib.NewGaussianModel(len(ds.Init))
		out.SetStartMoments(ds.Obs)

		hmm := fit[float64](out, ds.Obs, ds.States, outname, maxiter)
		if err := hmm.Write(outname + "_model.gob.gz"); err != nil {
			panic(err)
		}

	case "discrete":
		gob.Register(&emitlib.DiscreteModel[int64]{})

		ds, err := simulate.ReadDataset[int64](dataname)
		if err != nil {
			panic(err)
		}

		out := emitlib.NewDiscreteModel[int64](len(ds.Init), ds.NSymbol)

		hmm := fit[int64](out, ds.Obs, ds.States, outname, maxiter)
		if err := hmm.Write(outname + "_model.gob.gz"); err != nil {
			panic(err)
		}

	default:
		panic("unknown observation model")
	}
}
