package emitlib

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"log"
	"math"
	"os"
	"sync"

	"github.com/schollz/progressbar"
	"gonum.org/v1/gonum/floats"
)

// EM iterations stop when the log-likelihood improves by less than this.
const fitTol = 1e-8

// OutputModel is the emission distribution of an HMM.  StateProbs provides
// the E-step densities, Accumulate gathers the M-step sufficient
// statistics for one sequence, and Reestimate converts the accumulated
// statistics to new parameters.  The observation element type is a
// parameter so discrete (integer coded) and continuous sequences share the
// same estimation driver.
type OutputModel[O any] interface {

	// NState returns the number of hidden states.
	NState() int

	// StateProbs writes the T x K emission probability matrix for one
	// observation sequence into out.
	StateProbs(obs []O, out []float64) error

	// Accumulate adds the weighted sufficient statistics of one sequence,
	// with gamma the T x K state posterior matrix.
	Accumulate(obs []O, gamma []float64) error

	// Reestimate updates the model parameters from the accumulated
	// statistics and clears the accumulators.
	Reestimate() error
}

// HMM holds a hidden Markov model and the workspaces for fitting it to a
// collection of observation sequences by EM (Baum-Welch).  The sequences
// may have different lengths.
type HMM[O any] struct {

	// Number of states
	NState int

	// The transition probability matrix, NState x NState
	Trans []float64

	// The initial probability distribution
	Init []float64

	// The emission model
	Out OutputModel[O]

	// The observation sequences
	Obs [][]O

	// Per-sequence emission probabilities, T x NState
	Pobs [][]float64

	// The forward probabilities
	Fprob [][]float64

	// The backward probabilities
	Bprob [][]float64

	// The state posterior probabilities
	Gamma [][]float64

	// The log-likelihood trace, one value per EM iteration
	LLF []float64

	// The log-likelihood for one sequence
	llf []float64

	// Write log messages here
	msglogger *log.Logger
	parlogger *log.Logger
}

// New returns an HMM for the given output model and observation sequences.
func New[O any](out OutputModel[O], obs [][]O) *HMM[O] {

	return &HMM[O]{
		NState: out.NState(),
		Out:    out,
		Obs:    obs,
	}
}

// SetLogger creates a message log and a parameter log with the given name
// prefix.  The message logger is returned so the calling program can use
// it too.
func (hmm *HMM[O]) SetLogger(logname string) *log.Logger {

	fid, err := os.Create(logname + "_msg.log")
	if err != nil {
		panic(err)
	}
	hmm.msglogger = log.New(fid, "", log.Ltime)

	fid, err = os.Create(logname + "_par.log")
	if err != nil {
		panic(err)
	}
	hmm.parlogger = log.New(fid, "", 0)

	return hmm.msglogger
}

// Initialize allocates workspaces for parameter estimation.  Call this
// prior to calling Fit.
func (hmm *HMM[O]) Initialize() {

	lens := make([]int, len(hmm.Obs))
	for p, seq := range hmm.Obs {
		lens[p] = len(seq) * hmm.NState
	}

	hmm.Pobs = makeFloatArray(lens)
	hmm.Fprob = makeFloatArray(lens)
	hmm.Bprob = makeFloatArray(lens)
	hmm.Gamma = makeFloatArray(lens)
	hmm.llf = make([]float64, len(hmm.Obs))

	if hmm.msglogger == nil {
		hmm.msglogger = log.New(os.Stderr, "", log.Ltime)
	}
	if hmm.parlogger == nil {
		hmm.parlogger = log.New(os.Stderr, "", 0)
	}

	hmm.msglogger.Printf("%d sequences\n", len(hmm.Obs))
	hmm.msglogger.Printf("%d states\n", hmm.NState)
}

// SetStartParams sets starting values for the transition matrix and the
// initial distribution: diagonally dominant transitions and a uniform
// initial distribution.
func (hmm *HMM[O]) SetStartParams() {

	ns := hmm.NState
	hmm.Trans = make([]float64, ns*ns)
	for i := 0; i < ns; i++ {
		for j := 0; j < ns; j++ {
			if i == j {
				hmm.Trans[i*ns+j] = 0.8
			} else {
				hmm.Trans[i*ns+j] = 0.2 / float64(ns-1)
			}
		}
	}
	if ns == 1 {
		hmm.Trans[0] = 1
	}

	hmm.Init = make([]float64, ns)
	for i := 0; i < ns; i++ {
		hmm.Init[i] = 1 / float64(ns)
	}
}

// ForwardBackward computes the emission probabilities, the scaled forward
// and backward probabilities, and the state posteriors for every sequence.
// The recursions for different sequences run concurrently.
func (hmm *HMM[O]) ForwardBackward() error {

	for p, seq := range hmm.Obs {
		if err := hmm.Out.StateProbs(seq, hmm.Pobs[p]); err != nil {
			return fmt.Errorf("sequence %d: %w", p, err)
		}
	}

	var wg sync.WaitGroup
	for p := range hmm.Obs {
		wg.Add(1)
		go hmm.forwardSeq(p, &wg)
		wg.Add(1)
		go hmm.backwardSeq(p, &wg)
	}
	wg.Wait()

	for p := range hmm.Obs {
		hmm.gammaSeq(p)
	}

	return nil
}

// forwardSeq calculates the forward probabilities for one sequence,
// rescaling each time point and accumulating the log scale factors into
// the per-sequence log-likelihood.
func (hmm *HMM[O]) forwardSeq(p int, wg *sync.WaitGroup) {

	defer wg.Done()

	ns := hmm.NState
	fprob := hmm.Fprob[p]
	pobs := hmm.Pobs[p]
	nt := len(hmm.Obs[p])

	var llf float64

	for st := 0; st < ns; st++ {
		fprob[st] = hmm.Init[st] * pobs[st]
	}
	if mx := normalizeMax(fprob[0:ns], 1); mx > 0 {
		llf += math.Log(mx)
	}

	for t := 1; t < nt; t++ {
		j0 := (t - 1) * ns
		j1 := t * ns
		for st1 := 0; st1 < ns; st1++ {
			var s float64
			for st2 := 0; st2 < ns; st2++ {
				s += fprob[j0+st2] * hmm.Trans[st2*ns+st1]
			}
			fprob[j1+st1] = s * pobs[j1+st1]
		}
		if mx := normalizeMax(fprob[j1:j1+ns], 1); mx > 0 {
			llf += math.Log(mx)
		}
	}

	// The scaled values at the last time point carry the remaining mass.
	llf += math.Log(floats.Sum(fprob[(nt-1)*ns : nt*ns]))

	hmm.llf[p] = llf
}

// backwardSeq calculates the scaled backward probabilities for one
// sequence.
func (hmm *HMM[O]) backwardSeq(p int, wg *sync.WaitGroup) {

	defer wg.Done()

	ns := hmm.NState
	bprob := hmm.Bprob[p]
	pobs := hmm.Pobs[p]
	nt := len(hmm.Obs[p])

	for st := 0; st < ns; st++ {
		bprob[(nt-1)*ns+st] = 1
	}

	for t := nt - 2; t >= 0; t-- {
		j0 := t * ns
		j1 := (t + 1) * ns
		for st1 := 0; st1 < ns; st1++ {
			var s float64
			for st2 := 0; st2 < ns; st2++ {
				s += hmm.Trans[st1*ns+st2] * pobs[j1+st2] * bprob[j1+st2]
			}
			bprob[j0+st1] = s
		}
		normalizeMax(bprob[j0:j0+ns], 1)
	}
}

// gammaSeq forms the state posteriors for one sequence from the forward
// and backward probabilities.
func (hmm *HMM[O]) gammaSeq(p int) {

	ns := hmm.NState
	gamma := hmm.Gamma[p]
	nt := len(hmm.Obs[p])

	for t := 0; t < nt; t++ {
		i := t * ns
		floats.MulTo(gamma[i:i+ns], hmm.Fprob[p][i:i+ns], hmm.Bprob[p][i:i+ns])
		normalizeSum(gamma[i:i+ns], 0)
	}
}

func (hmm *HMM[O]) updateTransSeq(p int, newtrans []float64, wg *sync.WaitGroup, mut *sync.Mutex) {

	defer wg.Done()

	ns := hmm.NState
	fprob := hmm.Fprob[p]
	bprob := hmm.Bprob[p]
	pobs := hmm.Pobs[p]
	nt := len(hmm.Obs[p])

	joint := make([]float64, ns*ns)
	jointsum := make([]float64, ns*ns)

	for t := 0; t < nt-1; t++ {
		j1 := (t + 1) * ns
		for st1 := 0; st1 < ns; st1++ {
			fp := fprob[t*ns+st1]
			for st2 := 0; st2 < ns; st2++ {
				joint[st1*ns+st2] = fp * hmm.Trans[st1*ns+st2] * pobs[j1+st2] * bprob[j1+st2]
			}
		}
		normalizeSum(joint, 0)
		floats.Add(jointsum, joint)
	}

	mut.Lock()
	floats.Add(newtrans, jointsum)
	mut.Unlock()
}

// UpdateTrans updates the transition probability matrix.
func (hmm *HMM[O]) UpdateTrans() {

	ns := hmm.NState
	newtrans := make([]float64, ns*ns)

	var wg sync.WaitGroup
	var mut sync.Mutex
	for p := range hmm.Obs {
		wg.Add(1)
		go hmm.updateTransSeq(p, newtrans, &wg, &mut)
	}
	wg.Wait()

	// Normalize to probabilities by row
	for st := 0; st < ns; st++ {
		normalizeSum(newtrans[st*ns:(st+1)*ns], 1/float64(ns))
	}

	hmm.Trans = newtrans
}

// UpdateInit updates the initial state distribution from the time-zero
// state posteriors.
func (hmm *HMM[O]) UpdateInit() {

	ns := hmm.NState
	zero(hmm.Init)

	for p := range hmm.Obs {
		floats.Add(hmm.Init, hmm.Gamma[p][0:ns])
	}

	normalizeSum(hmm.Init, 1/float64(ns))
}

// UpdateObsParams runs the M-step of the emission model: the state
// posteriors of every sequence are accumulated, then the parameters are
// re-estimated.
func (hmm *HMM[O]) UpdateObsParams() error {

	for p, seq := range hmm.Obs {
		if err := hmm.Out.Accumulate(seq, hmm.Gamma[p]); err != nil {
			return fmt.Errorf("sequence %d: %w", p, err)
		}
	}

	return hmm.Out.Reestimate()
}

// Fit uses the EM algorithm to estimate the parameters of the HMM.
func (hmm *HMM[O]) Fit(maxiter int) error {

	hmm.LLF = make([]float64, 0, maxiter)

	hmm.msglogger.Printf("Estimating model parameters...\n")
	bar := progressbar.New(3 * maxiter)
	var llf float64

	for i := 0; i < maxiter; i++ {
		_ = bar.Add(1)
		hmm.msglogger.Printf("Beginning ForwardBackward...")
		if err := hmm.ForwardBackward(); err != nil {
			return err
		}
		_ = bar.Add(1)
		hmm.msglogger.Printf("Beginning UpdateTrans...")
		hmm.UpdateTrans()
		hmm.UpdateInit()
		_ = bar.Add(1)
		hmm.msglogger.Printf("Beginning UpdateObsParams...")
		if err := hmm.UpdateObsParams(); err != nil {
			return err
		}

		llfnew := floats.Sum(hmm.llf)
		hmm.LLF = append(hmm.LLF, llfnew)
		if i > 0 {
			if llfnew < llf {
				hmm.msglogger.Printf("Log-likelihood decreased by %f\n", llf-llfnew)
			} else if llfnew-llf < fitTol {
				// converged
				break
			}
		}

		llf = llfnew
		hmm.msglogger.Printf("llf=%f\n", llf)
	}

	return nil
}

// ReconstructStates uses the Viterbi algorithm to predict the sequence of
// states for each observation sequence.  The algorithm is run separately
// for each sequence.
func (hmm *HMM[O]) ReconstructStates() ([][]int, error) {

	ns := hmm.NState
	ltrans := make([]float64, ns*ns)
	logmat(ltrans, hmm.Trans)

	states := make([][]int, len(hmm.Obs))
	for p, seq := range hmm.Obs {
		if err := hmm.Out.StateProbs(seq, hmm.Pobs[p]); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", p, err)
		}
		states[p] = hmm.reconstructSeq(p, ltrans)
	}

	return states, nil
}

// reconstructSeq runs the Viterbi recursion and traceback for one
// sequence, using the emission probabilities already in Pobs.
func (hmm *HMM[O]) reconstructSeq(p int, ltrans []float64) []int {

	ns := hmm.NState
	pobs := hmm.Pobs[p]
	nt := len(hmm.Obs[p])

	lpr := make([]float64, nt*ns)
	lpt := make([]int, nt*ns)
	wk := make([]float64, ns)

	// Beginning from initial conditions
	for st := 0; st < ns; st++ {
		lpr[st] = math.Log(hmm.Init[st]) + math.Log(pobs[st])
	}

	// From st1 to st2
	for t := 1; t < nt; t++ {
		j0 := (t - 1) * ns
		j1 := t * ns
		for st2 := 0; st2 < ns; st2++ {
			for st1 := 0; st1 < ns; st1++ {
				wk[st1] = lpr[j0+st1] + ltrans[st1*ns+st2]
			}

			// The best previous state
			jj := argmax(wk)
			lpt[j1+st2] = jj
			lpr[j1+st2] = wk[jj] + math.Log(pobs[j1+st2])
		}
	}

	// Traceback
	y := make([]int, nt)
	a := (nt - 1) * ns
	y[nt-1] = argmax(lpr[a : a+ns])
	for t := nt - 2; t >= 0; t-- {
		y[t] = lpt[(t+1)*ns+y[t+1]]
	}

	return y
}

// paramWriter is implemented by output models that can describe their
// parameters in the summary.
type paramWriter interface {
	writeParams(lg *log.Logger, labels []string)
}

// WriteSummary writes the model parameters to the parameter log.  The
// optional state labels are used if provided.
func (hmm *HMM[O]) WriteSummary(labels []string, title string) {

	hmm.parlogger.Printf("%s\n", title)

	hmm.parlogger.Printf("Initial state distribution:\n")
	writeMatrix(hmm.parlogger, hmm.Init, hmm.NState, 1, labels)
	hmm.parlogger.Printf("\n")

	hmm.parlogger.Printf("Transition matrix:\n")
	writeMatrix(hmm.parlogger, hmm.Trans, hmm.NState, hmm.NState, labels)
	hmm.parlogger.Printf("\n")

	if pw, ok := hmm.Out.(paramWriter); ok {
		pw.writeParams(hmm.parlogger, labels)
	}
}

// writeMatrix writes a matrix in text format to the given logger.
func writeMatrix(lg *log.Logger, x []float64, nrow, ncol int, labels []string) {

	for i := 0; i < nrow; i++ {
		row := ""
		if labels != nil {
			row = fmt.Sprintf("%-20s", labels[i])
		}
		for j := 0; j < ncol; j++ {
			row += fmt.Sprintf("%12.4f ", x[i*ncol+j])
		}
		lg.Printf("%s", row)
	}
}

// Write saves the model to a gzip-compressed gob file.  The concrete
// output model type must be registered with gob by the caller.
func (hmm *HMM[O]) Write(fname string) error {

	fid, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer fid.Close()

	gid := gzip.NewWriter(fid)
	defer gid.Close()

	return gob.NewEncoder(gid).Encode(hmm)
}

// ReadHMM reads a model from a gzip-compressed gob file written by Write.
func ReadHMM[O any](fname string) (*HMM[O], error) {

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

	var hmm HMM[O]
	if err := gob.NewDecoder(gid).Decode(&hmm); err != nil {
		return nil, err
	}

	return &hmm, nil
}

// CompareStates returns the number of positions where the state sequences
// x and y disagree.  Panics if the lengths of x and y differ.
func CompareStates(x, y []int) int {

	if len(x) != len(y) {
		panic("Lengths are not equal")
	}

	var e int
	for t := range x {
		if x[t] != y[t] {
			e++
		}
	}

	return e
}
