package simulate

import (
	"math/rand"
	"path/filepath"
	"testing"
)

func TestStates(t *testing.T) {

	rng := rand.New(rand.NewSource(42))

	trans := RandomTrans(3, 0.8)
	init := UniformInit(3)

	states := States(trans, init, 1000, rng)
	if len(states) != 1000 {
		t.Fatalf("got %d states", len(states))
	}

	seen := make(map[int]bool)
	for _, st := range states {
		if st < 0 || st >= 3 {
			t.Fatalf("state %d out of range", st)
		}
		seen[st] = true
	}
	if len(seen) != 3 {
		t.Fatalf("only %d states visited in 1000 steps", len(seen))
	}
}

func TestDiscrete(t *testing.T) {

	rng := rand.New(rand.NewSource(7))

	pout := []float64{0.7, 0.3, 0.2, 0.8}
	states := []int{0, 1, 0, 1, 1}

	obs := Discrete[int32](states, pout, 2, rng)
	if len(obs) != len(states) {
		t.Fatalf("got %d observations", len(obs))
	}
	for _, s := range obs {
		if s < 0 || s >= 2 {
			t.Fatalf("symbol %d out of range", s)
		}
	}
}

func TestDatasetRoundTrip(t *testing.T) {

	rng := rand.New(rand.NewSource(11))

	trans := RandomTrans(2, 0.9)
	init := UniformInit(2)
	mean := []float64{-1, 1}
	std := []float64{1, 1}

	states := States(trans, init, 50, rng)
	ds := &Dataset[float64]{
		States: [][]int{states},
		Obs:    [][]float64{Gaussian(states, mean, std, rng)},
		Trans:  trans,
		Init:   init,
		Mean:   mean,
		Std:    std,
	}

	fname := filepath.Join(t.TempDir(), "data.gob.gz")
	if err := ds.Write(fname); err != nil {
		t.Fatal(err)
	}

	ds2, err := ReadDataset[float64](fname)
	if err != nil {
		t.Fatal(err)
	}

	if len(ds2.Obs) != 1 || len(ds2.Obs[0]) != 50 {
		t.Fatalf("observations did not round trip")
	}
	for j := range ds.Obs[0] {
		if ds2.Obs[0][j] != ds.Obs[0][j] {
			t.Fatalf("observation %d differs", j)
		}
	}
	for j := range trans {
		if ds2.Trans[j] != trans[j] {
			t.Fatalf("transition matrix differs")
		}
	}
}
