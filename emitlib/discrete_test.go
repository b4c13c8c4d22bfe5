package emitlib

import (
	"errors"
	"math"
	"testing"
)

// The worked example: obs=[0,1,0], K=2, N=2, weights=[[1,0],[0,1],[.5,.5]].
func TestUpdatePOut(t *testing.T) {

	obs := []int64{0, 1, 0}
	weights := []float64{1, 0, 0, 1, 0.5, 0.5}
	pout := make([]float64, 4)

	if err := UpdatePOut(obs, weights, pout, 2); err != nil {
		t.Fatal(err)
	}

	expect := []float64{1.5, 0, 0.5, 1}
	for j := range expect {
		if pout[j] != expect[j] {
			t.Fatalf("pout=%v, want %v", pout, expect)
		}
	}
}

// Accumulating the same sequence twice into one table doubles it.
func TestUpdatePOutAdditive(t *testing.T) {

	obs := []int32{0, 1, 2, 1, 0}
	weights := []float64{
		0.9, 0.1,
		0.2, 0.8,
		0.5, 0.5,
		0.3, 0.7,
		1.0, 0.0,
	}

	once := make([]float64, 2*3)
	twice := make([]float64, 2*3)

	if err := UpdatePOut(obs, weights, once, 3); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := UpdatePOut(obs, weights, twice, 3); err != nil {
			t.Fatal(err)
		}
	}

	for j := range once {
		if math.Abs(twice[j]-2*once[j]) > 1e-12 {
			t.Fatalf("twice=%v, want double of %v", twice, once)
		}
	}
}

// The same accumulation in float32 with int index width.
func TestUpdatePOutFloat32(t *testing.T) {

	obs := []int{0, 1, 0}
	weights := []float32{1, 0, 0, 1, 0.5, 0.5}
	pout := make([]float32, 4)

	if err := UpdatePOut(obs, weights, pout, 2); err != nil {
		t.Fatal(err)
	}

	expect := []float32{1.5, 0, 0.5, 1}
	for j := range expect {
		if pout[j] != expect[j] {
			t.Fatalf("pout=%v, want %v", pout, expect)
		}
	}
}

func TestUpdatePOutSymbolRange(t *testing.T) {

	weights := []float64{1, 0, 0, 1}
	pout := make([]float64, 4)

	for _, obs := range [][]int64{{0, 2}, {-1, 0}} {
		err := UpdatePOut(obs, weights, pout, 2)
		if !errors.Is(err, ErrSymbol) {
			t.Fatalf("obs=%v: got %v, want ErrSymbol", obs, err)
		}
	}

	// The failing calls must not have touched the table.
	for j := range pout {
		if pout[j] != 0 {
			t.Fatalf("pout mutated by failing call: %v", pout)
		}
	}
}

func TestUpdatePOutShape(t *testing.T) {

	obs := []int64{0, 1}

	// weights not T x K
	err := UpdatePOut(obs, []float64{1, 0, 0}, make([]float64, 4), 2)
	if !errors.Is(err, ErrShape) {
		t.Fatalf("got %v, want ErrShape", err)
	}

	// pout not a multiple of nsymbol
	err = UpdatePOut(obs, []float64{1, 0, 0, 1}, make([]float64, 5), 2)
	if !errors.Is(err, ErrShape) {
		t.Fatalf("got %v, want ErrShape", err)
	}
}

func TestDiscreteModelReestimate(t *testing.T) {

	dm := NewDiscreteModel[int64](2, 3)

	obs := []int64{0, 1, 0, 2}
	gamma := []float64{
		1, 0,
		0, 1,
		0.5, 0.5,
		0, 1,
	}

	if err := dm.Accumulate(obs, gamma); err != nil {
		t.Fatal(err)
	}
	if err := dm.Reestimate(); err != nil {
		t.Fatal(err)
	}

	// State 0 counts: [1.5, 0, 0] -> [1, 0, 0]
	// State 1 counts: [0.5, 1, 1] -> [0.2, 0.4, 0.4]
	expect := []float64{1, 0, 0, 0.2, 0.4, 0.4}
	for j := range expect {
		if math.Abs(dm.POut[j]-expect[j]) > 1e-12 {
			t.Fatalf("POut=%v, want %v", dm.POut, expect)
		}
	}

	// Each row is a probability distribution.
	for k := 0; k < 2; k++ {
		var s float64
		for n := 0; n < 3; n++ {
			s += dm.POut[k*3+n]
		}
		if math.Abs(s-1) > 1e-12 {
			t.Fatalf("row %d sums to %f", k, s)
		}
	}
}

func TestDiscreteModelStateProbs(t *testing.T) {

	dm := NewDiscreteModel[int32](2, 2)
	dm.POut = []float64{0.9, 0.1, 0.3, 0.7}

	obs := []int32{0, 1}
	out := make([]float64, 4)
	if err := dm.StateProbs(obs, out); err != nil {
		t.Fatal(err)
	}

	expect := []float64{0.9, 0.3, 0.1, 0.7}
	for j := range expect {
		if out[j] != expect[j] {
			t.Fatalf("out=%v, want %v", out, expect)
		}
	}

	if err := dm.StateProbs([]int32{2}, out[0:2]); !errors.Is(err, ErrSymbol) {
		t.Fatalf("got %v, want ErrSymbol", err)
	}
}
