package simd

import (
	"math"
	"testing"
)

func TestVecAdd(t *testing.T) {
	dst := []float32{1, 2, 3, 4, 5}
	src := []float32{10, 20, 30, 40, 50}
	expected := []float32{11, 22, 33, 44, 55}

	VecAdd(dst, src)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecAdd(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestVecScale(t *testing.T) {
	dst := []float32{1, 2, 3, 4, 5}
	expected := []float32{0.5, 1, 1.5, 2, 2.5}

	VecScale(dst, 0.5)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecScale(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestReLU(t *testing.T) {
	dst := []float32{-1, 2, -3, 4, 0}
	expected := []float32{0, 2, 0, 4, 0}

	ReLU(dst)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("ReLU(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestExpFast(t *testing.T) {
	for _, x := range []float64{-10, -1, -0.1, 0, 0.1, 1, 5, 10} {
		got := ExpFast(x)
		want := math.Exp(x)
		if relErr := math.Abs(got-want) / want; relErr > 1e-2 {
			t.Errorf("ExpFast(%f) = %g, want %g (rel err %g)", x, got, want, relErr)
		}
	}
}

func TestLogFast(t *testing.T) {
	for _, x := range []float64{1e-6, 0.01, 0.18, 0.5, 1, 2, 10, 1000, 65504} {
		got := LogFast(x)
		want := math.Log(x)
		if math.Abs(got-want) > 1e-3*math.Max(1, math.Abs(want)) {
			t.Errorf("LogFast(%f) = %g, want %g", x, got, want)
		}
	}
}

func TestLogFastNonPositive(t *testing.T) {
	if got := LogFast(0); got > -700 {
		t.Errorf("LogFast(0) = %g, want saturated negative value", got)
	}
	if got := LogFast(-1); got > -700 {
		t.Errorf("LogFast(-1) = %g, want saturated negative value", got)
	}
}
