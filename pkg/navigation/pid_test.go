package navigation

import (
	"math"
	"testing"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestPID_SingleStep(t *testing.T) {
	pid := NewPID(Gains{Kp: 1.0, Ki: 0.1, Kd: 0.05})

	// error = 0 - 10 = -10; integral = -10; derivative = -10
	got := pid.Update(10, 0)
	want := -10.0 + 0.1*-10.0 + 0.05*-10.0
	if !floatEquals(got, want) {
		t.Errorf("Update(10, 0) = %v, want %v", got, want)
	}
}

func TestPID_AccumulatesWithoutReset(t *testing.T) {
	pid := NewPID(Gains{Kp: 0, Ki: 1, Kd: 0})

	for i := 0; i < 5; i++ {
		pid.Update(0, 1)
	}
	if !floatEquals(pid.Integral(), 5) {
		t.Errorf("Integral() = %v, want 5", pid.Integral())
	}

	// Crossing zero error does not clear the integral.
	pid.Update(1, 1)
	if !floatEquals(pid.Integral(), 5) {
		t.Errorf("Integral() after zero error = %v, want 5", pid.Integral())
	}
}

func TestPID_DerivativeUsesPreviousError(t *testing.T) {
	pid := NewPID(Gains{Kp: 0, Ki: 0, Kd: 1})

	pid.Update(0, 2) // error 2, derivative 2
	got := pid.Update(0, 5)
	if !floatEquals(got, 3) {
		t.Errorf("derivative term = %v, want 3", got)
	}
}

func TestPID_Deterministic(t *testing.T) {
	inputs := []struct{ current, target float64 }{
		{10, 0}, {8.5, 0}, {7.1, 1}, {3, -2}, {0, 0}, {-4, 4},
	}

	run := func() []float64 {
		pid := NewPID(DefaultConfig().PID)
		out := make([]float64, 0, len(inputs))
		for _, in := range inputs {
			out = append(out, pid.Update(in.current, in.target))
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("step %d: %v != %v", i, a[i], b[i])
		}
	}
}
