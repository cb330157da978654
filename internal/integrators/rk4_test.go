package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// oscillator is a unit spring: q'' = -q.
type oscillator struct{}

func (o *oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (o *oscillator) StateDim() int   { return 2 }
func (o *oscillator) ControlDim() int { return 0 }

func run(integ dynamo.Integrator, steps int, dt float64) dynamo.State {
	x := dynamo.State{1.0, 0.0}
	for i := 0; i < steps; i++ {
		x = integ.Step(&oscillator{}, x, nil, float64(i)*dt, dt)
	}
	return x
}

func TestRK4Accuracy(t *testing.T) {
	dt := 0.01
	steps := 100
	x := run(NewRK4(), steps, dt)

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}
	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestIntegratorsTrackOscillator(t *testing.T) {
	tests := []struct {
		name  string
		integ dynamo.Integrator
		tol   float64
	}{
		{"euler", NewEuler(), 2e-2},
		{"semi_implicit", NewSemiImplicit(), 1e-2},
		{"verlet", NewVerlet(), 1e-4},
		{"rk4", NewRK4(), 1e-7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := run(tt.integ, 200, 0.005)
			want := math.Cos(1.0)
			if math.Abs(x[0]-want) > tt.tol {
				t.Errorf("got %.8f, want %.8f (tol %g)", x[0], want, tt.tol)
			}
		})
	}
}

func TestSemiImplicitEnergyBounded(t *testing.T) {
	integ := NewSemiImplicit()
	x := dynamo.State{1.0, 0.0}
	for i := 0; i < 20000; i++ {
		x = integ.Step(&oscillator{}, x, nil, 0, 0.005)
	}
	energy := 0.5 * (x[0]*x[0] + x[1]*x[1])
	if math.Abs(energy-0.5) > 0.01 {
		t.Errorf("symplectic step drifted: energy %.6f", energy)
	}
}
