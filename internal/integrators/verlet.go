package integrators

import "github.com/san-kum/quadsim/internal/dynamo"

// Verlet is velocity Verlet for [positions..., velocities...] states.
type Verlet struct {
	scratch dynamo.State
}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	half := n / 2
	if len(v.scratch) != n {
		v.scratch = make(dynamo.State, n)
	}

	result := make(dynamo.State, n)
	dx := dyn.Derive(x, u, t)
	dt2 := dt * dt

	for i := 0; i < half; i++ {
		result[i] = x[i] + x[half+i]*dt + 0.5*dx[half+i]*dt2
		v.scratch[i] = result[i]
		v.scratch[half+i] = x[half+i]
	}

	dxNew := dyn.Derive(v.scratch, u, t+dt)

	halfDt := 0.5 * dt
	for i := 0; i < half; i++ {
		result[half+i] = x[half+i] + (dx[half+i]+dxNew[half+i])*halfDt
	}

	return result
}
