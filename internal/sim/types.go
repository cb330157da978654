package sim

import (
	"context"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// Stepper is the control loop surface a rollout drives. *loop.Loop
// satisfies it.
type Stepper interface {
	Step(ctx context.Context, action []float64) (dynamo.Observation, error)
	SetCommand(cmd dynamo.Command)
}

// BeforeStep runs ahead of control step i at rollout time t. Scenarios use
// it to change the velocity command.
type BeforeStep func(s Stepper, i int, t float64)

type Config struct {
	// Steps is the number of control steps to run.
	Steps int
	// Dt is the control period used to time-stamp samples.
	Dt float64
}

// Result holds one sample per successful control step: the action sent,
// the observation it produced, the command that observation carried and the
// rollout time after the step.
type Result struct {
	Times        []float64
	Observations []dynamo.Observation
	Actions      []dynamo.JointVector
	Commands     []dynamo.Command
	Metrics      map[string]float64
	StepsTaken   int
}

// Final returns the last recorded observation.
func (r *Result) Final() dynamo.Observation {
	if r == nil || len(r.Observations) == 0 {
		return dynamo.Observation{}
	}
	return r.Observations[len(r.Observations)-1]
}
