package metrics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// ControlEffort is the mean over steps of the summed absolute action.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(obs dynamo.Observation, action dynamo.JointVector, t float64) {
	c.sum += floats.Norm(action[:], 1)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}
