package metrics

import (
	"math"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// JointActivity is the mean over steps of ½Σq̇², a unit-inertia kinetic
// energy of the legs.
type JointActivity struct {
	name    string
	samples int
	total   float64
}

func NewJointActivity() *JointActivity {
	return &JointActivity{name: "joint_activity"}
}

func (e *JointActivity) Name() string { return e.name }

func (e *JointActivity) Observe(obs dynamo.Observation, action dynamo.JointVector, t float64) {
	dq := obs.JointVelocities()
	ke := 0.0
	for _, v := range dq {
		ke += 0.5 * v * v
	}
	e.total += ke
	e.samples++
}

func (e *JointActivity) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *JointActivity) Reset() {
	e.total = 0
	e.samples = 0
}

// PeakVelocity is the largest joint speed seen.
type PeakVelocity struct {
	name string
	peak float64
}

func NewPeakVelocity() *PeakVelocity {
	return &PeakVelocity{name: "peak_velocity"}
}

func (p *PeakVelocity) Name() string { return p.name }

func (p *PeakVelocity) Observe(obs dynamo.Observation, action dynamo.JointVector, t float64) {
	for _, v := range obs.JointVelocities() {
		p.peak = math.Max(p.peak, math.Abs(v))
	}
}

func (p *PeakVelocity) Value() float64 { return p.peak }

func (p *PeakVelocity) Reset() { p.peak = 0 }
