package metrics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// Tracking is the mean absolute deviation of joint positions from a
// reference pose, both in external order.
type Tracking struct {
	name    string
	ref     dynamo.JointVector
	sum     float64
	samples int
}

func NewTracking(ref dynamo.JointVector) *Tracking {
	return &Tracking{name: "tracking", ref: ref}
}

func (tr *Tracking) Name() string { return tr.name }

func (tr *Tracking) Observe(obs dynamo.Observation, action dynamo.JointVector, t float64) {
	q := obs.JointPositions()
	tr.sum += floats.Distance(q[:], tr.ref[:], 1) / dynamo.JointCount
	tr.samples++
}

func (tr *Tracking) Value() float64 {
	if tr.samples == 0 {
		return 0
	}
	return tr.sum / float64(tr.samples)
}

func (tr *Tracking) Reset() {
	tr.sum = 0
	tr.samples = 0
}

// Standard returns the metrics a rollout records by default.
func Standard(ref dynamo.JointVector) []dynamo.Metric {
	return []dynamo.Metric{
		NewControlEffort(),
		NewStability(0.35),
		NewTracking(ref),
		NewJointActivity(),
		NewPeakVelocity(),
	}
}
