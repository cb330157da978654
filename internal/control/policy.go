package control

import (
	"math"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
)

// Policy produces an action in external joint ordering from the latest
// observation.
type Policy interface {
	Act(obs dynamo.Observation, t float64) dynamo.JointVector
}

type Zero struct{}

func NewZero() *Zero {
	return &Zero{}
}

func (z *Zero) Act(obs dynamo.Observation, t float64) dynamo.JointVector {
	return dynamo.JointVector{}
}

// Trot swings diagonal leg pairs (FR+RL, FL+RR) in antiphase. Thigh and calf
// offsets are in action units, i.e. before the actuation scale.
type Trot struct {
	Frequency float64
	Thigh     float64
	Calf      float64
	// Gain couples forward command into stride amplitude.
	Gain float64

	order joints.IndexMap
}

func NewTrot(freq, thigh, calf float64) *Trot {
	return &Trot{
		Frequency: freq,
		Thigh:     thigh,
		Calf:      calf,
		Gain:      1.0,
		order:     joints.MustIndexMap(joints.Go1External),
	}
}

func (p *Trot) Act(obs dynamo.Observation, t float64) dynamo.JointVector {
	var a dynamo.JointVector

	stride := 1.0 + p.Gain*obs[dynamo.ObsCommand]
	phase := 2 * math.Pi * p.Frequency * t
	for i := 0; i < dynamo.JointCount; i++ {
		name := p.order.Name(i)
		s := math.Sin(phase)
		if leg := joints.Leg(name); leg == "FL" || leg == "RR" {
			s = -s
		}
		switch name {
		case joints.FRThigh, joints.FLThigh, joints.RRThigh, joints.RLThigh:
			a[i] = stride * p.Thigh * s
		case joints.FRCalf, joints.FLCalf, joints.RRCalf, joints.RLCalf:
			a[i] = p.Calf * math.Max(s, 0)
		}
	}
	return a
}
