package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// Tilt is the angle in radians between the body's down axis and gravity as
// seen in the body frame. Zero when upright.
func Tilt(g dynamo.Vec3) float64 {
	n := g.Norm()
	if n == 0 {
		return 0
	}
	c := -g[2] / n
	return math.Acos(math.Max(-1, math.Min(1, c)))
}

type Summary struct {
	Steps       int
	Duration    float64
	MeanTilt    float64
	MaxTilt     float64
	MeanEffort  float64
	JointStdDev [dynamo.JointCount]float64
	// GaitFrequency is the dominant frequency of each joint position trace.
	GaitFrequency [dynamo.JointCount]float64
	// Strides counts upward mean crossings of the first thigh trace.
	Strides int
}

// Summarize reduces a rollout sampled every dt seconds. thigh is the
// external index of the joint whose crossings are counted as strides.
func Summarize(obs []dynamo.Observation, actions []dynamo.JointVector, dt float64, thigh int) Summary {
	s := Summary{Steps: len(obs), Duration: float64(len(obs)) * dt}
	if len(obs) == 0 {
		return s
	}

	tilts := make([]float64, len(obs))
	for i := range obs {
		tilts[i] = Tilt(obs[i].Gravity())
	}
	s.MeanTilt = stat.Mean(tilts, nil)
	s.MaxTilt = floats.Max(tilts)

	if len(actions) > 0 {
		effort := make([]float64, len(actions))
		for i, a := range actions {
			effort[i] = floats.Norm(a[:], 1)
		}
		s.MeanEffort = stat.Mean(effort, nil)
	}

	for j := 0; j < dynamo.JointCount; j++ {
		series := JointSeries(obs, dynamo.ObsJointPos+j)
		if len(series) > 1 {
			_, s.JointStdDev[j] = stat.MeanStdDev(series, nil)
		}
		s.GaitFrequency[j] = DominantFrequency(series, dt)
	}

	if thigh >= 0 && thigh < dynamo.JointCount {
		series := JointSeries(obs, dynamo.ObsJointPos+thigh)
		s.Strides = len(Crossings(series, stat.Mean(series, nil)))
	}
	return s
}
