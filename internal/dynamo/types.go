package dynamo

import (
	"math"
)

// JointCount is the number of actuated leg joints on one quadruped.
const JointCount = 12

// Observation layout offsets.
const (
	ObsGravity      = 0
	ObsCommand      = 3
	ObsJointPos     = 6
	ObsJointVel     = ObsJointPos + JointCount
	ObsLastAction   = ObsJointVel + JointCount
	ObservationSize = ObsLastAction + JointCount
)

// JointVector holds one value per actuated joint. Which ordering it is in
// (native or external) is fixed by the function producing it.
type JointVector [JointCount]float64

// JointVectorFrom copies a slice into a JointVector. It fails with
// ErrProtocol when the slice does not hold exactly JointCount values.
func JointVectorFrom(s []float64) (JointVector, error) {
	var v JointVector
	if len(s) != JointCount {
		return v, Protocolf("joint vector: have(%d) want(%d)", len(s), JointCount)
	}
	copy(v[:], s)
	return v, nil
}

// Fill returns a JointVector with every element set to x.
func Fill(x float64) JointVector {
	var v JointVector
	for i := range v {
		v[i] = x
	}
	return v
}

func (v JointVector) Slice() []float64 {
	s := make([]float64, JointCount)
	copy(s, v[:])
	return s
}

func (v JointVector) IsValid() bool {
	return State(v[:]).IsValid()
}

// Vec3 is a 3-vector in world or body coordinates.
type Vec3 [3]float64

func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Command is the velocity command: forward, lateral, yaw rate.
type Command = Vec3

// Quaternion is a rotation in (x, y, z, w) order.
type Quaternion struct {
	X, Y, Z, W float64
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 {
		return IdentityQuaternion
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// QuaternionFromEuler builds a quaternion from roll, pitch, yaw applied in
// that order about fixed axes.
func QuaternionFromEuler(roll, pitch, yaw float64) Quaternion {
	sr, cr := math.Sincos(roll * 0.5)
	sp, cp := math.Sincos(pitch * 0.5)
	sy, cy := math.Sincos(yaw * 0.5)
	return Quaternion{
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
		W: cr*cp*cy + sr*sp*sy,
	}
}

// Observation is the fixed-layout vector returned to the policy.
type Observation [ObservationSize]float64

func (o *Observation) Gravity() Vec3 {
	return Vec3{o[ObsGravity], o[ObsGravity+1], o[ObsGravity+2]}
}

func (o *Observation) Command() Command {
	return Command{o[ObsCommand], o[ObsCommand+1], o[ObsCommand+2]}
}

func (o *Observation) JointPositions() JointVector {
	var v JointVector
	copy(v[:], o[ObsJointPos:ObsJointVel])
	return v
}

func (o *Observation) JointVelocities() JointVector {
	var v JointVector
	copy(v[:], o[ObsJointVel:ObsLastAction])
	return v
}

func (o *Observation) LastAction() JointVector {
	var v JointVector
	copy(v[:], o[ObsLastAction:])
	return v
}

// State is a flat continuous state vector used by the reference engine.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

type Control []float64

// System is a continuous dynamical system dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// Metric accumulates a scalar over successful control steps.
type Metric interface {
	Name() string
	Observe(obs Observation, action JointVector, t float64)
	Value() float64
	Reset()
}

// Observer is notified after every successful control step.
type Observer interface {
	OnStep(obs Observation, action JointVector, t float64)
}
