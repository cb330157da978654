package physics

import (
	"math"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// StandardGravity is the gravity magnitude description loads are quoted at.
const StandardGravity = 9.81

type MotorMode int

const (
	MotorOff MotorMode = iota
	MotorPosition
	MotorTorque
)

// Motor is the drive attached to one joint.
//
// A position motor behaves like the velocity-constraint motors of
// rigid-body engines: over one step of length dt it closes a fraction Kp of
// the position error and a fraction Kd of the velocity error, never
// exceeding MaxForce.
type Motor struct {
	Mode           MotorMode
	Target         float64
	TargetVelocity float64
	MaxForce       float64
	Kp, Kd         float64
	Torque         float64
}

// JointModel is the joint-space dynamics of one body:
//
//	I q̈ = τ(q, q̇) − b q̇ − s·L·cos(q)
//
// with τ from the joint's motor and s the gravity scale. State is
// [q..., q̇...]. Control adds to the motor torque and may be nil. Joints
// with zero inertia are frozen.
type JointModel struct {
	Inertia      []float64
	Damping      []float64
	Load         []float64
	Motors       []Motor
	GravityScale float64
	// Dt is the engine step the motor gains are quoted against.
	Dt float64
}

func NewJointModel(specs []JointSpec) *JointModel {
	m := &JointModel{
		Inertia:      make([]float64, len(specs)),
		Damping:      make([]float64, len(specs)),
		Load:         make([]float64, len(specs)),
		Motors:       make([]Motor, len(specs)),
		GravityScale: 1.0,
		Dt:           1.0 / 240.0,
	}
	for i, s := range specs {
		if jt, _ := ParseJointType(s.Type); !jt.Actuated() {
			continue
		}
		m.Inertia[i] = s.Inertia
		m.Damping[i] = s.Damping
		m.Load[i] = s.Load
	}
	return m
}

func (m *JointModel) StateDim() int {
	return 2 * len(m.Inertia)
}

func (m *JointModel) ControlDim() int {
	return len(m.Inertia)
}

// MotorTorque is the torque joint i's motor produces at (q, dq).
func (m *JointModel) MotorTorque(i int, q, dq float64) float64 {
	mo := m.Motors[i]
	switch mo.Mode {
	case MotorPosition:
		acc := mo.Kp*(mo.Target-q)/(m.Dt*m.Dt) + mo.Kd*(mo.TargetVelocity-dq)/m.Dt
		tau := m.Inertia[i] * acc
		return math.Max(-mo.MaxForce, math.Min(mo.MaxForce, tau))
	case MotorTorque:
		return mo.Torque
	}
	return 0
}

func (m *JointModel) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	n := len(m.Inertia)
	dx := make(dynamo.State, 2*n)
	for i := 0; i < n; i++ {
		if m.Inertia[i] == 0 {
			continue
		}
		q, dq := x[i], x[n+i]
		tau := m.MotorTorque(i, q, dq)
		if i < len(u) {
			tau += u[i]
		}
		dx[i] = dq
		dx[n+i] = (tau - m.Damping[i]*dq - m.GravityScale*m.Load[i]*math.Cos(q)) / m.Inertia[i]
	}
	return dx
}

// Energy is the kinetic energy of all joints.
func (m *JointModel) Energy(x dynamo.State) float64 {
	n := len(m.Inertia)
	e := 0.0
	for i := 0; i < n; i++ {
		e += 0.5 * m.Inertia[i] * x[n+i] * x[n+i]
	}
	return e
}
