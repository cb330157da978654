package physics

import (
	"github.com/san-kum/quadsim/internal/dynamo"
)

// RobotHandle identifies a body loaded into an engine.
type RobotHandle int

// BaseLink addresses the root link of a body in SetJointDynamics.
const BaseLink = -1

type LoadFlags uint8

const (
	// MergeFixedLinks folds fixed joints into their parent so they do not
	// show up in enumeration.
	MergeFixedLinks LoadFlags = 1 << iota
	SelfCollision
)

func (f LoadFlags) Has(flag LoadFlags) bool {
	return f&flag != 0
}

type JointType int

const (
	Revolute JointType = iota
	Prismatic
	Spherical
	Planar
	Fixed
)

// Actuated reports whether the loop drives joints of this type.
func (t JointType) Actuated() bool {
	return t == Revolute || t == Prismatic
}

func (t JointType) String() string {
	switch t {
	case Revolute:
		return "revolute"
	case Prismatic:
		return "prismatic"
	case Spherical:
		return "spherical"
	case Planar:
		return "planar"
	case Fixed:
		return "fixed"
	}
	return "unknown"
}

// ParseJointType is the inverse of JointType.String.
func ParseJointType(s string) (JointType, bool) {
	for t := Revolute; t <= Fixed; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

type JointInfo struct {
	Index int
	Name  string
	Type  JointType
}

type JointDynamics struct {
	LinearDamping   float64
	AngularDamping  float64
	LateralFriction float64
	RollingFriction float64
}

// PositionTargets is one batched position-control command. All slices are
// parallel to Joints.
type PositionTargets struct {
	Joints        []int
	Positions     []float64
	Velocities    []float64
	Forces        []float64
	PositionGains []float64
	VelocityGains []float64
}

type JointState struct {
	Position float64
	Velocity float64
	// ReactionTorque is only reported for joints with the torque sensor
	// enabled.
	ReactionTorque float64
	AppliedTorque  float64
}

type Pose struct {
	Position    dynamo.Vec3
	Orientation dynamo.Quaternion
}

// Engine is the stepping service the control loop drives. Implementations
// are not required to be safe for concurrent use.
type Engine interface {
	SetTimeStep(dt float64) error
	SetGravity(g dynamo.Vec3) error
	LoadRobot(desc string, pos dynamo.Vec3, orn dynamo.Quaternion, flags LoadFlags) (RobotHandle, error)
	SetJointDynamics(h RobotHandle, joint int, d JointDynamics) error
	EnableTorqueSensor(h RobotHandle, joint int) error
	EnumerateJoints(h RobotHandle) ([]JointInfo, error)
	ResetJointState(h RobotHandle, joint int, q float64) error
	SetJointPositionTargets(h RobotHandle, cmd PositionTargets) error
	SetJointTorques(h RobotHandle, joints []int, torques []float64) error
	StepSimulation() error
	JointStates(h RobotHandle, joints []int) ([]JointState, error)
	BasePose(h RobotHandle) (Pose, error)
}
