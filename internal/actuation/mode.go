package actuation

import (
	"math"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/physics"
)

// Mode issues the engine command for one sub-step.
type Mode interface {
	Name() string
	Command(c *Controller, targets dynamo.JointVector) error
}

// PositionMode sends one batched position-control command with zero target
// velocities, the configured gains and the force limit on every joint.
type PositionMode struct{}

func (PositionMode) Name() string { return "position" }

func (PositionMode) Command(c *Controller, targets dynamo.JointVector) error {
	cmd := physics.PositionTargets{
		Joints:        c.indices,
		Positions:     targets.Slice(),
		Velocities:    make([]float64, dynamo.JointCount),
		Forces:        dynamo.Fill(c.cfg.ForceLimit).Slice(),
		PositionGains: dynamo.Fill(c.cfg.Kp).Slice(),
		VelocityGains: dynamo.Fill(c.cfg.Kd).Slice(),
	}
	return c.engine.SetJointPositionTargets(c.robot, cmd)
}

// TorqueMode reads joint states every sub-step and commands
// Kp*(q-q*) + Kd*dq, clamped to the force limit.
type TorqueMode struct{}

func (TorqueMode) Name() string { return "torque" }

func (TorqueMode) Command(c *Controller, targets dynamo.JointVector) error {
	states, err := c.engine.JointStates(c.robot, c.indices)
	if err != nil {
		return err
	}
	torques := TorqueLaw(c.cfg, targets, states)
	return c.engine.SetJointTorques(c.robot, c.indices, torques[:])
}

// TorqueLaw is the torque-mode control law over native-ordered states.
func TorqueLaw(cfg Config, targets dynamo.JointVector, states []physics.JointState) dynamo.JointVector {
	var tau dynamo.JointVector
	for i := range tau {
		t := cfg.Kp*(states[i].Position-targets[i]) + cfg.Kd*states[i].Velocity
		tau[i] = math.Max(-cfg.ForceLimit, math.Min(cfg.ForceLimit, t))
	}
	return tau
}

// ParseMode maps a config value to a Mode.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "", "position":
		return PositionMode{}, nil
	case "torque":
		return TorqueMode{}, nil
	}
	return nil, dynamo.Configf("unknown actuation mode %q", name)
}
