// Package actuation turns policy actions into engine commands.
//
// A [Controller] owns the settle sequence and the per-step sub-stepping:
// targets are the initial pose plus a scaled action, re-issued to the
// engine before every one of the Repeat sub-steps.
package actuation

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/physics"
)

type Config struct {
	ActionScale float64
	Kp          float64
	Kd          float64
	ForceLimit  float64
	// InitialPose is keyed by joint name and covers every actuated joint.
	InitialPose map[joints.Name]float64
	// SettleDuration is in seconds of simulated time.
	SettleDuration float64
	SimDt          float64
	Repeat         int
}

func DefaultConfig() Config {
	return Config{
		ActionScale:    0.25,
		Kp:             0.1,
		Kd:             0.0001,
		ForceLimit:     50,
		InitialPose:    joints.Go1Standing,
		SettleDuration: 5,
		SimDt:          1.0 / 200.0,
		Repeat:         4,
	}
}

func (c Config) Validate() error {
	finite := func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
	switch {
	case !finite(c.ActionScale):
		return dynamo.Configf("action scale %v", c.ActionScale)
	case !finite(c.Kp) || c.Kp < 0 || !finite(c.Kd) || c.Kd < 0:
		return dynamo.Configf("gains kp=%v kd=%v", c.Kp, c.Kd)
	case !(c.ForceLimit > 0):
		return dynamo.Configf("force limit %v", c.ForceLimit)
	case !(c.SimDt > 0) || !finite(c.SimDt):
		return dynamo.Configf("sim dt %v", c.SimDt)
	case c.Repeat < 1:
		return dynamo.Configf("repeat %d", c.Repeat)
	case c.SettleDuration < 0 || !finite(c.SettleDuration):
		return dynamo.Configf("settle duration %v", c.SettleDuration)
	}
	return nil
}

// SettleSteps is the number of sub-steps the settle sequence runs.
func (c Config) SettleSteps() int {
	return int(math.Round(c.SettleDuration / c.SimDt))
}

// Pacer is called after every engine sub-step.
type Pacer func(dt float64)

// RealTime sleeps for one sub-step of wall time.
func RealTime(dt float64) {
	time.Sleep(time.Duration(dt * float64(time.Second)))
}

type Controller struct {
	cfg    Config
	engine physics.Engine
	robot  physics.RobotHandle
	// indices[i] is the engine joint index of native slot i.
	indices []int
	pose    dynamo.JointVector
	mode    Mode
	pacer   Pacer

	subSteps int
}

type Option func(*Controller)

func WithMode(m Mode) Option {
	return func(c *Controller) { c.mode = m }
}

func WithPacer(p Pacer) Option {
	return func(c *Controller) { c.pacer = p }
}

// New builds a controller for the robot's actuated joints. native orders
// the joints the way indices does.
func New(cfg Config, engine physics.Engine, robot physics.RobotHandle, native joints.IndexMap, indices []int, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(indices) != dynamo.JointCount {
		return nil, dynamo.Configf("controller needs %d joint indices, have %d", dynamo.JointCount, len(indices))
	}
	pose, err := native.Vector(cfg.InitialPose)
	if err != nil {
		return nil, err
	}
	if !pose.IsValid() {
		return nil, dynamo.Configf("initial pose is not finite")
	}

	c := &Controller{
		cfg:     cfg,
		engine:  engine,
		robot:   robot,
		indices: append([]int(nil), indices...),
		pose:    pose,
		mode:    PositionMode{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) Mode() Mode { return c.mode }

// InitialPose is the settle pose in native ordering.
func (c *Controller) InitialPose() dynamo.JointVector { return c.pose }

// SimTime is the simulated time covered by sub-steps this controller ran.
func (c *Controller) SimTime() float64 {
	return float64(c.subSteps) * c.cfg.SimDt
}

func (c *Controller) SubSteps() int { return c.subSteps }

// Targets is initialPose + ActionScale*action, both native.
func (c *Controller) Targets(action dynamo.JointVector) dynamo.JointVector {
	var t dynamo.JointVector
	floats.AddScaledTo(t[:], c.pose[:], c.cfg.ActionScale, action[:])
	return t
}

// Settle resets every joint to the initial pose and holds it for
// SettleDuration. It stops early if ctx is cancelled.
func (c *Controller) Settle(ctx context.Context) error {
	for i, j := range c.indices {
		if err := c.engine.ResetJointState(c.robot, j, c.pose[i]); err != nil {
			return err
		}
	}
	n := c.cfg.SettleSteps()
	for s := 0; s < n; s++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.subStep(s, c.pose); err != nil {
			return err
		}
	}
	return nil
}

// Apply drives the targets for action through Repeat sub-steps. Once the
// first sub-step starts all of them run; a failure is reported as a
// *dynamo.StepError carrying the sub-step index.
func (c *Controller) Apply(ctx context.Context, action dynamo.JointVector) error {
	if !action.IsValid() {
		return dynamo.Protocolf("action is not finite")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	targets := c.Targets(action)
	for r := 0; r < c.cfg.Repeat; r++ {
		if err := c.subStep(r, targets); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) subStep(r int, targets dynamo.JointVector) error {
	if err := c.mode.Command(c, targets); err != nil {
		return &dynamo.StepError{SubStep: r, SimTime: c.SimTime(), Wrapped: err}
	}
	if err := c.engine.StepSimulation(); err != nil {
		return &dynamo.StepError{SubStep: r, SimTime: c.SimTime(), Wrapped: err}
	}
	c.subSteps++
	if c.pacer != nil {
		c.pacer(c.cfg.SimDt)
	}
	return nil
}
