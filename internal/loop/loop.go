// Package loop drives a quadruped through the stepping service at the
// control rate.
//
// A Loop starts Initializing. Init runs the settle sequence and moves it to
// Ready; only then does Step accept actions. Each Step remaps the action
// from external to native ordering, runs Repeat engine sub-steps and
// returns the next observation. A stepping-service fault moves the loop to
// Faulted for good: the engine state is undefined and is never touched
// again.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/san-kum/quadsim/internal/actuation"
	"github.com/san-kum/quadsim/internal/config"
	"github.com/san-kum/quadsim/internal/control"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/observe"
	"github.com/san-kum/quadsim/internal/physics"
)

type State int

const (
	Initializing State = iota
	Ready
	Faulted
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Loop struct {
	mu sync.Mutex

	cfg     *config.Config
	engine  physics.Engine
	robot   physics.RobotHandle
	indices []int
	repeat  int

	native   joints.IndexMap
	external joints.IndexMap
	toNative joints.Remapper

	act     *actuation.Controller
	builder *observe.Builder
	command *control.Source

	state      State
	lastAction dynamo.JointVector
	hasLast    bool
	steps      int
	fault      error

	log       logr.Logger
	pacer     actuation.Pacer
	observers []dynamo.Observer
	metrics   []dynamo.Metric
}

type Option func(*Loop)

func WithLogger(l logr.Logger) Option {
	return func(lp *Loop) { lp.log = l }
}

// WithPacing sleeps one sub-step of wall time after every engine sub-step.
func WithPacing() Option {
	return func(lp *Loop) { lp.pacer = actuation.RealTime }
}

// WithPacer installs a custom sub-step hook.
func WithPacer(p actuation.Pacer) Option {
	return func(lp *Loop) { lp.pacer = p }
}

func WithObserver(o dynamo.Observer) Option {
	return func(lp *Loop) { lp.observers = append(lp.observers, o) }
}

func WithMetric(m dynamo.Metric) Option {
	return func(lp *Loop) { lp.metrics = append(lp.metrics, m) }
}

// WithCommandSource shares a command source with other writers such as a
// keyboard handler.
func WithCommandSource(s *control.Source) Option {
	return func(lp *Loop) { lp.command = s }
}

func configFault(what string, err error) error {
	if errors.Is(err, dynamo.ErrConfiguration) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", dynamo.ErrConfiguration, what, err)
}

// New validates cfg, loads the robot into engine and discovers its joints.
// Every failure is an ErrConfiguration.
func New(cfg *config.Config, engine physics.Engine, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	repeat, err := cfg.Repeat()
	if err != nil {
		return nil, err
	}

	l := &Loop{
		cfg:    cfg.Clone(),
		engine: engine,
		repeat: repeat,
		log:    logr.Discard(),
	}
	for _, o := range opts {
		o(l)
	}
	if l.command == nil {
		l.command = control.NewSource(dynamo.Command(cfg.Command))
	}
	if l.pacer == nil && cfg.Pacing {
		l.pacer = actuation.RealTime
	}

	if err := l.setupWorld(); err != nil {
		return nil, err
	}
	if err := l.discoverJoints(); err != nil {
		return nil, err
	}

	mode, err := actuation.ParseMode(cfg.Actuation)
	if err != nil {
		return nil, err
	}
	actOpts := []actuation.Option{actuation.WithMode(mode)}
	if l.pacer != nil {
		actOpts = append(actOpts, actuation.WithPacer(l.pacer))
	}
	l.act, err = actuation.New(actuation.Config{
		ActionScale:    cfg.ActionScale,
		Kp:             cfg.Kp,
		Kd:             cfg.Kd,
		ForceLimit:     cfg.ForceLimit,
		InitialPose:    cfg.InitialPose,
		SettleDuration: cfg.SettleSeconds,
		SimDt:          cfg.SimDt(),
		Repeat:         repeat,
	}, engine, l.robot, l.native, l.indices, actOpts...)
	if err != nil {
		return nil, err
	}

	project, err := observe.ParseProjection(cfg.Projection)
	if err != nil {
		return nil, err
	}
	l.builder = observe.NewBuilder(engine, l.robot, l.indices, l.native, l.external,
		dynamo.Vec3(cfg.Gravity), project, l.command)

	l.log.Info("robot loaded", "description", cfg.Robot.Description, "joints", len(l.indices),
		"repeat", repeat, "actuation", mode.Name(), "projection", cfg.Projection)
	return l, nil
}

func (l *Loop) setupWorld() error {
	cfg := l.cfg
	if err := l.engine.SetTimeStep(cfg.SimDt()); err != nil {
		return configFault("set time step", err)
	}
	if err := l.engine.SetGravity(dynamo.Vec3(cfg.Gravity)); err != nil {
		return configFault("set gravity", err)
	}

	if cfg.Ground.Enabled {
		ground, err := l.engine.LoadRobot("plane", dynamo.Vec3{}, dynamo.IdentityQuaternion, 0)
		if err != nil {
			return configFault("load ground", err)
		}
		if err := l.engine.SetJointDynamics(ground, physics.BaseLink, physics.JointDynamics{
			LateralFriction: cfg.Ground.LateralFriction,
			RollingFriction: cfg.Ground.RollingFriction,
		}); err != nil {
			return configFault("ground dynamics", err)
		}
	}

	var flags physics.LoadFlags
	if cfg.Robot.MergeFixedLinks {
		flags |= physics.MergeFixedLinks
	}
	if cfg.Robot.SelfCollision {
		flags |= physics.SelfCollision
	}
	robot, err := l.engine.LoadRobot(cfg.Robot.Description, dynamo.Vec3(cfg.Robot.Position), cfg.InitialOrientation(), flags)
	if err != nil {
		return configFault("load robot", err)
	}
	l.robot = robot
	return nil
}

func (l *Loop) discoverJoints() error {
	info, err := l.engine.EnumerateJoints(l.robot)
	if err != nil {
		return configFault("enumerate joints", err)
	}

	d := l.cfg.JointDynamics
	dyn := physics.JointDynamics{
		LinearDamping:   d.LinearDamping,
		AngularDamping:  d.AngularDamping,
		LateralFriction: d.LateralFriction,
		RollingFriction: d.RollingFriction,
	}

	var names []joints.Name
	for _, ji := range info {
		if err := l.engine.EnableTorqueSensor(l.robot, ji.Index); err != nil {
			return configFault("torque sensor", err)
		}
		if err := l.engine.SetJointDynamics(l.robot, ji.Index, dyn); err != nil {
			return configFault("joint dynamics", err)
		}
		if ji.Type.Actuated() {
			names = append(names, joints.Name(ji.Name))
			l.indices = append(l.indices, ji.Index)
		}
	}
	if err := l.engine.SetJointDynamics(l.robot, physics.BaseLink, dyn); err != nil {
		return configFault("base dynamics", err)
	}

	if l.native, err = joints.FromOrder(names); err != nil {
		return configFault("native joint order", err)
	}
	if l.external, err = joints.NewIndexMap(l.cfg.ExternalOrder); err != nil {
		return configFault("external joint order", err)
	}
	if !l.native.SameNames(l.external) {
		return dynamo.Configf("robot joints do not match the external order: missing %v, unexpected %v",
			l.external.Missing(l.native), l.native.Missing(l.external))
	}
	l.toNative = joints.NewRemapper(l.external, l.native)
	return nil
}

// Init runs the settle sequence once. A second call is a protocol fault.
func (l *Loop) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.halted(); err != nil {
		return err
	}
	if l.state != Initializing {
		return dynamo.Protocolf("init called in state %s", l.state)
	}
	l.log.V(1).Info("settling", "seconds", l.cfg.SettleSeconds, "substeps", l.act.Config().SettleSteps())
	if err := l.act.Settle(ctx); err != nil {
		l.log.Error(err, "settle failed")
		l.markFault(err)
		return err
	}
	l.state = Ready
	l.log.Info("settled", "simTime", l.act.SimTime())
	return nil
}

// Step applies one external-order action and returns the next observation.
// LastAction and the step count change only when every sub-step and the
// observation read succeed.
func (l *Loop) Step(ctx context.Context, action []float64) (dynamo.Observation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var obs dynamo.Observation
	if err := l.halted(); err != nil {
		return obs, err
	}
	if l.state != Ready {
		return obs, dynamo.Protocolf("step called in state %s", l.state)
	}
	a, err := dynamo.JointVectorFrom(action)
	if err != nil {
		return obs, err
	}
	if !a.IsValid() {
		return obs, dynamo.Protocolf("action has non-finite values")
	}
	if err := ctx.Err(); err != nil {
		return obs, err
	}

	if err := l.act.Apply(ctx, l.toNative.Apply(a)); err != nil {
		var se *dynamo.StepError
		if errors.As(err, &se) {
			se.Step = l.steps
		}
		l.log.Error(err, "engine step failed", "step", l.steps)
		l.markFault(err)
		return obs, err
	}

	obs, err = l.builder.Build(a)
	if err != nil {
		err = fmt.Errorf("build observation: %w", err)
		l.markFault(err)
		return dynamo.Observation{}, err
	}
	l.lastAction, l.hasLast = a, true
	l.steps++

	t := l.act.SimTime()
	for _, m := range l.metrics {
		m.Observe(obs, a, t)
	}
	for _, o := range l.observers {
		o.OnStep(obs, a, t)
	}
	return obs, nil
}

// Observation rebuilds the observation of the current state without
// stepping. It needs a last action, so it fails until the first successful
// Step.
func (l *Loop) Observation() (dynamo.Observation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.halted(); err != nil {
		return dynamo.Observation{}, err
	}
	if l.state != Ready {
		return dynamo.Observation{}, dynamo.Protocolf("observation requested in state %s", l.state)
	}
	if !l.hasLast {
		return dynamo.Observation{}, dynamo.Protocolf("observation requested before the first step")
	}
	obs, err := l.builder.Build(l.lastAction)
	if err != nil {
		l.markFault(err)
		return dynamo.Observation{}, err
	}
	return obs, nil
}

// markFault latches stepping-service faults. Callers hold l.mu.
func (l *Loop) markFault(err error) {
	if errors.Is(err, dynamo.ErrStepService) {
		l.fault = err
		l.state = Faulted
	}
}

func (l *Loop) halted() error {
	if l.fault != nil {
		return fmt.Errorf("loop halted by earlier fault: %w", l.fault)
	}
	return nil
}

// Fault is the stepping-service fault that stopped the loop, if any.
func (l *Loop) Fault() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fault
}

func (l *Loop) SetCommand(cmd dynamo.Command) { l.command.Set(cmd) }

func (l *Loop) Command() dynamo.Command { return l.command.Get() }

// CommandSource is the source the loop reads each step.
func (l *Loop) CommandSource() *control.Source { return l.command }

// LastAction is the most recent accepted action in external order. The
// second result is false before the first successful Step.
func (l *Loop) LastAction() (dynamo.JointVector, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastAction, l.hasLast
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Steps counts successful control steps.
func (l *Loop) Steps() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.steps
}

// SimTime is simulated time since load, settle included.
func (l *Loop) SimTime() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.act.SimTime()
}

func (l *Loop) Repeat() int { return l.repeat }

func (l *Loop) Robot() physics.RobotHandle { return l.robot }

// JointIndices returns engine joint indices in native order.
func (l *Loop) JointIndices() []int { return append([]int(nil), l.indices...) }

func (l *Loop) Native() joints.IndexMap { return l.native }

func (l *Loop) External() joints.IndexMap { return l.external }

func (l *Loop) Config() *config.Config { return l.cfg.Clone() }

func (l *Loop) Metrics() []dynamo.Metric { return l.metrics }
