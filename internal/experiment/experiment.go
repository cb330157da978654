package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/quadsim/internal/config"
	"github.com/san-kum/quadsim/internal/loop"
	"github.com/san-kum/quadsim/internal/physics"
	"github.com/san-kum/quadsim/internal/sim"
)

// Experiment wires one configuration into an engine, a settled loop and a
// policy-driven simulator.
type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	engine    *physics.Sandbox
	loop      *loop.Loop
	simulator *sim.Simulator
}

func New(cfg *config.Config, registry *Registry) *Experiment {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Experiment{cfg: cfg.Clone(), registry: registry}
}

// Setup builds the engine and loop, runs the settle sequence and attaches
// the configured policy and default metrics.
func (e *Experiment) Setup(ctx context.Context, opts ...loop.Option) error {
	engine, err := e.registry.NewEngine(e.cfg)
	if err != nil {
		return err
	}
	policy, err := e.registry.GetPolicy(e.cfg.Policy, e.cfg)
	if err != nil {
		return err
	}

	l, err := loop.New(e.cfg, engine, opts...)
	if err != nil {
		return err
	}
	if err := l.Init(ctx); err != nil {
		return err
	}

	e.engine, e.loop = engine, l
	e.simulator = sim.New(l, policy)
	for _, m := range e.registry.DefaultMetrics(e.cfg) {
		e.simulator.AddMetric(m)
	}
	return nil
}

// SimConfig is the rollout length and period the configuration asks for.
func (e *Experiment) SimConfig() sim.Config {
	return sim.Config{Steps: e.cfg.ControlSteps(), Dt: e.cfg.ControlDt()}
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx, e.SimConfig())
}

func (e *Experiment) Config() *config.Config  { return e.cfg.Clone() }
func (e *Experiment) Engine() *physics.Sandbox { return e.engine }
func (e *Experiment) Loop() *loop.Loop         { return e.loop }

// Simulator is the rollout driver built by Setup, nil before it.
func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }

// Factory adapts per-member configurations into an ensemble factory. Each
// member gets its own engine and loop.
func Factory(registry *Registry, configs []*config.Config, opts ...loop.Option) sim.Factory {
	return func(ctx context.Context, run int) (*sim.Simulator, error) {
		e := New(configs[run], registry)
		if err := e.Setup(ctx, opts...); err != nil {
			return nil, err
		}
		return e.Simulator(), nil
	}
}
