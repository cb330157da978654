package sim

import (
	"context"

	"github.com/san-kum/quadsim/internal/control"
	"github.com/san-kum/quadsim/internal/dynamo"
)

type Simulator struct {
	stepper   Stepper
	policy    control.Policy
	metrics   []dynamo.Metric
	observers []dynamo.Observer
	before    []BeforeStep
}

func New(stepper Stepper, policy control.Policy) *Simulator {
	return &Simulator{
		stepper:   stepper,
		policy:    policy,
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }
func (s *Simulator) AddBeforeStep(h BeforeStep)    { s.before = append(s.before, h) }

// Run drives the policy for cfg.Steps control steps. Nothing can be
// observed before the first step, so the first action is chosen from a zero
// observation. On a step failure the partial result is returned together
// with the error.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	result := &Result{
		Times:        make([]float64, 0, cfg.Steps),
		Observations: make([]dynamo.Observation, 0, cfg.Steps),
		Actions:      make([]dynamo.JointVector, 0, cfg.Steps),
		Commands:     make([]dynamo.Command, 0, cfg.Steps),
		Metrics:      make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	var obs dynamo.Observation
	t := 0.0

	defer func() {
		for _, m := range s.metrics {
			result.Metrics[m.Name()] = m.Value()
		}
	}()

	for i := 0; i < cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		for _, h := range s.before {
			h(s.stepper, i, t)
		}

		action := s.policy.Act(obs, t)
		next, err := s.stepper.Step(ctx, action.Slice())
		if err != nil {
			return result, err
		}

		obs = next
		t += cfg.Dt
		result.StepsTaken++

		for _, m := range s.metrics {
			m.Observe(obs, action, t)
		}
		for _, o := range s.observers {
			o.OnStep(obs, action, t)
		}

		result.Observations = append(result.Observations, obs)
		result.Actions = append(result.Actions, action)
		result.Commands = append(result.Commands, obs.Command())
		result.Times = append(result.Times, t)
	}

	return result, nil
}

// RunWithCallback steps until cfg.Steps is reached or callback returns
// false. Nothing is recorded.
func (s *Simulator) RunWithCallback(ctx context.Context, cfg Config, callback func(dynamo.Observation, dynamo.JointVector, float64) bool) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}

	var (
		obs dynamo.Observation
		err error
	)
	t := 0.0

	for i := 0; i < cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for _, h := range s.before {
			h(s.stepper, i, t)
		}

		action := s.policy.Act(obs, t)
		if !callback(obs, action, t) {
			return nil
		}

		obs, err = s.stepper.Step(ctx, action.Slice())
		if err != nil {
			return err
		}
		t += cfg.Dt
	}

	return nil
}

func validateConfig(cfg Config) error {
	if cfg.Steps < 0 {
		return dynamo.Configf("steps must be non-negative, got %d", cfg.Steps)
	}
	if cfg.Dt <= 0 {
		return dynamo.Configf("dt must be positive, got %f", cfg.Dt)
	}
	return nil
}
