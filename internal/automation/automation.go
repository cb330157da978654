package automation

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/quadsim/internal/config"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/experiment"
	"github.com/san-kum/quadsim/internal/loop"
	"github.com/san-kum/quadsim/internal/sim"
)

// Scenario is a scripted sequence of velocity commands.
type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Preset      string    `yaml:"preset"`
	Policy      string    `yaml:"policy"`
	Segments    []Segment `yaml:"segments"`
}

// Segment holds one command for a number of seconds.
type Segment struct {
	Command [3]float64 `yaml:"command"`
	Seconds float64    `yaml:"seconds"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, dynamo.Configf("scenario: %v", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func (s *Scenario) Validate() error {
	if len(s.Segments) == 0 {
		return dynamo.Configf("scenario %q has no segments", s.Name)
	}
	for i, seg := range s.Segments {
		if !(seg.Seconds > 0) || math.IsInf(seg.Seconds, 0) {
			return dynamo.Configf("segment %d: seconds %v must be positive", i, seg.Seconds)
		}
		if !dynamo.State(seg.Command[:]).IsValid() {
			return dynamo.Configf("segment %d: command %v is not finite", i, seg.Command)
		}
	}
	return nil
}

// boundaries returns the control step at which each segment ends.
func (s *Scenario) boundaries(controlDt float64) []int {
	out := make([]int, len(s.Segments))
	elapsed := 0.0
	for i, seg := range s.Segments {
		elapsed += seg.Seconds
		out[i] = int(math.Round(elapsed / controlDt))
	}
	return out
}

// Steps is the number of control steps the whole scenario covers.
func (s *Scenario) Steps(controlDt float64) int {
	b := s.boundaries(controlDt)
	return b[len(b)-1]
}

// CommandAt is the command in force at control step i. Past the end the
// last command is held.
func (s *Scenario) CommandAt(i int, controlDt float64) dynamo.Command {
	for k, end := range s.boundaries(controlDt) {
		if i < end {
			return dynamo.Command(s.Segments[k].Command)
		}
	}
	return dynamo.Command(s.Segments[len(s.Segments)-1].Command)
}

// Hook returns a before-step hook that sets the command whenever it
// changes.
func (s *Scenario) Hook(controlDt float64, log logr.Logger) sim.BeforeStep {
	current := -1
	ends := s.boundaries(controlDt)
	return func(st sim.Stepper, i int, t float64) {
		seg := len(ends) - 1
		for k, end := range ends {
			if i < end {
				seg = k
				break
			}
		}
		if seg == current {
			return
		}
		current = seg
		cmd := dynamo.Command(s.Segments[seg].Command)
		log.V(1).Info("scenario command", "segment", seg, "step", i, "command", cmd)
		st.SetCommand(cmd)
	}
}

// RunScenario builds an experiment from cfg, overriding its policy when the
// scenario names one, and runs it for the scenario's length. A failed run
// returns its partial result with the error.
func RunScenario(ctx context.Context, scenario *Scenario, cfg *config.Config, registry *experiment.Registry, log logr.Logger, opts ...loop.Option) (*sim.Result, error) {
	cfg = cfg.Clone()
	if scenario.Policy != "" {
		cfg.Policy = scenario.Policy
	}
	cfg.Command = scenario.Segments[0].Command

	exp := experiment.New(cfg, registry)
	if err := exp.Setup(ctx, opts...); err != nil {
		return nil, fmt.Errorf("scenario %s setup: %w", scenario.Name, err)
	}

	dt := cfg.ControlDt()
	simulator := exp.Simulator()
	simulator.AddBeforeStep(scenario.Hook(dt, log))

	log.Info("running scenario", "name", scenario.Name, "segments", len(scenario.Segments), "steps", scenario.Steps(dt))
	result, err := simulator.Run(ctx, sim.Config{Steps: scenario.Steps(dt), Dt: dt})
	if err != nil {
		return result, fmt.Errorf("scenario %s run: %w", scenario.Name, err)
	}
	return result, nil
}
