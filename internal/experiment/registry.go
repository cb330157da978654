package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/quadsim/internal/config"
	"github.com/san-kum/quadsim/internal/control"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/integrators"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/metrics"
	"github.com/san-kum/quadsim/internal/physics"
)

type Registry struct {
	policies    map[string]func(cfg *config.Config) control.Policy
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		policies:    make(map[string]func(*config.Config) control.Policy),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.policies["zero"] = func(*config.Config) control.Policy { return control.NewZero() }
	r.policies["trot"] = func(cfg *config.Config) control.Policy {
		return control.NewTrot(cfg.Trot.Frequency, cfg.Trot.Thigh, cfg.Trot.Calf)
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["semi_implicit"] = func() dynamo.Integrator { return integrators.NewSemiImplicit() }
	r.integrators["verlet"] = func() dynamo.Integrator { return integrators.NewVerlet() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	return r
}

// RegisterPolicy adds or replaces a named policy constructor.
func (r *Registry) RegisterPolicy(name string, fn func(cfg *config.Config) control.Policy) {
	r.policies[name] = fn
}

func (r *Registry) GetPolicy(name string, cfg *config.Config) (control.Policy, error) {
	fn, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown policy: %s", name)
	}
	return fn(cfg), nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

// NewEngine builds a reference sandbox using the integrator cfg names.
func (r *Registry) NewEngine(cfg *config.Config, opts ...physics.SandboxOption) (*physics.Sandbox, error) {
	integ, err := r.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, dynamo.Configf("%v", err)
	}
	return physics.NewSandbox(append([]physics.SandboxOption{physics.WithIntegrator(integ)}, opts...)...), nil
}

func (r *Registry) ListPolicies() []string  { return sortedKeys(r.policies) }
func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics tracks deviation from cfg's standing pose.
func (r *Registry) DefaultMetrics(cfg *config.Config) []dynamo.Metric {
	var ref dynamo.JointVector
	if order, err := joints.NewIndexMap(cfg.ExternalOrder); err == nil {
		if v, err := order.Vector(cfg.InitialPose); err == nil {
			ref = v
		}
	}
	return metrics.Standard(ref)
}
