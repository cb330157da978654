package automation

import (
	"context"
	"fmt"
	"sort"

	"github.com/san-kum/quadsim/internal/analysis"
	"github.com/san-kum/quadsim/internal/config"
	"github.com/san-kum/quadsim/internal/experiment"
	"github.com/san-kum/quadsim/internal/sim"
)

// ParameterSweep runs the same rollout across a range of one parameter.
type ParameterSweep struct {
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	ParamValue float64
	Metrics    map[string]float64
	FinalTilt  float64
	Err        error
}

var sweepParams = map[string]func(c *config.Config, v float64){
	"kp":             func(c *config.Config, v float64) { c.Kp = v },
	"kd":             func(c *config.Config, v float64) { c.Kd = v },
	"action_scale":   func(c *config.Config, v float64) { c.ActionScale = v },
	"force_limit":    func(c *config.Config, v float64) { c.ForceLimit = v },
	"trot_frequency": func(c *config.Config, v float64) { c.Trot.Frequency = v },
	"command_vx":     func(c *config.Config, v float64) { c.Command[0] = v },
}

func (sw *ParameterSweep) values() []float64 {
	if sw.NumSteps == 1 {
		return []float64{sw.ParamMin}
	}
	step := (sw.ParamMax - sw.ParamMin) / float64(sw.NumSteps-1)
	out := make([]float64, sw.NumSteps)
	for i := range out {
		out[i] = sw.ParamMin + float64(i)*step
	}
	return out
}

// RunSweep executes every sweep point concurrently. A point whose rollout
// fails keeps its error in the result instead of aborting the sweep.
func RunSweep(ctx context.Context, sweep *ParameterSweep, base *config.Config, registry *experiment.Registry) ([]SweepResult, error) {
	set, ok := sweepParams[sweep.ParamName]
	if !ok {
		return nil, fmt.Errorf("unknown sweep parameter: %s", sweep.ParamName)
	}
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one point")
	}

	values := sweep.values()
	configs := make([]*config.Config, len(values))
	for i, v := range values {
		configs[i] = base.Clone()
		set(configs[i], v)
	}

	ens := sim.NewEnsemble(experiment.Factory(registry, configs), len(values))
	runs, errs := ens.RunAll(ctx, sim.Config{Steps: base.ControlSteps(), Dt: base.ControlDt()})

	results := make([]SweepResult, len(values))
	for i, v := range values {
		results[i] = SweepResult{ParamValue: v, Err: errs[i]}
		if runs[i] == nil {
			continue
		}
		results[i].Metrics = runs[i].Metrics
		final := runs[i].Final()
		results[i].FinalTilt = analysis.Tilt(final.Gravity())
	}
	return results, ctx.Err()
}

func SweepParams() []string {
	names := make([]string, 0, len(sweepParams))
	for name := range sweepParams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
