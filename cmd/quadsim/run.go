package main

import (
	"fmt"
	"math"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/quadsim/internal/automation"
	"github.com/san-kum/quadsim/internal/config"
	"github.com/san-kum/quadsim/internal/experiment"
	"github.com/san-kum/quadsim/internal/loop"
	"github.com/san-kum/quadsim/internal/sim"
	"github.com/san-kum/quadsim/internal/storage"
	"github.com/san-kum/quadsim/internal/tui"
)

func runRollout(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger()
	ctx := cmd.Context()
	registry := experiment.NewRegistry()

	opts := []loop.Option{loop.WithLogger(log.WithName("loop"))}
	if watch {
		renderer := tui.NewLiveRenderer(os.Stdout, name, frameRate)
		renderer.Start()
		defer renderer.Stop()
		opts = append(opts, loop.WithObserver(renderer))
	}

	start := time.Now()
	var result *sim.Result
	var runErr error
	if scenarioFile != "" {
		scenario, err := automation.LoadScenario(scenarioFile)
		if err != nil {
			return err
		}
		if scenario.Policy != "" {
			cfg.Policy = scenario.Policy
		}
		result, runErr = automation.RunScenario(ctx, scenario, cfg, registry, log, opts...)
	} else {
		exp := experiment.New(cfg, registry)
		if err := exp.Setup(ctx, opts...); err != nil {
			return err
		}
		log.Info("policy start", "policy", cfg.Policy, "steps", cfg.ControlSteps())
		result, runErr = exp.Run(ctx)
	}
	if result == nil {
		return runErr
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	printMetrics(result.Metrics)

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(storage.RunMetadata{
			Preset:     name,
			SimHz:      cfg.SimHz,
			ControlHz:  cfg.ControlHz,
			Integrator: cfg.Integrator,
			Actuation:  cfg.Actuation,
			Policy:     cfg.Policy,
			Command:    cfg.Command,
		}, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	return runErr
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	registry := experiment.NewRegistry()

	// Logging would draw over the alternate screen.
	exp := experiment.New(cfg, registry)
	fmt.Printf("settling %s for %.1fs...\n", name, cfg.SettleSeconds)
	if err := exp.Setup(ctx, loop.WithLogger(logr.Discard())); err != nil {
		return err
	}
	policy, err := registry.GetPolicy(cfg.Policy, cfg)
	if err != nil {
		return err
	}

	perTick := int(math.Max(1, math.Round(cfg.ControlHz/30)))
	m := tui.NewModel(ctx, exp.Loop(), policy, cfg.ControlDt(), perTick, name, registry.DefaultMetrics(cfg)...)
	final, err := tui.Run(m)
	if err != nil {
		return err
	}
	fmt.Printf("stopped after %d steps (%.2fs)\n", exp.Loop().Steps(), exp.Loop().SimTime())
	return final.Err()
}

func printConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("sweeping %s over [%g, %g] in %d runs...\n", sweepParam, sweepMin, sweepMax, sweepN)
	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		ParamName: sweepParam,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepN,
	}, cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VALUE\tSTABILITY\tTRACKING\tEFFORT\tFINAL TILT\tERROR")
	for _, r := range results {
		errText := "-"
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(w, "%.4g\t%.3f\t%.4f\t%.3f\t%.4f\t%s\n",
			r.ParamValue, r.Metrics["stability"], r.Metrics["tracking"], r.Metrics["control_effort"], r.FinalTilt, errText)
	}
	return w.Flush()
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	base, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	configs := make([]*config.Config, len(args))
	for i, name := range args {
		configs[i] = base.Clone()
		configs[i].Integrator = name
	}

	fmt.Printf("comparing %d integrators over %.1fs...\n\n", len(args), base.Duration)
	start := time.Now()
	ens := sim.NewEnsemble(experiment.Factory(experiment.NewRegistry(), configs), len(configs))
	results, errs := ens.RunAll(cmd.Context(), sim.Config{Steps: base.ControlSteps(), Dt: base.ControlDt()})
	elapsed := time.Since(start)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tSTEPS\tSTABILITY\tTRACKING\tPEAK VEL\tSTATUS")
	for i, name := range args {
		status := "ok"
		if errs[i] != nil {
			status = errs[i].Error()
		}
		r := results[i]
		if r == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", name, status)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.3f\t%.4f\t%.3f\t%s\n",
			name, r.StepsTaken, r.Metrics["stability"], r.Metrics["tracking"], r.Metrics["peak_velocity"], status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nwall time: %v\n", elapsed)
	return nil
}
