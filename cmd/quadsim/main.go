package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/san-kum/quadsim/internal/config"
)

var (
	dataDir    string
	verbosity  int
	configFile string
	robot      string
	preset     string

	// Overrides for the resolved configuration.
	duration   float64
	integrator string
	policy     string
	actuation  string
	projection string
	kp         float64
	kd         float64
	command    []float64
	pacing     bool

	scenarioFile string
	watch        bool
	frameRate    int
	noSave       bool

	// Plot and analysis.
	jointIdx int
	series   string
	outFile  string
	withData bool

	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepN     int
)

func newLogger() logr.Logger {
	stdr.SetVerbosity(verbosity)
	return stdr.New(log.New(os.Stderr, "", log.LstdFlags))
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "quadsim",
		Short:         "quadruped locomotion control loop",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".quadsim", "data directory")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "log verbosity (repeat for more)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&robot, "robot", "go1", "robot the preset belongs to")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "settle the robot and run a headless rollout",
		Args:  cobra.NoArgs,
		RunE:  runRollout,
	}
	addOverrideFlags(runCmd)
	runCmd.Flags().StringVar(&scenarioFile, "scenario", "", "command scenario file (yaml)")
	runCmd.Flags().BoolVar(&watch, "watch", false, "draw the robot while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 20, "frame rate for --watch")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "interactive view; arrow keys steer the command",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addOverrideFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a joint trace; --out writes png/svg instead",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&jointIdx, "joint", -1, "external joint index (default: all in --out, FR thigh in terminal)")
	plotCmd.Flags().StringVar(&series, "series", "position", "position, velocity or action")
	plotCmd.Flags().StringVar(&outFile, "out", "", "write the plot to a png/svg file")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "joint phase portrait with stride section",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&jointIdx, "joint", 5, "external joint index")
	phaseCmd.Flags().StringVar(&outFile, "out", "", "write the portrait to a png/svg file")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "gait frequency and tilt summary",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&jointIdx, "joint", 5, "external joint index for the spectrum")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().BoolVar(&withData, "steps", false, "include every observation and action")

	presetsCmd := &cobra.Command{
		Use:   "presets [robot]",
		Short: "list available presets for a robot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			robots := config.ListRobots()
			if len(args) > 0 {
				robots = args
			}
			for _, r := range robots {
				presets := config.ListPresets(r)
				if len(presets) == 0 {
					fmt.Printf("no presets for robot: %s\n", r)
					continue
				}
				fmt.Printf("presets for %s:\n", r)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the resolved configuration as yaml",
		Args:  cobra.NoArgs,
		RunE:  printConfig,
	}
	addOverrideFlags(configCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run one rollout per parameter value in parallel",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addOverrideFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "kp", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.05, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.2, "last value")
	sweepCmd.Flags().IntVar(&sweepN, "n", 4, "number of values")

	compareCmd := &cobra.Command{
		Use:   "compare [integrator]...",
		Short: "compare integrators on the same rollout",
		Args:  cobra.MinimumNArgs(1),
		RunE:  compareIntegrators,
	}
	addOverrideFlags(compareCmd)

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, phaseCmd, analyzeCmd, exportCmd, presetsCmd, configCmd, sweepCmd, compareCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func addOverrideFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&duration, "time", config.DefaultDuration, "rollout duration in seconds")
	f.StringVar(&integrator, "integrator", "semi_implicit", "euler, semi_implicit, verlet or rk4")
	f.StringVar(&policy, "policy", "zero", "zero or trot")
	f.StringVar(&actuation, "actuation", "position", "position or torque")
	f.StringVar(&projection, "projection", "policy", "policy or exact gravity projection")
	f.Float64Var(&kp, "kp", config.DefaultKp, "position gain")
	f.Float64Var(&kd, "kd", config.DefaultKd, "velocity gain")
	f.Float64SliceVar(&command, "command", nil, "velocity command vx,vy,yaw")
	f.BoolVar(&pacing, "pacing", false, "sleep one sub-step of wall time per sub-step")
}

// resolveConfig starts from the preset (or defaults), replaces it with the
// config file if given, then applies flags the user set explicitly.
func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg := config.DefaultConfig()
	name := robot
	if preset != "" {
		cfg = config.GetPreset(robot, preset)
		if cfg == nil {
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(robot))
		}
		name = preset
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("time") {
		cfg.Duration = duration
	}
	if f.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if f.Changed("policy") {
		cfg.Policy = policy
	}
	if f.Changed("actuation") {
		cfg.Actuation = actuation
	}
	if f.Changed("projection") {
		cfg.Projection = projection
	}
	if f.Changed("kp") {
		cfg.Kp = kp
	}
	if f.Changed("kd") {
		cfg.Kd = kd
	}
	if f.Changed("command") {
		if len(command) != 3 {
			return nil, "", fmt.Errorf("--command needs 3 values, got %d", len(command))
		}
		copy(cfg.Command[:], command)
	}
	if f.Changed("pacing") {
		cfg.Pacing = pacing
	}

	return cfg, name, cfg.Validate()
}
