package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/quadsim/internal/analysis"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/export"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/sim"
	"github.com/san-kum/quadsim/internal/storage"
)

// defaultJoint is FR_thigh_joint in the external ordering.
const defaultJoint = 5

func loadRun(runID string) (*storage.RunMetadata, *sim.Result, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	result, err := st.LoadSteps(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Observations) == 0 {
		return nil, nil, fmt.Errorf("run %s has no data", runID)
	}
	return meta, result, nil
}

func controlDt(meta *storage.RunMetadata) float64 {
	if meta.ControlHz > 0 {
		return 1 / meta.ControlHz
	}
	return 1 / 50.0
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRESET\tTIME\tSTEPS\tRATES\tINTEG\tPOLICY\tACTUATION")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g/%g Hz\t%s\t%s\t%s\n",
			run.ID,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.SimHz, run.ControlHz,
			run.Integrator,
			run.Policy,
			run.Actuation,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	s, err := export.ParseSeries(series)
	if err != nil {
		return err
	}

	if outFile != "" {
		var idx []int
		if jointIdx >= 0 {
			idx = []int{jointIdx}
		}
		p, err := export.JointPlot(result, s, idx)
		if err != nil {
			return err
		}
		if err := export.Save(p, outFile); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
		return nil
	}

	joint := jointIdx
	if joint < 0 {
		joint = defaultJoint
	}
	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("samples: %d\n\n", len(result.Observations))
	chart, err := export.Chart(result, s, joint, 80, 10)
	if err != nil {
		return err
	}
	fmt.Println(chart)
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	portrait := analysis.JointPhase(result.Observations, jointIdx)
	if portrait == nil {
		return fmt.Errorf("joint index %d out of range", jointIdx)
	}
	trigger := dynamo.ObsJointPos + jointIdx
	threshold := stat.Mean(analysis.JointSeries(result.Observations, trigger), nil)
	section := analysis.StrideSection(result.Observations, trigger, threshold, jointIdx)

	if outFile != "" {
		p, err := export.PhasePlot(portrait, section)
		if err != nil {
			return err
		}
		if err := export.Save(p, outFile); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
		return nil
	}

	name := joints.MustIndexMap(joints.Go1External).Name(jointIdx)
	fmt.Printf("phase portrait: %s\n", meta.ID)
	fmt.Printf("joint: %s (q vs dq)\n\n", name)
	fmt.Print(portrait.ASCII(70, 20))
	fmt.Printf("\nstride section: %d samples\n", len(section))
	if len(section) > 0 {
		fmt.Print(analysis.PointsToASCII(section, 40, 10))
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	dt := controlDt(meta)

	fmt.Printf("gait analysis: %s\n", meta.ID)
	fmt.Printf("policy: %s  integrator: %s  actuation: %s\n\n", meta.Policy, meta.Integrator, meta.Actuation)

	chart, err := export.SpectrumChart(result, jointIdx, 80, 12)
	if err != nil {
		return err
	}
	fmt.Println(chart)
	fmt.Println()

	sum := analysis.Summarize(result.Observations, result.Actions, dt, jointIdx)
	fmt.Printf("duration: %.2fs (%d samples)\n", sum.Duration, sum.Steps)
	fmt.Printf("tilt: mean %.4f rad, max %.4f rad\n", sum.MeanTilt, sum.MaxTilt)
	fmt.Printf("mean effort: %.4f\n", sum.MeanEffort)
	fmt.Printf("strides: %d\n\n", sum.Strides)

	names := joints.MustIndexMap(joints.Go1External)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOINT\tSTD DEV\tFREQ (Hz)")
	for j := 0; j < dynamo.JointCount; j++ {
		fmt.Fprintf(w, "%s\t%.4f\t%.3f\n", names.Name(j), sum.JointStdDev[j], sum.GaitFrequency[j])
	}
	return w.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	if withData {
		result, err := st.LoadSteps(runID)
		if err != nil {
			return err
		}
		return storage.ExportJSON(os.Stdout, *meta, result)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
