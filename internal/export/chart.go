package export

import (
	"fmt"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/quadsim/internal/analysis"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/sim"
)

// Chart renders one joint's series as a terminal line chart.
func Chart(result *sim.Result, series Series, joint, width, height int) (string, error) {
	if result == nil || len(result.Observations) == 0 {
		return "", fmt.Errorf("no data to plot")
	}
	if joint < 0 || joint >= dynamo.JointCount {
		return "", fmt.Errorf("joint index %d out of range", joint)
	}
	data := analysis.JointSeries(result.Observations, series.offset()+joint)
	name := joints.MustIndexMap(joints.Go1External).Name(joint)

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("%s %s", name, series)),
	), nil
}

// SpectrumChart renders the power spectrum of one joint's position trace.
func SpectrumChart(result *sim.Result, joint, width, height int) (string, error) {
	if result == nil || len(result.Observations) < 2 {
		return "", fmt.Errorf("not enough data for a spectrum")
	}
	if joint < 0 || joint >= dynamo.JointCount {
		return "", fmt.Errorf("joint index %d out of range", joint)
	}
	ps := analysis.PowerSpectrum(analysis.JointSeries(result.Observations, dynamo.ObsJointPos+joint))
	limit := len(ps)
	if limit > 100 {
		limit = 100
	}
	return asciigraph.Plot(ps[:limit],
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("power spectrum (%s)", joints.MustIndexMap(joints.Go1External).Name(joint))),
	), nil
}
