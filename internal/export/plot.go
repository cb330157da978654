package export

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/quadsim/internal/analysis"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/sim"
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// Series selects which block of the observation a plot draws.
type Series int

const (
	Positions Series = iota
	Velocities
	Actions
)

func (s Series) offset() int {
	switch s {
	case Velocities:
		return dynamo.ObsJointVel
	case Actions:
		return dynamo.ObsLastAction
	default:
		return dynamo.ObsJointPos
	}
}

func (s Series) String() string {
	switch s {
	case Velocities:
		return "joint velocity (rad/s)"
	case Actions:
		return "action"
	default:
		return "joint position (rad)"
	}
}

func ParseSeries(name string) (Series, error) {
	switch strings.ToLower(name) {
	case "", "q", "pos", "position":
		return Positions, nil
	case "dq", "vel", "velocity":
		return Velocities, nil
	case "a", "action":
		return Actions, nil
	}
	return Positions, fmt.Errorf("unknown series %q", name)
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "time (s)"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

// JointPlot draws the selected series of each external joint index in idx
// against rollout time.
func JointPlot(result *sim.Result, series Series, idx []int) (*plot.Plot, error) {
	if result == nil || len(result.Observations) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	if len(idx) == 0 {
		for i := 0; i < dynamo.JointCount; i++ {
			idx = append(idx, i)
		}
	}

	names := joints.MustIndexMap(joints.Go1External)
	p := plot.New()
	p.Title.Text = series.String()
	p.Y.Label.Text = series.String()
	stylePlot(p)

	for n, j := range idx {
		if j < 0 || j >= dynamo.JointCount {
			return nil, fmt.Errorf("joint index %d out of range", j)
		}
		values := analysis.JointSeries(result.Observations, series.offset()+j)
		pts := make(plotter.XYs, len(values))
		for i, v := range values {
			pts[i].X = float64(i)
			if i < len(result.Times) {
				pts[i].X = result.Times[i]
			}
			pts[i].Y = v
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(n)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(string(names.Name(j)), line)
	}
	return p, nil
}

// PhasePlot scatters a joint's (q, dq) portrait and overlays the stride
// section samples if any are given.
func PhasePlot(portrait *analysis.PhasePortrait, section []analysis.Point) (*plot.Plot, error) {
	if portrait == nil || len(portrait.Points) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	names := joints.MustIndexMap(joints.Go1External)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("phase portrait %s", names.Name(portrait.Joint))
	stylePlot(p)
	p.X.Label.Text = "q (rad)"
	p.Y.Label.Text = "dq (rad/s)"

	line, err := plotter.NewLine(toXYs(portrait.Points))
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.Width = vg.Points(0.5)
	p.Add(line)

	if len(section) > 0 {
		sc, err := plotter.NewScatter(toXYs(section))
		if err != nil {
			return nil, err
		}
		sc.Color = color.RGBA{R: 220, A: 255}
		p.Add(sc)
		p.Legend.Add("stride", sc)
	}
	return p, nil
}

func toXYs(points []analysis.Point) plotter.XYs {
	pts := make(plotter.XYs, len(points))
	for i, pt := range points {
		pts[i].X, pts[i].Y = pt.X, pt.Y
	}
	return pts
}

// Save writes p to path. The format follows the extension (png, svg, pdf).
func Save(p *plot.Plot, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("unsupported plot format %q", filepath.Ext(path))
	}
	return p.Save(plotWidth, plotHeight, path)
}

// Write renders p in format ("png", "svg", ...) to w.
func Write(p *plot.Plot, format string, w io.Writer) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
