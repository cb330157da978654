package analysis

import (
	"strings"

	"github.com/san-kum/quadsim/internal/dynamo"
)

type Point struct{ X, Y float64 }

// PhasePortrait holds one joint's position/velocity trajectory.
type PhasePortrait struct {
	Joint  int
	Points []Point
}

// JointSeries extracts observation element idx from every observation.
func JointSeries(obs []dynamo.Observation, idx int) []float64 {
	out := make([]float64, len(obs))
	for i := range obs {
		out[i] = obs[i][idx]
	}
	return out
}

// JointPhase builds the (q, dq) portrait of external joint j.
func JointPhase(obs []dynamo.Observation, j int) *PhasePortrait {
	if j < 0 || j >= dynamo.JointCount {
		return nil
	}
	p := &PhasePortrait{Joint: j, Points: make([]Point, len(obs))}
	for i := range obs {
		p.Points[i] = Point{X: obs[i][dynamo.ObsJointPos+j], Y: obs[i][dynamo.ObsJointVel+j]}
	}
	return p
}

// StrideSection samples external joint j's (q, dq) at every upward crossing
// of trigger through threshold, i.e. once per gait cycle.
func StrideSection(obs []dynamo.Observation, trigger int, threshold float64, j int) []Point {
	if len(obs) < 2 {
		return nil
	}
	var out []Point
	series := JointSeries(obs, trigger)
	for _, i := range Crossings(series, threshold) {
		out = append(out, Point{X: obs[i][dynamo.ObsJointPos+j], Y: obs[i][dynamo.ObsJointVel+j]})
	}
	return out
}

// Crossings returns the indices where series first reaches threshold from
// below.
func Crossings(series []float64, threshold float64) []int {
	var out []int
	for i := 1; i < len(series); i++ {
		if series[i-1] < threshold && series[i] >= threshold {
			out = append(out, i)
		}
	}
	return out
}

func bounds(points []Point) (minX, maxX, minY, maxY float64) {
	minX, maxX = points[0].X, points[0].X
	minY, maxY = points[0].Y, points[0].Y
	for _, p := range points {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	pad := func(lo, hi float64) (float64, float64) {
		r := hi - lo
		if r == 0 {
			r = 1
		}
		return lo - r*0.1, hi + r*0.1
	}
	minX, maxX = pad(minX, maxX)
	minY, maxY = pad(minY, maxY)
	return
}

// PointsToASCII draws points on a width×height character grid with axes
// where they cross the visible area.
func PointsToASCII(points []Point, width, height int) string {
	if len(points) == 0 || width < 2 || height < 2 {
		return ""
	}
	minX, maxX, minY, maxY := bounds(points)
	rangeX, rangeY := maxX-minX, maxY-minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for _, p := range points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

func (p *PhasePortrait) ASCII(width, height int) string {
	if p == nil {
		return ""
	}
	return PointsToASCII(p.Points, width, height)
}
