package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/quadsim/internal/analysis"
	"github.com/san-kum/quadsim/internal/dynamo"
)

const (
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer is an observer that redraws the robot on a plain terminal at
// most frameRate times per second. It is used by headless rollouts.
type LiveRenderer struct {
	out       io.Writer
	title     string
	frameRate int
	lastFrame time.Time
	canvas    *Canvas
	frames    int
	now       func() time.Time
}

func NewLiveRenderer(out io.Writer, title string, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 20
	}
	return &LiveRenderer{
		out:       out,
		title:     title,
		frameRate: frameRate,
		canvas:    NewCanvas(canvasWidth, canvasHeight),
		now:       time.Now,
	}
}

func (r *LiveRenderer) OnStep(obs dynamo.Observation, action dynamo.JointVector, t float64) {
	now := r.now()
	if now.Sub(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = now

	r.canvas.Clear()
	DrawRobot(r.canvas, obs)
	r.render(obs, t)
}

func (r *LiveRenderer) render(obs dynamo.Observation, t float64) {
	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(fmt.Sprintf("  %s  t=%.2fs\n", r.title, t))
	b.WriteString("  " + strings.Repeat("-", canvasWidth) + "\n")
	for _, row := range r.canvas.Grid {
		b.WriteString("  ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}
	b.WriteString("  " + strings.Repeat("-", canvasWidth) + "\n")

	cmd := obs.Command()
	b.WriteString(fmt.Sprintf("  cmd=(%.2f, %.2f, %.2f) tilt=%.3f\n", cmd[0], cmd[1], cmd[2], analysis.Tilt(obs.Gravity())))

	fmt.Fprint(r.out, b.String())
	r.frames++
}

// Frames is the number of frames drawn so far.
func (r *LiveRenderer) Frames() int { return r.frames }

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
