package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/quadsim/internal/analysis"
	"github.com/san-kum/quadsim/internal/control"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/loop"
)

const (
	canvasWidth     = 60
	canvasHeight    = 18
	historyCapacity = 300
	commandStep     = 0.1
)

type TickMsg time.Time

// Stepper is the part of the loop the live view drives.
type Stepper interface {
	Step(ctx context.Context, action []float64) (dynamo.Observation, error)
	State() loop.State
	CommandSource() *control.Source
	Steps() int
	SimTime() float64
}

var _ Stepper = (*loop.Loop)(nil)

// Model steps a settled loop on every tick and lets the keyboard steer the
// velocity command.
type Model struct {
	ctx     context.Context
	stepper Stepper
	policy  control.Policy
	metrics []dynamo.Metric
	title   string

	obs      dynamo.Observation
	t        float64
	dt       float64
	perTick  int
	running  bool
	err      error
	showHelp bool

	canvas  *Canvas
	thigh   int
	history []float64
	tilts   []float64
}

// NewModel wraps a loop that has already been initialized. dt is the
// control period and perTick the number of control steps per frame. The
// first action is chosen from a zero observation.
func NewModel(ctx context.Context, s Stepper, policy control.Policy, dt float64, perTick int, title string, metrics ...dynamo.Metric) Model {
	var err error
	if st := s.State(); st != loop.Ready {
		err = dynamo.Protocolf("live view needs a settled loop, state is %s", st)
	}
	if perTick < 1 {
		perTick = 1
	}
	thigh, _ := external.Index("FR_thigh_joint")
	return Model{
		ctx:     ctx,
		stepper: s,
		policy:  policy,
		metrics: metrics,
		title:   title,
		dt:      dt,
		perTick: perTick,
		running: err == nil,
		err:     err,
		canvas:  NewCanvas(canvasWidth, canvasHeight),
		thigh:   thigh,
		history: make([]float64, 0, historyCapacity),
		tilts:   make([]float64, 0, historyCapacity),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			if m.err == nil {
				m.running = !m.running
			}
		case "up", "w":
			m.nudge(dynamo.Command{commandStep, 0, 0})
		case "down", "s":
			m.nudge(dynamo.Command{-commandStep, 0, 0})
		case "left":
			m.nudge(dynamo.Command{0, 0, commandStep})
		case "right":
			m.nudge(dynamo.Command{0, 0, -commandStep})
		case "a":
			m.nudge(dynamo.Command{0, commandStep, 0})
		case "d":
			m.nudge(dynamo.Command{0, -commandStep, 0})
		case "0", "r":
			m.stepper.CommandSource().Set(dynamo.Command{})
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) nudge(delta dynamo.Command) {
	m.stepper.CommandSource().Nudge(delta)
}

func (m *Model) step() {
	for i := 0; i < m.perTick; i++ {
		action := m.policy.Act(m.obs, m.t)
		obs, err := m.stepper.Step(m.ctx, action.Slice())
		if err != nil {
			m.err = err
			m.running = false
			return
		}
		m.obs = obs
		m.t += m.dt
		for _, mt := range m.metrics {
			mt.Observe(obs, action, m.t)
		}
	}

	m.history = appendCapped(m.history, m.obs[dynamo.ObsJointPos+m.thigh])
	m.tilts = appendCapped(m.tilts, analysis.Tilt(m.obs.Gravity()))
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

func (m Model) Observation() dynamo.Observation { return m.obs }
func (m Model) Err() error                      { return m.err }
func (m Model) Running() bool                   { return m.running }

func (m Model) View() string {
	m.canvas.Clear()
	DrawRobot(m.canvas, m.obs)
	canvasView := canvasStyle.Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	switch {
	case m.err != nil:
		s.WriteString(statusFault.Render("FAULT") + "\n" + valueStyle.Render(m.err.Error()) + "\n\n")
	case m.running:
		s.WriteString(statusRunning.Render("RUNNING") + "\n\n")
	default:
		s.WriteString(statusPaused.Render("PAUSED") + "\n\n")
	}

	cmd := m.stepper.CommandSource().Get()
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.2fs", m.stepper.SimTime()))
	row("Steps", fmt.Sprintf("%d", m.stepper.Steps()))
	row("Command", fmt.Sprintf("vx %+.1f vy %+.1f yaw %+.1f", cmd[0], cmd[1], cmd[2]))
	row("Tilt", fmt.Sprintf("%.3f rad", analysis.Tilt(m.obs.Gravity())))
	for _, mt := range m.metrics {
		row(mt.Name(), fmt.Sprintf("%.3f", mt.Value()))
	}
	if len(m.tilts) > 1 {
		s.WriteString(labelStyle.Render("") + Sparkline(m.tilts, 30) + "\n")
	}

	if len(m.history) > 1 {
		chart := asciigraph.Plot(m.history, asciigraph.Height(5), asciigraph.Width(36), asciigraph.Caption("FR thigh (rad)"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	s.WriteString(helpStyle.Render("SP:Pause Q:Quit ?:Help\n↑↓:vx ←→:yaw A/D:vy 0:Stop"))
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
	if m.showHelp {
		return `
  Space      pause / resume
  Up/W       forward speed +0.1
  Down/S     forward speed -0.1
  Left/Right yaw rate ±0.1
  A/D        lateral speed ±0.1
  0/R        zero the command
  Q/Esc      quit
` + "\n" + mainView
	}
	return mainView
}

// Run starts the program in the alternate screen and blocks until quit.
func Run(m Model) (Model, error) {
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if fm, ok := final.(Model); ok {
		m = fm
	}
	return m, err
}
