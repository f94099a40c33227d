// Package tui is a terminal front end for tuning a controller while it
// runs against a simulated plant.
package tui

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/dpid/internal/loop"
	"github.com/san-kum/dpid/pid"
)

const (
	frame       = 33 * time.Millisecond
	window      = 200
	gainFactor  = 1.1
	gainFloor   = 0.01 // raising a zero gain starts here
	defaultStep = 0.1
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 1)
)

type model struct {
	sess *loop.Session
	ctrl *pid.Controller

	setpointStep float64
	paused       bool
	speed        float64

	setpoints []float64
	outputs   []float64
	controls  []float64

	status string
	err    error

	width  int
	height int
}

func newModel(sess *loop.Session, ctrl *pid.Controller) model {
	return model{
		sess:         sess,
		ctrl:         ctrl,
		setpointStep: defaultStep,
		speed:        1.0,
		setpoints:    make([]float64, 0, window),
		outputs:      make([]float64, 0, window),
		controls:     make([]float64, 0, window),
		width:        80,
		height:       24,
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frame, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.paused && m.err == nil {
			for i := 0; i < m.samplesPerFrame(); i++ {
				if err := m.step(); err != nil {
					m.err = err
					break
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

// samplesPerFrame keeps simulated time in step with wall time times speed.
func (m model) samplesPerFrame() int {
	ts := m.ctrl.SamplePeriod()
	if !(ts > 0) {
		return 1
	}
	n := int(math.Round(m.speed * frame.Seconds() / ts))
	if n < 1 {
		n = 1
	}
	return n
}

func (m *model) step() error {
	s, err := m.sess.Step()
	if err != nil && !errors.Is(err, loop.ErrDiverged) {
		return err
	}
	m.setpoints = push(m.setpoints, s.Setpoint)
	m.outputs = push(m.outputs, s.Output)
	m.controls = push(m.controls, s.Control)
	return err
}

func push(buf []float64, v float64) []float64 {
	if len(buf) == window {
		copy(buf, buf[1:])
		buf = buf[:window-1]
	}
	return append(buf, v)
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ":
		m.paused = !m.paused
	case "p":
		m.retune("kp", m.ctrl.Kp(), lower(m.ctrl.Kp()))
	case "P":
		m.retune("kp", m.ctrl.Kp(), raise(m.ctrl.Kp()))
	case "i":
		m.retune("ki", m.ctrl.Ki(), lower(m.ctrl.Ki()))
	case "I":
		m.retune("ki", m.ctrl.Ki(), raise(m.ctrl.Ki()))
	case "d":
		m.retune("kd", m.ctrl.Kd(), lower(m.ctrl.Kd()))
	case "D":
		m.retune("kd", m.ctrl.Kd(), raise(m.ctrl.Kd()))
	case "up", "k":
		m.ctrl.SetCommand(m.ctrl.Command() + m.setpointStep)
		m.status = fmt.Sprintf("setpoint %.3f", m.ctrl.Command())
	case "down", "j":
		m.ctrl.SetCommand(m.ctrl.Command() - m.setpointStep)
		m.status = fmt.Sprintf("setpoint %.3f", m.ctrl.Command())
	case "r":
		m.ctrl.Reset()
		m.status = "history cleared"
	case "+", "=":
		m.speed = math.Min(m.speed*2, 16)
	case "-", "_":
		m.speed = math.Max(m.speed/2, 0.25)
	case "0":
		m.speed = 1.0
	}
	return m, nil
}

func raise(g float64) float64 {
	if g == 0 {
		return gainFloor
	}
	return g * gainFactor
}

// lower scales a gain down, dropping to zero below gainFloor.
func lower(g float64) float64 {
	g /= gainFactor
	if math.Abs(g) < gainFloor {
		return 0
	}
	return g
}

func (m *model) retune(name string, old, v float64) {
	if v == old {
		m.status = fmt.Sprintf("%s unchanged at %.4g", name, v)
		return
	}
	if err := m.ctrl.SetParam(name, v); err != nil {
		m.status = err.Error()
		return
	}
	m.status = fmt.Sprintf("%s=%.4g (history cleared)", name, v)
}

func (m model) View() string {
	var b strings.Builder

	p := m.ctrl.Params()
	b.WriteString(cyan.Bold(true).Render("dpid tune"))
	b.WriteString(dim.Render(fmt.Sprintf("  t=%.2fs  speed=%gx", m.sess.Time(), m.speed)))
	if m.paused {
		b.WriteString(yellow.Render("  paused"))
	}
	b.WriteString("\n\n")

	gains := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		dim.Render("kp"), white.Render(fmt.Sprintf("%.4g", p.Kp)),
		dim.Render("ki"), white.Render(fmt.Sprintf("%.4g", p.Ki)),
		dim.Render("kd"), white.Render(fmt.Sprintf("%.4g", p.Kd)),
		dim.Render("n"), white.Render(fmt.Sprintf("%.4g", p.N)),
		dim.Render("ts"), white.Render(fmt.Sprintf("%.4g", p.Ts)),
	)
	b.WriteString(panel.Render(gains))
	b.WriteString("\n")

	width := m.width - 12
	if width < 20 {
		width = 20
	}
	if len(m.outputs) > 1 {
		b.WriteString(green.Render(asciigraph.PlotMany([][]float64{m.setpoints, m.outputs},
			asciigraph.Height(10),
			asciigraph.Width(width),
			asciigraph.Caption("setpoint / output"),
		)))
		b.WriteString("\n\n")
		b.WriteString(magenta.Render(asciigraph.Plot(m.controls,
			asciigraph.Height(5),
			asciigraph.Width(width),
			asciigraph.Caption("control"),
		)))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(yellow.Render("stopped: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(white.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(dim.Render("p/P i/I d/D gains  ↑/↓ setpoint  r reset  space pause  +/- speed  q quit"))
	return b.String()
}

// Run takes over the terminal until the user quits.
func Run(sess *loop.Session, ctrl *pid.Controller) error {
	p := tea.NewProgram(newModel(sess, ctrl), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
