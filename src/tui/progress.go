package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sift-agent/src/pipeline"
)

var siftLogo = []string{
	" ▄██████▄ ████ ██████████ ██████████",
	" ██        ██  ██             ██    ",
	" ▀██████▄  ██  ████████       ██    ",
	"       ██  ██  ██             ██    ",
	" ▀██████▀ ████ ██             ██    ",
}

var logoGradientColors = []string{
	"#5DADE2",
	"#3498DB",
	"#2E86C1",
	"#2874A6",
	"#21618C",
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ProgressMsg reports the stage a review has reached.
type ProgressMsg struct {
	Stage    string
	Current  int
	Total    int
	Findings int
}

// SpinnerTickMsg advances the spinner animation.
type SpinnerTickMsg time.Time

// ProgressModel renders the loading screen while a review runs.
type ProgressModel struct {
	stage        string
	current      int
	total        int
	findings     int
	done         bool
	spinnerFrame int
}

func NewProgressModel() ProgressModel {
	return ProgressModel{}
}

// SpinnerTick returns a command that sends SpinnerTickMsg after a delay
func SpinnerTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return SpinnerTickMsg(t)
	})
}

// Done stops the spinner.
func (m ProgressModel) Done() ProgressModel {
	m.done = true
	return m
}

func (m ProgressModel) Update(msg tea.Msg) (ProgressModel, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		m.stage = msg.Stage
		m.current = msg.Current
		m.total = msg.Total
		m.findings = msg.Findings
	case SpinnerTickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		if !m.done {
			return m, SpinnerTick()
		}
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var logoLines []string
	for i, line := range siftLogo {
		style := lipgloss.NewStyle().
			Foreground(lipgloss.Color(logoGradientColors[i%len(logoGradientColors)])).
			Bold(true)
		logoLines = append(logoLines, style.Render(line))
	}
	logo := strings.Join(logoLines, "\n")

	if m.done {
		status := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("✓ Review complete")
		return lipgloss.JoinVertical(lipgloss.Center, logo, "", status)
	}

	spinner := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Render(spinnerFrames[m.spinnerFrame])

	var statusLine string
	switch {
	case m.total > 0:
		statusLine = fmt.Sprintf("%s %s (%d/%d, %d findings)", spinner, m.stage, m.current, m.total, m.findings)
	case m.stage != "":
		statusLine = fmt.Sprintf("%s %s...", spinner, m.stage)
	default:
		statusLine = spinner + " Loading..."
	}

	return lipgloss.JoinVertical(lipgloss.Center, logo, "", statusLine)
}

// ProgressObserver forwards pipeline stage events to a running program.
func ProgressObserver(send func(tea.Msg)) pipeline.Observer {
	stages := pipeline.Stages()
	position := make(map[pipeline.Stage]int, len(stages))
	for i, s := range stages {
		position[s] = i + 1
	}

	return pipeline.ObserverFunc(func(ctx context.Context, ev pipeline.Event) error {
		switch ev.Type {
		case pipeline.EventStageStarted, pipeline.EventChunkAnalyzed:
			send(ProgressMsg{
				Stage:    string(ev.Stage),
				Current:  position[ev.Stage],
				Total:    len(stages),
				Findings: ev.Findings,
			})
		}
		return nil
	})
}
