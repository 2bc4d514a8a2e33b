// Package tui provides the terminal interface for browsing review findings.
package tui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"sift-agent/src/pipeline"
)

// Status is the lifecycle of the review shown by the model.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

// ReviewDoneMsg delivers the finished review to the model.
type ReviewDoneMsg struct {
	Record *pipeline.ReviewRecord
	Err    error
}

// MainModel is the Bubble Tea model: a findings list on the left and the
// selected finding with its code on the right.
type MainModel struct {
	styles         *StyleConfig
	header         Header
	listView       View
	detailViewport viewport.Model
	progress       ProgressModel

	items  []Item
	record *pipeline.ReviewRecord
	status Status
	err    error

	width         int
	height        int
	ready         bool
	detailFocused bool
	searchMode    bool
	searchQuery   string
}

// NewMainModel creates a model waiting for a review titled title.
func NewMainModel(title string) MainModel {
	styles := DefaultStyles()
	return MainModel{
		styles:         styles,
		header:         NewHeader(title, styles),
		listView:       NewView(styles),
		detailViewport: viewport.New(0, 0),
		progress:       NewProgressModel(),
		status:         StatusLoading,
	}
}

func (m MainModel) Init() tea.Cmd {
	return SpinnerTick()
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeComponents()
		return m, nil

	case ProgressMsg, SpinnerTickMsg:
		m.progress, cmd = m.progress.Update(msg)
		if p, ok := msg.(ProgressMsg); ok {
			m.header.SetStatus(p.Stage)
		}
		return m, cmd

	case ReviewDoneMsg:
		m.progress = m.progress.Done()
		m.record = msg.Record
		if msg.Err != nil && msg.Record == nil {
			m.status = StatusFailed
			m.err = msg.Err
			m.header.SetStatus("failed")
			return m, nil
		}
		m.status = StatusReady
		m.err = msg.Err
		m.header.SetStatus(string(msg.Record.Outcome))
		m.items = NewItems(msg.Record.Validated, msg.Record.Chunks)
		m.applyFilter()
		return m, nil

	case tea.KeyMsg:
		if m.searchMode {
			return m.updateSearch(msg), nil
		}
		if m.detailFocused {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "esc", "left", "h":
				m.detailFocused = false
				return m, nil
			}
			m.detailViewport, cmd = m.detailViewport.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "/":
			m.searchMode = true
			m.header.SetSearch(m.searchQuery, true)
			return m, nil
		case "tab":
			m.header.CycleFilter()
			m.applyFilter()
			return m, nil
		case "enter", "right", "l":
			if m.listView.Len() > 0 {
				m.detailFocused = true
			}
			return m, nil
		}

		before, _ := m.listView.GetSelectedItem()
		m.listView, cmd = m.listView.Update(msg)
		if after, ok := m.listView.GetSelectedItem(); ok && after.Rank != before.Rank {
			m.updateDetailContent(after)
		}
		return m, cmd
	}

	return m, nil
}

func (m MainModel) updateSearch(msg tea.KeyMsg) MainModel {
	switch msg.Type {
	case tea.KeyEsc:
		m.searchQuery = ""
		m.searchMode = false
	case tea.KeyEnter:
		m.searchMode = false
	case tea.KeyBackspace:
		if r := []rune(m.searchQuery); len(r) > 0 {
			m.searchQuery = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.searchQuery += string(msg.Runes)
	default:
		return m
	}
	m.header.SetSearch(m.searchQuery, m.searchMode)
	m.applyFilter()
	return m
}

// Runner performs the review, reporting progress through send.
type Runner func(send func(tea.Msg)) (*pipeline.ReviewRecord, error)

// Start runs the interface until the user quits. The review runs concurrently
// and its result is delivered to the model when it finishes.
func Start(title string, run Runner) error {
	p := tea.NewProgram(NewMainModel(title), tea.WithAltScreen())
	go func() {
		rec, err := run(p.Send)
		p.Send(ReviewDoneMsg{Record: rec, Err: err})
	}()
	_, err := p.Run()
	return err
}
