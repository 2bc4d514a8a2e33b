package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"sift-agent/src/review"
)

// severityFilters are cycled by the filter key. The empty filter shows everything.
var severityFilters = []review.Severity{
	"",
	review.SeverityError,
	review.SeverityWarning,
	review.SeveritySuggestion,
	review.SeverityNote,
}

// Header represents the top status bar component.
type Header struct {
	title       string
	status      string
	minSeverity review.Severity
	searchQuery string
	searchMode  bool
	styles      *StyleConfig
}

// NewHeader creates a new header
func NewHeader(title string, styles *StyleConfig) Header {
	return Header{
		title:  title,
		status: "reviewing",
		styles: styles,
	}
}

// SetStatus updates the review status shown next to the title.
func (h *Header) SetStatus(status string) {
	h.status = status
}

// Filter returns the lowest severity shown, or "" for all.
func (h Header) Filter() review.Severity {
	return h.minSeverity
}

// CycleFilter moves to the next severity threshold.
func (h *Header) CycleFilter() {
	for i, f := range severityFilters {
		if f == h.minSeverity {
			h.minSeverity = severityFilters[(i+1)%len(severityFilters)]
			return
		}
	}
	h.minSeverity = ""
}

// SetSearch updates the search state
func (h *Header) SetSearch(query string, mode bool) {
	h.searchQuery = query
	h.searchMode = mode
}

// Render renders the header
func (h Header) Render(width int) string {
	section := lipgloss.NewStyle().
		Foreground(h.styles.PrimaryBlue).
		Bold(true).
		Padding(0, 2)

	title := section.Render(fmt.Sprintf("%s [%s]", h.title, h.status))

	filterLabel := "ALL"
	if h.minSeverity != "" {
		filterLabel = string(h.minSeverity) + "+"
	}
	filter := section.Render("Severity: " + filterLabel)

	var searchText string
	switch {
	case h.searchMode:
		searchText = fmt.Sprintf("Search: %s█", h.searchQuery)
	case h.searchQuery != "":
		searchText = "Search: " + h.searchQuery
	default:
		searchText = "[/] to search"
	}
	searchStyle := lipgloss.NewStyle().Foreground(h.styles.TextSecondary).Padding(0, 2)
	if h.searchMode {
		searchStyle = searchStyle.Foreground(h.styles.PrimaryBlue)
	}

	content := lipgloss.JoinHorizontal(lipgloss.Left, title, filter, searchStyle.Render(searchText))
	content = ansi.Truncate(content, width, "")

	return lipgloss.NewStyle().
		Background(h.styles.DarkBackground).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(h.styles.BorderColor).
		Width(width).
		Render(content)
}
