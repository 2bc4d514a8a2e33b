package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sift-agent/src/review"
)

// renderDetail renders the detail content for a finding. Every line is
// wrapped to maxWidth before styling so it never bleeds into the list panel.
func (m MainModel) renderDetail(item Item, maxWidth int) string {
	f := item.Finding
	var content strings.Builder

	label := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Bold(true)
	dim := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Faint(true)

	meta := fmt.Sprintf("%s │ %s │ confidence %.2f", f.Severity, f.Category, f.Confidence)
	if len(f.Detectors) > 0 {
		meta += " │ " + strings.Join(f.Detectors, ", ")
	} else if f.DetectorKind != "" {
		meta += " │ " + f.DetectorKind
	}
	fmt.Fprintln(&content, m.styles.SeverityStyle(f.Severity).Render(Wrap(meta, maxWidth)))
	fmt.Fprintln(&content)

	fmt.Fprintln(&content, label.Render("Finding:"))
	fmt.Fprintln(&content, lipgloss.NewStyle().Foreground(m.styles.TextPrimary).Render(Wrap(CleanText(f.Message), maxWidth)))
	fmt.Fprintln(&content)

	if f.SuggestedFix != "" {
		fmt.Fprintln(&content, label.Render("Suggested fix:"))
		for _, line := range strings.Split(CleanText(f.SuggestedFix), "\n") {
			for _, part := range HardWrap(line, maxWidth) {
				fmt.Fprintln(&content, lipgloss.NewStyle().Foreground(m.styles.AddedLine).Render(part))
			}
		}
		fmt.Fprintln(&content)
	}

	if len(item.Snippet) > 0 {
		fmt.Fprintln(&content, label.Render("Code:"))
		for _, line := range m.renderSnippet(item, maxWidth) {
			fmt.Fprintln(&content, line)
		}
	} else {
		fmt.Fprintln(&content, dim.Render("(no code context)"))
	}

	return content.String()
}

// renderSnippet formats snippet lines with a number gutter. The flagged
// line is highlighted; added lines are marked with "+".
func (m MainModel) renderSnippet(item Item, maxWidth int) []string {
	gutterWidth := len(fmt.Sprintf("%d", item.Snippet[len(item.Snippet)-1].Number))
	codeWidth := maxWidth - gutterWidth - 3

	dim := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Faint(true)
	added := lipgloss.NewStyle().Foreground(m.styles.AddedLine)
	flagged := m.styles.SeverityStyle(item.Finding.Severity).Background(m.styles.SelectedColor)

	var out []string
	for _, line := range item.Snippet {
		marker := " "
		style := dim
		if line.Op == review.OpAdd {
			marker = "+"
			style = added
		}
		if line.Number == item.Finding.LineNumber {
			style = flagged
		}

		for i, part := range HardWrap(CleanText(line.Text), codeWidth) {
			gutter := fmt.Sprintf("%*d%s ", gutterWidth, line.Number, marker)
			if i > 0 {
				gutter = strings.Repeat(" ", gutterWidth+2)
			}
			out = append(out, dim.Render(gutter)+style.Render(part))
		}
	}
	return out
}

// updateDetailContent updates the viewport with content from the selected item
func (m *MainModel) updateDetailContent(item Item) {
	maxWidth := m.detailViewport.Width - 2
	m.detailViewport.SetContent(m.renderDetail(item, maxWidth))
	m.detailViewport.GotoTop()
}

// renderDetailPanel renders the right panel with the detail viewport.
func (m MainModel) renderDetailPanel(width, height int) string {
	panel := m.styles.PanelStyle(m.detailFocused).Width(width - 2).Height(height)

	if selectedItem, ok := m.listView.GetSelectedItem(); ok {
		headerRow := m.styles.TitleStyle().Render(Truncate(selectedItem.Location(), width-2, true))
		return lipgloss.JoinVertical(lipgloss.Left, headerRow, panel.Render(m.detailViewport.View()))
	}

	empty := "No findings match the current filter"
	if len(m.items) == 0 && m.record != nil {
		empty = m.record.Summary
	}
	placeholder := lipgloss.NewStyle().
		Width(width-4).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(m.styles.TextSecondary).
		Faint(true).
		Render(Wrap(empty, width-6))

	return lipgloss.JoinVertical(lipgloss.Left, " ", panel.Render(placeholder))
}
