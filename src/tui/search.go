package tui

import (
	"strings"
)

// applyFilter applies the severity threshold and search query to the list.
func (m *MainModel) applyFilter() {
	minSeverity := m.header.Filter()
	query := strings.ToLower(m.searchQuery)

	var filtered []Item
	for _, item := range m.items {
		if minSeverity != "" && item.Finding.Severity.Rank() < minSeverity.Rank() {
			continue
		}
		if query != "" && !matches(item, query) {
			continue
		}
		filtered = append(filtered, item)
	}

	m.listView.SetItems(filtered)
	if selectedItem, ok := m.listView.GetSelectedItem(); ok {
		m.updateDetailContent(selectedItem)
	} else {
		m.detailViewport.SetContent("")
	}
}

// matches searches the message, location, category, detectors, and code.
func matches(item Item, query string) bool {
	f := item.Finding
	fields := append([]string{f.Message, item.Location(), f.Category, f.DetectorKind, f.SuggestedFix}, f.Detectors...)
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	for _, line := range item.Snippet {
		if strings.Contains(strings.ToLower(line.Text), query) {
			return true
		}
	}
	return false
}
