package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// listRenderingOverhead is the padding bubbles/list and the panel border add
// around each row.
const listRenderingOverhead = 10

// Delegate renders findings as table rows.
type Delegate struct {
	RankWidth     int
	LocationWidth int
	styles        *StyleConfig
}

// NewDelegate creates a delegate with the given styles.
func NewDelegate(styles *StyleConfig) Delegate {
	return Delegate{
		RankWidth:     2,
		LocationWidth: 12,
		styles:        styles,
	}
}

// SetColumnWidths sizes the rank and location columns to fit items, with the
// location column capped at maxLocation cells.
func (d *Delegate) SetColumnWidths(items []Item, maxLocation int) {
	d.RankWidth = max(2, len(fmt.Sprintf("%d", len(items))))
	d.LocationWidth = 12
	for _, item := range items {
		d.LocationWidth = max(d.LocationWidth, VisualWidth(item.Location()))
	}
	if maxLocation > 0 {
		d.LocationWidth = min(d.LocationWidth, maxLocation)
	}
}

func (d Delegate) Height() int { return 1 }

func (d Delegate) Spacing() int { return 0 }

func (d Delegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

// Render renders a list item
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(Item)
	if !ok {
		return
	}
	isSelected := index == m.Index()

	rankCol := fmt.Sprintf("%*d", d.RankWidth, entry.Rank)
	sevCol := d.styles.SeverityStyle(entry.Finding.Severity).Render(severityLabel(entry.Finding.Severity))
	confCol := fmt.Sprintf("%.2f", entry.Finding.Confidence)[1:]
	locCol := TruncateAndPad(entry.Location(), d.LocationWidth, true)

	// rank + severity (4) + confidence (3) + location + separators (12)
	fixedWidth := d.RankWidth + 4 + 3 + d.LocationWidth + 12
	availableWidth := m.Width() - fixedWidth - listRenderingOverhead

	var message string
	if availableWidth > 0 {
		message = TruncateAndPad(CleanText(entry.Finding.Message), availableWidth, true)
	}

	style := lipgloss.NewStyle().Foreground(d.styles.TextSecondary)
	if isSelected {
		style = style.Bold(true).Foreground(d.styles.PrimaryBlue).Background(d.styles.SelectedColor)
	}

	fmt.Fprint(w, style.Render(rankCol+" │ ")+sevCol+style.Render(fmt.Sprintf(" │ %s │ %s │ %s", confCol, locCol, message)))
}
