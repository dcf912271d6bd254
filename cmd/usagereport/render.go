package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	humanize "github.com/dustin/go-humanize"
	decimal "github.com/shopspring/decimal"
)

var (
	colorBorder = lipgloss.Color("#575653")
	colorText   = lipgloss.Color("#FFFCF0")
	colorAccent = lipgloss.Color("#3AA99F")
	colorMuted  = lipgloss.Color("#6F6E69")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	numberStyle = cellStyle.Align(lipgloss.Right)

	noteStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
)

// table is a header row plus body rows. Every column after the first is
// right-aligned.
type table struct {
	Headers []string
	Rows    [][]string
}

func renderTitle(title string) string {
	return titleStyle.Render(title)
}

func renderNote(note string) string {
	return noteStyle.Render(note)
}

func renderTable(t table) string {
	if len(t.Rows) == 0 {
		return renderNote("no usage in range")
	}
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col > 0:
				return numberStyle
			default:
				return cellStyle
			}
		}).
		String()
}

func formatCount(n int64) string {
	return humanize.Comma(n)
}

func formatCost(amount decimal.Decimal, currency string) string {
	return strings.TrimSpace(amount.StringFixed(4) + " " + currency)
}
