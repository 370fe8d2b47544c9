package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	tableBorderColor = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#AAAAAA"}
	tableBorderStyle = lipgloss.NewStyle().Foreground(tableBorderColor)
)

// Table renders rows under headers. Without a TTY the output is plain
// tab-separated lines.
func Table(headers []string, rows [][]string) string {
	if !HasTTY {
		return PlainTable(headers, rows)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}

// PlainTable renders rows as tab-separated lines with a header line.
func PlainTable(headers []string, rows [][]string) string {
	var out strings.Builder
	out.WriteString(strings.Join(headers, "\t"))
	for _, row := range rows {
		out.WriteString("\n")
		out.WriteString(strings.Join(row, "\t"))
	}
	return out.String()
}
