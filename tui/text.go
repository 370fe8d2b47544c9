package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	mutedStyleColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	warningStyleColor = lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFA500"}
	titleStyleColor   = lipgloss.AdaptiveColor{Light: "#071330", Dark: "#F652A0"}
)

func render(style lipgloss.Style, text string) string {
	if !HasTTY {
		return text
	}
	return style.Render(text)
}

func Title(text string) string {
	return render(lipgloss.NewStyle().Bold(true).Foreground(titleStyleColor), text)
}

func Muted(text string) string {
	return render(lipgloss.NewStyle().Foreground(mutedStyleColor), text)
}

func Warning(text string) string {
	return render(lipgloss.NewStyle().Foreground(warningStyleColor), text)
}

// MaxWidth truncates text to width runes, ending it with "..." when cut.
func MaxWidth(text string, width int) string {
	if width < 4 || lipgloss.Width(text) <= width {
		return text
	}
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	return string(runes[:width-3]) + "..."
}
