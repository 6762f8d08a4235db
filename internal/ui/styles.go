package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Output panel line styles, keyed by stream.
	stdoutStyle = lipgloss.NewStyle()
	stderrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	panelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8"))

	focusedPanelStyle = panelStyle.BorderForeground(lipgloss.Color("5"))

	// Call tree.
	callStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	returnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("8")).Foreground(lipgloss.Color("15"))

	// Status bar.
	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "8", Dark: "15"}).
			Background(lipgloss.AdaptiveColor{Light: "15", Dark: "8"})

	statusBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Padding(0, 1).
			MarginRight(1)

	runningBadge = statusBadge.Background(lipgloss.Color("2")).SetString("RUNNING")
	pausedBadge  = statusBadge.Background(lipgloss.Color("3")).SetString("PAUSED")
	stoppedBadge = statusBadge.Background(lipgloss.Color("5")).SetString("STOPPED")

	statusText = lipgloss.NewStyle().Inherit(statusBarStyle)

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	excTypeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	tracebackSty = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func styleFor(stream string) lipgloss.Style {
	switch stream {
	case "stderr":
		return stderrStyle
	case "system":
		return systemStyle
	case "error":
		return errorStyle
	default:
		return stdoutStyle
	}
}

// trunc cuts a string to size runes, marking the cut with an ellipsis.
func trunc(str string, size int) string {
	if size <= 0 {
		return ""
	}
	runes := []rune(str)
	if len(runes) <= size {
		return str
	}
	if size == 1 {
		return "…"
	}
	return string(runes[:size-1]) + "…"
}
