package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "63", Dark: "105"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "244", Dark: "241"}
	colorError  = lipgloss.AdaptiveColor{Light: "160", Dark: "203"}
	colorNotice = lipgloss.AdaptiveColor{Light: "172", Dark: "214"}
)

func styleStatusBar() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colorMuted)
}

func styleNotice() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colorNotice)
}

func styleError() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colorError).Bold(true)
}

func styleActivePane() lipgloss.Style {
	return lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(colorAccent)
}

func styleInactivePane() lipgloss.Style {
	return lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(colorMuted)
}

// applyColorProfilePreference sets lipgloss's color profile. NO_COLOR wins;
// otherwise trust COLORTERM/TERM over termenv's detection, which
// under-reports on some terminals.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.ColorProfile()
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	colorterm := strings.ToLower(strings.TrimSpace(os.Getenv("COLORTERM")))
	if strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit") {
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	} else if strings.Contains(term, "256color") && (profile == termenv.Ascii || profile == termenv.ANSI) {
		profile = termenv.ANSI256
	}
	lipgloss.SetColorProfile(profile)
}
