package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// Muted style for secondary text
	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleHighlight = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)
)

const logoASCII = `
 _        _                    _ _          
| |_ _ __(_)_ __  ___  ___ _ __(_) |__   ___ 
| __| '__| | '_ \/ __|/ __| '__| | '_ \ / _ \
| |_| |  | | |_) \__ \ (__| |  | | |_) |  __/
 \__|_|  |_| .__/|___/\___|_|  |_|_.__/ \___|
           |_|                               `

// Logo returns the tripscribe ASCII art
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}

// ClearScreen clears the terminal screen
func ClearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

// DisableColorsIfPiped drops styling when stdout is not a terminal.
func DisableColorsIfPiped() {
	if termenv.NewOutput(os.Stdout).Profile == termenv.Ascii {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
