// Package ui holds the terminal styling shared by the CLI commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// IsInteractive reports whether stdout is a color-capable terminal. Piped
// output gets plain text.
func IsInteractive() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !IsInteractive() {
		return s
	}
	return style.Render(s)
}

// Pass renders a success marker or message.
func Pass(s string) string { return render(passStyle, s) }

// Warn renders a warning message.
func Warn(s string) string { return render(warnStyle, s) }

// Fail renders an error message.
func Fail(s string) string { return render(failStyle, s) }

// Accent renders highlighted identifiers and values.
func Accent(s string) string { return render(accentStyle, s) }

// Dim renders secondary detail.
func Dim(s string) string { return render(dimStyle, s) }

// TermWidth returns the terminal width, or the fallback when stdout is not
// a terminal.
func TermWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}
