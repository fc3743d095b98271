// Package ui provides terminal styling and output helpers for the cvm CLI.
package ui

import (
	"os"

	"golang.org/x/term"
)

// ShouldUseColor reports whether output should carry ANSI color. Honors
// the NO_COLOR convention (https://no-color.org/) and CLICOLOR=0;
// CLICOLOR_FORCE enables color even when stdout is not a terminal.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// GetWidth returns the terminal width, or 80 when stdout is not one.
func GetWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
