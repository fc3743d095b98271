package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette shared by every renderer.
var (
	ColorAccent = lipgloss.Color("39")  // blue
	ColorPass   = lipgloss.Color("42")  // green
	ColorWarn   = lipgloss.Color("214") // orange
	ColorErr    = lipgloss.Color("196") // red
	ColorMuted  = lipgloss.Color("245") // grey
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	errStyle    = lipgloss.NewStyle().Foreground(ColorErr).Bold(true)
	idStyle     = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// RenderPass styles a success marker.
func RenderPass(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return passStyle.Render(s)
}

// RenderWarn styles a warning marker.
func RenderWarn(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return warnStyle.Render(s)
}

// RenderErr styles an error marker.
func RenderErr(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return errStyle.Render(s)
}

// RenderID styles an entity/state/bond id.
func RenderID(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return idStyle.Render(s)
}

// RenderMuted styles secondary text.
func RenderMuted(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return mutedStyle.Render(s)
}

// RenderHeader styles a section heading.
func RenderHeader(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return headerStyle.Render(s)
}

// RenderStatus colors a state status by severity.
func RenderStatus(status string) string {
	if !ShouldUseColor() {
		return status
	}
	switch status {
	case "fulfilled", "active", "done":
		return passStyle.Render(status)
	case "stressed", "error":
		return errStyle.Render(status)
	case "suspended", "pending", "running":
		return warnStyle.Render(status)
	default:
		return mutedStyle.Render(status)
	}
}
