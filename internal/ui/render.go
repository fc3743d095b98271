package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderTable renders rows under headers with the shared table styling.
func RenderTable(headers []string, rows [][]string, width int) string {
	t := table.New().
		Headers(headers...).
		Rows(rows...).
		Width(width).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(ColorAccent).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.Render()
}

// CapabilityRow is one line of the capabilities listing.
type CapabilityRow struct {
	ID          string
	Kind        string
	Description string
}

// RenderCapabilities renders the capability catalog grouped with protocols
// first, the way they resolve.
func RenderCapabilities(caps []CapabilityRow, width int) string {
	sort.SliceStable(caps, func(i, j int) bool {
		if caps[i].Kind != caps[j].Kind {
			return caps[i].Kind > caps[j].Kind // "protocol" > "primitive"
		}
		return caps[i].ID < caps[j].ID
	})

	rows := make([][]string, 0, len(caps))
	for _, c := range caps {
		rows = append(rows, []string{c.ID, c.Kind, truncate(c.Description, 60)})
	}
	return RenderTable([]string{"INTENT", "KIND", "DESCRIPTION"}, rows, width)
}

// RenderResultBox renders a dispatch outcome in a bordered box. Success
// gets a green border; failures a red one with the error kind as title.
func RenderResultBox(ok bool, title string, lines []string, width int) string {
	border := ColorPass
	if !ok {
		border = ColorErr
	}
	content := strings.Join(append([]string{RenderHeader(title)}, lines...), "\n")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(width - 2).
		Render(content)
}

// RenderKeyValues renders a map in sorted key order, for entity data and
// dispatch outputs.
func RenderKeyValues(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", RenderMuted(k), data[k]))
	}
	return lines
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
