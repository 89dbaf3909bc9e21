// Package widgets renders small monitor building blocks with lipgloss.
package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderPad renders a single colored glyph
func RenderPad(color lipgloss.Color, glyph rune) string {
	return lipgloss.NewStyle().Foreground(color).Render(string(glyph))
}

// RenderPadRow renders glyphs with spacing
func RenderPadRow(colors []lipgloss.Color, glyphs []rune) string {
	var out strings.Builder
	for i, c := range colors {
		if i > 0 {
			out.WriteString(" ")
		}
		out.WriteString(RenderPad(c, glyphs[i]))
	}
	return out.String()
}

// RenderMeter renders value within [min, max] as a bar of width cells
func RenderMeter(value, min, max int32, width int, full, empty rune) string {
	filled := 0
	if max > min {
		filled = int(int64(value-min) * int64(width) / int64(max-min))
	}
	if filled < 0 {
		filled = 0
	} else if filled > width {
		filled = width
	}
	return strings.Repeat(string(full), filled) + strings.Repeat(string(empty), width-filled)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
