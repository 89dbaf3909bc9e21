package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestRenderMeter(t *testing.T) {
	assert.Equal(t, "##--", RenderMeter(64, 0, 127, 4, '#', '-'))
	assert.Equal(t, "----", RenderMeter(-5, 0, 127, 4, '#', '-'))
	assert.Equal(t, "####", RenderMeter(500, 0, 127, 4, '#', '-'))
	assert.Equal(t, "---", RenderMeter(3, 3, 3, 3, '#', '-'))
}

func TestRenderKeyHelp(t *testing.T) {
	out := RenderKeyHelp([]KeySection{
		{Title: "Pots", Keys: []KeyBinding{{Key: "1-4", Desc: "select pot"}}},
	})
	lines := strings.Split(out, "\n")
	assert.Equal(t, "Pots", lines[0])
	assert.Contains(t, lines[1], "1-4")
	assert.Contains(t, lines[1], "select pot")
}

func TestRenderPadRow(t *testing.T) {
	out := RenderPadRow([]lipgloss.Color{"#ff0000", "#00ff00"}, []rune{'a', 'b'})
	assert.Contains(t, out, "a")
	assert.Contains(t, out, "b")
}
