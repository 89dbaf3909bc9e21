package theme

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gpl = `GIMP Palette
Name: two tone
Columns: 2
# comment
  0   0   0	black
255 128  64	orange
300   0   0	out of range
`

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader(gpl))
	require.NoError(t, err)
	assert.Equal(t, "two tone", p.Name)
	assert.Equal(t, []RGB{{0, 0, 0}, {255, 128, 64}}, p.Colors)

	_, err = ParseGPL(strings.NewReader("GIMP Palette\n"))
	assert.Error(t, err)
}

func TestLookupInterpolates(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}}}
	assert.Equal(t, RGB{0, 0, 0}, p.Lookup(-1))
	assert.Equal(t, RGB{100, 50, 25}, p.Lookup(0.5))
	assert.Equal(t, RGB{200, 100, 50}, p.Lookup(2))
	assert.Equal(t, RGB{200, 100, 50}, p.Index(9))
}

func TestLoad(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "plasma", p.Name)

	path := filepath.Join(t.TempDir(), "p.gpl")
	require.NoError(t, os.WriteFile(path, []byte(gpl), 0644))
	p, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Colors, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.gpl"))
	assert.Error(t, err)
}

func TestThemeRoles(t *testing.T) {
	th := New(&Palette{Colors: []RGB{{0, 0, 0}, {255, 255, 255}}})
	assert.Equal(t, lipgloss.Color("#000000"), th.BG())
	assert.Equal(t, lipgloss.Color("#ffffff"), th.Success())

	on, off := th.PadColors()
	assert.Equal(t, [3]uint8{255, 255, 255}, on)
	assert.Equal(t, [3]uint8{25, 25, 25}, off)

	assert.NotNil(t, New(nil).Palette)
}
