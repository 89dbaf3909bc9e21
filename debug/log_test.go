package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDisabledIsSilent(t *testing.T) {
	Disable()
	Log("router", "dropped %d", 3)
	assert.False(t, Enabled())
}

func TestEnableWriter(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	Log("device", "connected %s", "Keystation")
	Warn("device", "slot %d busy", 4)

	out := buf.String()
	assert.Contains(t, out, "category=device")
	assert.Contains(t, out, "connected Keystation")
	assert.Contains(t, out, "level=warning")
}

func TestLogEvery(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	for i := 0; i < 10; i++ {
		LogEvery(5, "cycle", "tick")
	}
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("tick (every 5")))
}

func TestEnableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	require.NoError(t, EnableFile(path))
	Log("config", "loaded")
	Disable()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Debug logging started")
	assert.Contains(t, string(data), "loaded")
}
