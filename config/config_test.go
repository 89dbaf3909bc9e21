package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Engine.MasterChan = 15
	cfg.AddDevice(DeviceConfig{PortName: "Keystation", Profile: ProfileKeyboard, AutoConnect: true, Slot: 2, Output: "thru"})

	require.NoError(t, cfg.SaveFile(path))
	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine":{"blockSize":128,"sampleRate":44100,"tuningFreq":432,"masterChan":-1,"activeChan":3}}`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Engine.BlockSize)
	assert.Equal(t, 3, cfg.Engine.ActiveChan)
	assert.Equal(t, 432.0, cfg.Engine.TuningFreq)
	assert.Len(t, cfg.Devices, 1)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"syntax":  `{`,
		"master":  `{"engine":{"blockSize":1,"sampleRate":1,"tuningFreq":440,"masterChan":16}}`,
		"profile": `{"devices":[{"portName":"x","profile":"toaster"}]}`,
		"pot":     `{"pots":[{"kind":"knob","channel":0,"cc":200}]}`,
		"pot cc":  `{"pots":[{"kind":"knob","channel":0,"cc":-2}]}`,
	} {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		_, err := LoadFile(path)
		assert.Error(t, err, name)
	}
}

func TestFindDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddDevice(DeviceConfig{PortName: "keystation", Profile: ProfileKeyboard, Slot: -1})

	d := cfg.FindDevice("Keystation 49 MK3:Keystation 49 MK3 MIDI 1 20:0")
	require.NotNil(t, d)
	assert.Equal(t, ProfileKeyboard, d.Profile)
	assert.Nil(t, cfg.FindDevice("Midi Through Port-0"))

	assert.Len(t, cfg.AutoConnectDevices(), 1)
}
