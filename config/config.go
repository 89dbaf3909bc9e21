package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Profile identifies how a physical device is handled
type Profile string

const (
	ProfileKeyboard   Profile = "keyboard"    // performance input on a DEV port
	ProfileLaunchpadX Profile = "launchpad-x" // controller on the CTRL ports, programmer mode
	ProfileController Profile = "controller"  // generic controller on the CTRL ports
)

// DeviceConfig binds a physical MIDI device to router ports
type DeviceConfig struct {
	PortName    string  `json:"portName"` // case-insensitive substring of the driver port name
	Profile     Profile `json:"profile"`
	AutoConnect bool    `json:"autoConnect"`
	Slot        int     `json:"slot"`             // DEV input 0..15, -1 picks the first free one
	Output      string  `json:"output,omitempty"` // router output fed to the device's out port
}

// PotConfig sets up one rotary control
type PotConfig struct {
	Kind    string `json:"kind"` // encoder | knob
	Channel int    `json:"channel"`
	CC      int    `json:"cc"` // -1 leaves the pot unbound
	Min     int32  `json:"min"`
	Max     int32  `json:"max"`
	Value   int32  `json:"value"`
	Step    int32  `json:"step,omitempty"`
}

// EngineConfig sizes the processing cycle and seeds the filter state
type EngineConfig struct {
	BlockSize    int     `json:"blockSize"`
	SampleRate   int     `json:"sampleRate"`
	RingSize     int     `json:"ringSize,omitempty"`
	QueueSize    int     `json:"queueSize,omitempty"`
	TuningFreq   float64 `json:"tuningFreq"`
	MasterChan   int     `json:"masterChan"`
	ActiveChan   int     `json:"activeChan"`
	SystemEvents bool    `json:"systemEvents"`
	CCAutoMode   bool    `json:"ccAutoMode"`
}

// UIConfig stores monitor preferences
type UIConfig struct {
	Palette   string `json:"palette,omitempty"` // GIMP .gpl file, empty for the built-in one
	RefreshMs int    `json:"refreshMs,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Devices []DeviceConfig `json:"devices,omitempty"`
	Pots    []PotConfig    `json:"pots,omitempty"`
	Engine  EngineConfig   `json:"engine"`
	UI      UIConfig       `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Devices: []DeviceConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Profile:     ProfileLaunchpadX,
				AutoConnect: true,
				Slot:        -1,
				Output:      "ctrl",
			},
		},
		Pots: []PotConfig{
			{Kind: "encoder", Channel: 0, CC: 7, Min: 0, Max: 127, Value: 100, Step: 1},
			{Kind: "encoder", Channel: 0, CC: 74, Min: 0, Max: 127, Value: 64, Step: 1},
		},
		Engine: EngineConfig{
			BlockSize:    256,
			SampleRate:   48000,
			TuningFreq:   440,
			MasterChan:   -1,
			ActiveChan:   -1,
			SystemEvents: true,
			CCAutoMode:   true,
		},
		UI: UIConfig{
			RefreshMs: 50,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-midirouter"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default location, or returns defaults if
// not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file. Fields missing from the file keep their
// default values.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the default location
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks ranges the router would reject later
func (c *Config) Validate() error {
	e := c.Engine
	if e.BlockSize <= 0 || e.SampleRate <= 0 {
		return errors.Errorf("engine: block size %d and sample rate %d must be positive", e.BlockSize, e.SampleRate)
	}
	if e.MasterChan < -1 || e.MasterChan > 15 {
		return errors.Errorf("engine: master channel %d out of range", e.MasterChan)
	}
	if e.ActiveChan < -1 || e.ActiveChan > 15 {
		return errors.Errorf("engine: active channel %d out of range", e.ActiveChan)
	}
	if e.TuningFreq <= 0 {
		return errors.Errorf("engine: tuning frequency %v must be positive", e.TuningFreq)
	}
	for i, d := range c.Devices {
		if d.PortName == "" {
			return errors.Errorf("device %d: empty port name", i)
		}
		if d.Slot < -1 || d.Slot > 15 {
			return errors.Errorf("device %q: slot %d out of range", d.PortName, d.Slot)
		}
		switch d.Profile {
		case ProfileKeyboard, ProfileLaunchpadX, ProfileController:
		default:
			return errors.Errorf("device %q: unknown profile %q", d.PortName, d.Profile)
		}
	}
	for i, p := range c.Pots {
		if p.Channel < 0 || p.Channel > 15 || p.CC < -1 || p.CC > 127 {
			return errors.Errorf("pot %d: channel %d cc %d out of range", i, p.Channel, p.CC)
		}
	}
	return nil
}

// FindDevice returns the device config whose port name matches name
func (c *Config) FindDevice(name string) *DeviceConfig {
	lname := strings.ToLower(name)
	for i := range c.Devices {
		if strings.Contains(lname, strings.ToLower(c.Devices[i].PortName)) {
			return &c.Devices[i]
		}
	}
	return nil
}

// AddDevice adds or updates a device config
func (c *Config) AddDevice(dev DeviceConfig) {
	for i := range c.Devices {
		if c.Devices[i].PortName == dev.PortName {
			c.Devices[i] = dev
			return
		}
	}
	c.Devices = append(c.Devices, dev)
}

// AutoConnectDevices returns devices with autoConnect enabled
func (c *Config) AutoConnectDevices() []DeviceConfig {
	var result []DeviceConfig
	for _, dev := range c.Devices {
		if dev.AutoConnect {
			result = append(result, dev)
		}
	}
	return result
}
