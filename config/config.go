package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds selectable from configuration.
const (
	SourcePlayer   = "player"
	SourceScreen   = "screen"
	SourceRecorder = "recorder"
)

// Config holds runtime configuration for the capture pipeline and preview.
// Fields may be loaded from a JSON or YAML file and overridden by
// command-line flags.
type Config struct {
	Debug    bool   `json:"debug" yaml:"debug"`
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Source picks the capture source: player (pull), screen (snapshot)
	// or recorder (push).
	Source string `json:"source" yaml:"source"`

	// Pacing
	Pacing         string `json:"pacing" yaml:"pacing"`
	IntervalMicros int    `json:"interval_us" yaml:"interval_us"`
	LeewayMicros   int    `json:"leeway_us" yaml:"leeway_us"`
	RefreshHz      int    `json:"refresh_hz" yaml:"refresh_hz"`
	FrameRate      int    `json:"frame_rate" yaml:"frame_rate"`

	// Pull source / player
	MediaDir     string `json:"media_dir" yaml:"media_dir"`
	Loop         bool   `json:"loop" yaml:"loop"`
	MaxDimension int    `json:"max_dimension" yaml:"max_dimension"`
	// SuspendTimeoutMs pauses pacing after this long without new media.
	// Zero disables suspension.
	SuspendTimeoutMs int `json:"suspend_timeout_ms" yaml:"suspend_timeout_ms"`

	// Snapshot source
	PixelFormat string `json:"pixel_format" yaml:"pixel_format"`
	PoolSize    int    `json:"pool_size" yaml:"pool_size"`

	// Screen region; a zero rectangle means the whole primary screen.
	SelectionX int `json:"selection_x" yaml:"selection_x"`
	SelectionY int `json:"selection_y" yaml:"selection_y"`
	SelectionW int `json:"selection_w" yaml:"selection_w"`
	SelectionH int `json:"selection_h" yaml:"selection_h"`

	// Preview
	Gravity      string `json:"gravity" yaml:"gravity"`
	WindowWidth  int    `json:"window_width" yaml:"window_width"`
	WindowHeight int    `json:"window_height" yaml:"window_height"`

	StatsIntervalSec int `json:"stats_interval_sec" yaml:"stats_interval_sec"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:            false,
		LogLevel:         "info",
		Source:           SourcePlayer,
		Pacing:           "display",
		IntervalMicros:   33333,
		LeewayMicros:     1000,
		RefreshHz:        60,
		FrameRate:        30,
		Loop:             true,
		MaxDimension:     960,
		SuspendTimeoutMs: 1000,
		PixelFormat:      "BGRA",
		PoolSize:         4,
		Gravity:          "aspect",
		WindowWidth:      800,
		WindowHeight:     600,
		StatsIntervalSec: 5,
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Source) {
	case SourcePlayer, SourceScreen, SourceRecorder:
		c.Source = strings.ToLower(c.Source)
	default:
		c.Source = SourcePlayer
	}
	switch strings.ToLower(c.Pacing) {
	case "display", "interval":
		c.Pacing = strings.ToLower(c.Pacing)
	default:
		c.Pacing = "display"
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = "info"
	}
	if c.IntervalMicros <= 0 {
		c.IntervalMicros = 33333
	}
	if c.LeewayMicros < 0 {
		c.LeewayMicros = 0
	}
	if c.RefreshHz <= 0 || c.RefreshHz > 480 {
		c.RefreshHz = 60
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 30
	}
	if c.FrameRate > c.RefreshHz {
		c.FrameRate = c.RefreshHz
	}
	if c.MaxDimension < 16 {
		c.MaxDimension = 960
	}
	if c.SuspendTimeoutMs < 0 {
		c.SuspendTimeoutMs = 0
	}
	switch strings.ToUpper(c.PixelFormat) {
	case "BGRA", "ARGB":
		c.PixelFormat = strings.ToUpper(c.PixelFormat)
	default:
		c.PixelFormat = "BGRA"
	}
	if c.PoolSize < 0 {
		c.PoolSize = 0
	}
	if c.PoolSize > 32 {
		c.PoolSize = 32
	}
	if c.SelectionW < 0 || c.SelectionH < 0 {
		c.SelectionX, c.SelectionY, c.SelectionW, c.SelectionH = 0, 0, 0, 0
	}
	switch strings.ToLower(c.Gravity) {
	case "aspect", "fill", "resize":
		c.Gravity = strings.ToLower(c.Gravity)
	default:
		c.Gravity = "aspect"
	}
	if c.WindowWidth < 160 {
		c.WindowWidth = 800
	}
	if c.WindowHeight < 120 {
		c.WindowHeight = 600
	}
	if c.StatsIntervalSec <= 0 {
		c.StatsIntervalSec = 5
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load attempts to read configuration from path, as YAML for .yaml/.yml
// files and JSON otherwise. If the file does not exist it returns
// DefaultConfig(). On a decode error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	}
	if err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to path, in the format its extension selects.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
