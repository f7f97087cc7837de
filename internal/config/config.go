package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ntviewd configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Source           SourceConfig   `yaml:"source"`
	Display          DisplayConfig  `yaml:"display"`
	Snapshot         SnapshotConfig `yaml:"snapshot"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Health           HealthConfig   `yaml:"health"`
}

// SourceConfig selects where records come from
type SourceConfig struct {
	Kind       string  `yaml:"kind"`        // synthetic, replay, gstreamer
	Path       string  `yaml:"path"`        // replay: recording file
	Pipeline   string  `yaml:"pipeline"`    // gstreamer: gst-launch description
	RateHz     float64 `yaml:"rate_hz"`     // synthetic, replay
	Loop       bool    `yaml:"loop"`        // replay
	ColorMode  string  `yaml:"color_mode"`  // synthetic: Mono, RGB1, RGB2, RGB3
	SampleType string  `yaml:"sample_type"` // synthetic: uint8, int8, uint16, ...
	Width      int     `yaml:"width"`       // synthetic
	Height     int     `yaml:"height"`      // synthetic

	// ReconnectRetries enables pipeline restarts after network errors
	// (gstreamer only; 0 disables).
	ReconnectRetries int `yaml:"reconnect_retries"`
}

// DisplayConfig maps onto ntimage.Config
type DisplayConfig struct {
	MaxRedrawRate     *int              `yaml:"max_redraw_rate"` // nil selects the default
	ColorMap          string            `yaml:"color_map"`
	ColorMapFile      string            `yaml:"color_map_file"` // extra maps, YAML
	Normalization     string            `yaml:"normalization"`  // full_scale, auto_range
	SampleBits        int               `yaml:"sample_bits"`
	Scaler            string            `yaml:"scaler"` // nearest, approx_bilinear, bilinear, catmull_rom
	Viewport          ViewportConfig    `yaml:"viewport"`
	RejectUnsupported bool              `yaml:"reject_unsupported"`
	RedrawOnResize    bool              `yaml:"redraw_on_resize"`
	Processors        []ProcessorConfig `yaml:"processors"`
}

// ViewportConfig is the initial display area
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ProcessorConfig names one stock frame processor
type ProcessorConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// SnapshotConfig controls writing displayed bitmaps to disk
type SnapshotConfig struct {
	Dir    string `yaml:"dir"`    // empty disables snapshots
	Format string `yaml:"format"` // png, bmp, tiff
	Every  int    `yaml:"every"`  // keep every Nth bitmap
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker string          `yaml:"broker"` // empty disables MQTT
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Events  string `yaml:"events"`
	Control string `yaml:"control"`
	Status  string `yaml:"status"`
}

// HealthConfig configures the HTTP health endpoint
type HealthConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Enabled reports whether an MQTT broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
