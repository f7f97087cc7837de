package config

import (
	"fmt"
	"regexp"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
	"github.com/slaclab/pydm-pva-widgets/modules/processors"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateSource(&cfg.Source); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := validateDisplay(&cfg.Display); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	if err := validateSnapshot(&cfg.Snapshot); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if cfg.MQTT.Enabled() {
		if cfg.MQTT.Topics.Events == "" {
			cfg.MQTT.Topics.Events = fmt.Sprintf("ntview/events/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("ntview/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Status == "" {
			cfg.MQTT.Topics.Status = fmt.Sprintf("ntview/status/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"events":  0,
				"control": 1,
				"status":  0,
			}
		}
		for topic, qos := range cfg.MQTT.QoS {
			if qos > 2 {
				return fmt.Errorf("mqtt.qos.%s must be 0, 1 or 2, got %d", topic, qos)
			}
		}
	}

	return nil
}

func validateSource(s *SourceConfig) error {
	if s.Kind == "" {
		s.Kind = "synthetic"
	}

	switch s.Kind {
	case "synthetic":
		if s.Width == 0 {
			s.Width = 320
		}
		if s.Height == 0 {
			s.Height = 240
		}
		if s.Width < 0 || s.Height < 0 {
			return fmt.Errorf("width and height must be > 0")
		}
		if s.ColorMode == "" {
			s.ColorMode = "Mono"
		}
		if _, err := ntimage.ParseColorMode(s.ColorMode); err != nil {
			return err
		}
		if s.SampleType == "" {
			s.SampleType = "uint16"
		}
		if _, err := ntimage.ParseSampleType(s.SampleType); err != nil {
			return err
		}

	case "replay":
		if s.Path == "" {
			return fmt.Errorf("path is required for replay")
		}

	case "gstreamer":
		// empty pipeline selects the built-in test pattern
		if s.ReconnectRetries < 0 {
			return fmt.Errorf("reconnect_retries must be >= 0")
		}

	default:
		return fmt.Errorf("unknown kind %q (must be synthetic, replay or gstreamer)", s.Kind)
	}

	if s.Kind != "gstreamer" {
		if s.RateHz == 0 {
			s.RateHz = 10
		}
		if s.RateHz < 0 {
			return fmt.Errorf("rate_hz must be > 0")
		}
	}
	return nil
}

func validateDisplay(d *DisplayConfig) error {
	if d.MaxRedrawRate == nil {
		rate := ntimage.DefaultMaxRedrawRate
		d.MaxRedrawRate = &rate
	}
	if *d.MaxRedrawRate <= 0 {
		return fmt.Errorf("max_redraw_rate must be > 0, got %d", *d.MaxRedrawRate)
	}
	if _, err := ntimage.ParseNormalization(d.Normalization); err != nil {
		return err
	}
	if _, err := ntimage.ParseScaler(d.Scaler); err != nil {
		return err
	}
	if d.SampleBits < 0 || d.SampleBits > 32 {
		return fmt.Errorf("sample_bits must be within 0..32")
	}
	if d.Viewport.Width < 0 || d.Viewport.Height < 0 {
		return fmt.Errorf("viewport must not be negative")
	}
	for i, p := range d.Processors {
		if _, err := processors.ByName(p.Name, p.Params); err != nil {
			return fmt.Errorf("processors[%d]: %w", i, err)
		}
	}
	// color_map is checked against the registry once color_map_file is loaded
	return nil
}

func validateSnapshot(s *SnapshotConfig) error {
	if s.Dir == "" {
		return nil
	}
	if s.Format == "" {
		s.Format = "png"
	}
	switch s.Format {
	case "png", "bmp", "tiff":
	default:
		return fmt.Errorf("format must be png, bmp or tiff, got %q", s.Format)
	}
	if s.Every <= 0 {
		s.Every = 1
	}
	return nil
}
