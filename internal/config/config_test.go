package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullConfig = `
instance_id: beamline-7
shutdown_timeout_s: 3
source:
  kind: replay
  path: /data/run42.ntnd
  rate_hz: 25
  loop: true
display:
  max_redraw_rate: 15
  color_map: Jet
  normalization: auto_range
  sample_bits: 12
  scaler: bilinear
  viewport: {width: 640, height: 480}
  reject_unsupported: true
  processors:
    - name: median
      params: {size: 5}
    - name: flip_vertical
snapshot:
  dir: /tmp/snaps
  format: tiff
  every: 10
mqtt:
  broker: tcp://localhost:1883
health:
  addr: ":8080"
`

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Source.Kind != "replay" || !cfg.Source.Loop || cfg.Source.RateHz != 25 {
		t.Errorf("source = %+v", cfg.Source)
	}
	d := cfg.Display
	if d.MaxRedrawRate == nil || *d.MaxRedrawRate != 15 || d.ColorMap != "Jet" || d.SampleBits != 12 || !d.RejectUnsupported {
		t.Errorf("display = %+v", d)
	}
	if len(d.Processors) != 2 || d.Processors[0].Params["size"] != 5 {
		t.Errorf("processors = %+v", d.Processors)
	}
	if cfg.Snapshot.Format != "tiff" || cfg.Snapshot.Every != 10 {
		t.Errorf("snapshot = %+v", cfg.Snapshot)
	}

	// defaults derived from instance_id
	if cfg.MQTT.Topics.Control != "ntview/control/beamline-7" {
		t.Errorf("control topic = %q", cfg.MQTT.Topics.Control)
	}
	if cfg.MQTT.QoS["control"] != 1 {
		t.Errorf("qos = %v", cfg.MQTT.QoS)
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{InstanceID: "lab"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.ShutdownTimeoutS != 5 {
		t.Errorf("shutdown timeout = %d", cfg.ShutdownTimeoutS)
	}
	s := cfg.Source
	if s.Kind != "synthetic" || s.Width != 320 || s.Height != 240 || s.ColorMode != "Mono" || s.SampleType != "uint16" || s.RateHz != 10 {
		t.Errorf("source defaults = %+v", s)
	}
	if r := cfg.Display.MaxRedrawRate; r == nil || *r != 30 {
		t.Errorf("max_redraw_rate = %v", r)
	}
	if cfg.MQTT.Enabled() || cfg.MQTT.Topics.Events != "" {
		t.Errorf("mqtt enabled without broker: %+v", cfg.MQTT)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing instance", func(c *Config) { c.InstanceID = "" }, "instance_id is required"},
		{"bad instance", func(c *Config) { c.InstanceID = "Lab 7" }, "instance_id must match"},
		{"unknown kind", func(c *Config) { c.Source.Kind = "epics" }, "unknown kind"},
		{"replay without path", func(c *Config) { c.Source.Kind = "replay" }, "path is required"},
		{"negative rate", func(c *Config) { c.Source.RateHz = -1 }, "rate_hz"},
		{"bad color mode", func(c *Config) { c.Source.ColorMode = "YUV" }, "color mode"},
		{"bad sample type", func(c *Config) { c.Source.SampleType = "float32" }, "sample type"},
		{"negative redraw", func(c *Config) { c.Display.MaxRedrawRate = intPtr(-2) }, "max_redraw_rate"},
		{"zero redraw", func(c *Config) { c.Display.MaxRedrawRate = intPtr(0) }, "max_redraw_rate"},
		{"bad normalization", func(c *Config) { c.Display.Normalization = "log" }, "normalization"},
		{"bad scaler", func(c *Config) { c.Display.Scaler = "lanczos" }, "scaler"},
		{"sample bits", func(c *Config) { c.Display.SampleBits = 64 }, "sample_bits"},
		{"bad processor", func(c *Config) {
			c.Display.Processors = []ProcessorConfig{{Name: "sharpen"}}
		}, "processors[0]"},
		{"bad snapshot format", func(c *Config) { c.Snapshot = SnapshotConfig{Dir: "x", Format: "gif"} }, "format"},
		{"negative reconnect", func(c *Config) {
			c.Source = SourceConfig{Kind: "gstreamer", ReconnectRetries: -1}
		}, "reconnect_retries"},
		{"bad qos", func(c *Config) {
			c.MQTT.Broker = "tcp://x:1883"
			c.MQTT.QoS = map[string]byte{"events": 3}
		}, "mqtt.qos.events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{InstanceID: "lab"}
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func intPtr(v int) *int { return &v }

// TestParseExplicitZeroRedrawRate distinguishes an omitted rate from 0.
func TestParseExplicitZeroRedrawRate(t *testing.T) {
	if _, err := Parse([]byte("instance_id: lab\ndisplay: {max_redraw_rate: 0}\n")); err == nil ||
		!strings.Contains(err.Error(), "max_redraw_rate must be > 0") {
		t.Errorf("explicit zero rate: err = %v", err)
	}

	cfg, err := Parse([]byte("instance_id: lab\ndisplay: {color_map: Jet}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r := cfg.Display.MaxRedrawRate; r == nil || *r != 30 {
		t.Errorf("omitted rate = %v, want default 30", r)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ntviewd.yaml")
	if err := os.WriteFile(path, []byte("instance_id: lab\nsource: {kind: gstreamer}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.Kind != "gstreamer" || cfg.Source.RateHz != 0 {
		t.Errorf("source = %+v", cfg.Source)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}
