package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
listen: ":9090"
panel:
  pins:
    clk: GPIO11
    din: GPIO10
    cs: GPIO8
    dc: GPIO25
    rst: GPIO17
    busy: GPIO24
storage:
  dir: /var/lib/inkframe/images
network:
  ssid: homelab
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q, want :9090", cfg.Listen)
	}
	if cfg.Panel.BitDelayUs != 2 {
		t.Errorf("BitDelayUs = %d, want default 2", cfg.Panel.BitDelayUs)
	}
	if cfg.Panel.BusyTimeoutMs != 30000 {
		t.Errorf("BusyTimeoutMs = %d, want default 30000", cfg.Panel.BusyTimeoutMs)
	}
	if cfg.Panel.Pins.Busy != "GPIO24" {
		t.Errorf("Pins.Busy = %q, want GPIO24", cfg.Panel.Pins.Busy)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestLoadBadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "listen: [unclosed")); err == nil {
		t.Error("Load of malformed YAML should fail")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, validConfig))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing clk", func(c *Config) { c.Panel.Pins.Clk = "" }, true},
		{"missing busy", func(c *Config) { c.Panel.Pins.Busy = "" }, true},
		{"negative delay", func(c *Config) { c.Panel.BitDelayUs = -1 }, true},
		{"negative timeout", func(c *Config) { c.Panel.BusyTimeoutMs = -5 }, true},
		{"station mode", func(c *Config) { c.Network.Mode = "station" }, false},
		{"access point mode", func(c *Config) { c.Network.Mode = "access-point" }, false},
		{"bad mode", func(c *Config) { c.Network.Mode = "mesh" }, true},
		{"full led", func(c *Config) { c.LED = LEDConfig{R: "GPIO5", G: "GPIO6", B: "GPIO13"} }, false},
		{"partial led", func(c *Config) { c.LED = LEDConfig{R: "GPIO5"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
