// Package config loads and validates the daemon configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string `yaml:"listen"`

	Panel   PanelConfig   `yaml:"panel"`
	Storage StorageConfig `yaml:"storage"`
	LED     LEDConfig     `yaml:"led"`
	Network NetworkConfig `yaml:"network"`
}

// PanelConfig wires the panel control lines and timing.
type PanelConfig struct {
	Pins PanelPins `yaml:"pins"`

	// BitDelayUs is the pause between bus line transitions, in
	// microseconds.
	BitDelayUs int `yaml:"bit_delay_us"`

	// BusyTimeoutMs bounds every busy-line wait, in milliseconds.
	BusyTimeoutMs int `yaml:"busy_timeout_ms"`
}

// PanelPins names the GPIO lines by periph.io pin name (e.g. "GPIO11").
type PanelPins struct {
	Clk  string `yaml:"clk"`
	Din  string `yaml:"din"`
	CS   string `yaml:"cs"`
	DC   string `yaml:"dc"`
	Rst  string `yaml:"rst"`
	Busy string `yaml:"busy"`
}

// StorageConfig locates the saved-image directory. An empty dir
// disables the persistence capability.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// LEDConfig wires the optional status LED channels.
type LEDConfig struct {
	R string `yaml:"r"`
	G string `yaml:"g"`
	B string `yaml:"b"`
}

// NetworkConfig describes how the device is reachable. Association
// itself happens outside this process; the daemon only needs to know
// which mode it booted into and what to print on the boot screen.
type NetworkConfig struct {
	// Mode is "station" or "access-point". Empty means station.
	Mode string `yaml:"mode"`
	// SSID is the joined (station) or served (access-point) network.
	SSID string `yaml:"ssid"`
}

// Load reads a YAML configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Panel.BitDelayUs == 0 {
		cfg.Panel.BitDelayUs = 2
	}
	if cfg.Panel.BusyTimeoutMs == 0 {
		cfg.Panel.BusyTimeoutMs = 30000
	}
}
