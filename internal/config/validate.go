package config

import "fmt"

// Validate checks configuration correctness. It does not mutate the
// configuration; defaults are applied by Load.
func Validate(cfg *Config) error {
	pins := []struct {
		name  string
		value string
	}{
		{"panel.pins.clk", cfg.Panel.Pins.Clk},
		{"panel.pins.din", cfg.Panel.Pins.Din},
		{"panel.pins.cs", cfg.Panel.Pins.CS},
		{"panel.pins.dc", cfg.Panel.Pins.DC},
		{"panel.pins.rst", cfg.Panel.Pins.Rst},
		{"panel.pins.busy", cfg.Panel.Pins.Busy},
	}
	for _, p := range pins {
		if p.value == "" {
			return fmt.Errorf("config: %s is required", p.name)
		}
	}

	if cfg.Panel.BitDelayUs < 0 {
		return fmt.Errorf("config: panel.bit_delay_us must not be negative")
	}
	if cfg.Panel.BusyTimeoutMs < 0 {
		return fmt.Errorf("config: panel.busy_timeout_ms must not be negative")
	}

	switch cfg.Network.Mode {
	case "", "station", "access-point":
	default:
		return fmt.Errorf("config: network.mode must be \"station\" or \"access-point\", got %q", cfg.Network.Mode)
	}

	// LED channels are all-or-nothing so a partial wiring is caught
	// at startup instead of silently showing wrong colors.
	ledSet := 0
	for _, p := range []string{cfg.LED.R, cfg.LED.G, cfg.LED.B} {
		if p != "" {
			ledSet++
		}
	}
	if ledSet != 0 && ledSet != 3 {
		return fmt.Errorf("config: led requires all of r, g and b pins (or none)")
	}
	return nil
}
