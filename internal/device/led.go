package device

import "periph.io/x/conn/v3/gpio"

// LED is the tri-color status LED. It is a plain side channel with no
// interaction with the busy flag. Channel values are clamped to
// [0,255]; without PWM a channel is simply on for any non-zero value.
type LED struct {
	R, G, B gpio.PinOut

	r, g, b uint8
	on      bool
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// SetRGB sets the channel values and switches the LED on.
func (l *LED) SetRGB(r, g, b int) error {
	l.r, l.g, l.b = clamp(r), clamp(g), clamp(b)
	l.on = true
	return l.apply()
}

// On restores the last configured color, defaulting to white.
func (l *LED) On() error {
	if l.r == 0 && l.g == 0 && l.b == 0 {
		l.r, l.g, l.b = 255, 255, 255
	}
	l.on = true
	return l.apply()
}

// Off switches all channels off but keeps the configured color.
func (l *LED) Off() error {
	l.on = false
	return l.apply()
}

// Toggle flips the LED between on and off.
func (l *LED) Toggle() error {
	if l.on {
		return l.Off()
	}
	return l.On()
}

func (l *LED) apply() error {
	for _, ch := range []struct {
		pin gpio.PinOut
		v   uint8
	}{{l.R, l.r}, {l.G, l.g}, {l.B, l.b}} {
		if ch.pin == nil {
			continue
		}
		level := gpio.Low
		if l.on && ch.v > 0 {
			level = gpio.High
		}
		if err := ch.pin.Out(level); err != nil {
			return err
		}
	}
	return nil
}
