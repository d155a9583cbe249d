// Package bus implements the bit-banged serial transport the panel is
// wired to: a write-only SPI-like bus with explicit clock, data, chip
// select and data/command select lines driven through periph.io GPIO.
package bus

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// DefaultBitDelay is the pause between line transitions. The panel
// controller needs only a few hundred nanoseconds of setup/hold time, so
// a couple of microseconds leaves comfortable margin.
const DefaultBitDelay = 2 * time.Microsecond

// Bus drives the four panel control lines. All transactions are
// write-only; the panel never clocks data back on this bus.
type Bus struct {
	SCK gpio.PinOut // serial clock
	DIN gpio.PinOut // serial data
	CS  gpio.PinOut // chip select, active low
	DC  gpio.PinOut // data/command select: low = command, high = data

	// Delay between line transitions. Zero means DefaultBitDelay.
	Delay time.Duration
}

func (b *Bus) delay() {
	d := b.Delay
	if d == 0 {
		d = DefaultBitDelay
	}
	time.Sleep(d)
}

// WriteByte clocks out one byte, most significant bit first. The data
// line is driven to the bit value before the rising clock edge and the
// clock is returned low after each bit.
func (b *Bus) WriteByte(value byte) error {
	for bit := 7; bit >= 0; bit-- {
		level := gpio.Low
		if value&(1<<uint(bit)) != 0 {
			level = gpio.High
		}
		if err := b.DIN.Out(level); err != nil {
			return err
		}
		b.delay()
		if err := b.SCK.Out(gpio.High); err != nil {
			return err
		}
		b.delay()
		if err := b.SCK.Out(gpio.Low); err != nil {
			return err
		}
	}
	return nil
}

// WriteCommand sends one command byte (DC low) in its own chip-select
// window.
func (b *Bus) WriteCommand(code byte) error {
	return b.write(code, gpio.Low)
}

// WriteData sends one data byte (DC high) in its own chip-select window.
func (b *Bus) WriteData(value byte) error {
	return b.write(value, gpio.High)
}

func (b *Bus) write(value byte, dc gpio.Level) error {
	if err := b.CS.Out(gpio.Low); err != nil {
		return err
	}
	if err := b.DC.Out(dc); err != nil {
		return err
	}
	if err := b.WriteByte(value); err != nil {
		return err
	}
	return b.CS.Out(gpio.High)
}
