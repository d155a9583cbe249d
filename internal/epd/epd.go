// Package epd drives the 7.3" six-color e-paper panel.
//
// The driver owns the panel command protocol: the vendor-mandated
// initialization sequence, the busy-line handshake, frame streaming and
// the deep-sleep teardown. Bytes reach the panel through a Transport,
// which in production is the bit-banged GPIO bus and in tests a recorder.
//
// The panel moves through Uninitialized → Initialized (after Init) →
// Transmitting (between BeginFrame and FinishFrame) → Initialized →
// Asleep (after Sleep). Every method except Reset and Init requires an
// initialized panel; that is a caller contract, not something the driver
// re-checks.
package epd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"

	"inkframe/internal/frame"
)

// Panel command codes.
const (
	panelSetting      byte = 0x00
	powerSetting      byte = 0x01
	powerOn           byte = 0x04
	boosterSoftStart1 byte = 0x05
	boosterSoftStart2 byte = 0x06
	deepSleep         byte = 0x07
	boosterSoftStart3 byte = 0x08
	dataStart         byte = 0x10
	displayRefresh    byte = 0x12
	pllControl        byte = 0x30
	temperatureSensor byte = 0x41
	vcomDataInterval  byte = 0x50
	resolutionSetting byte = 0x61
	vcmDCSetting      byte = 0x84
	powerSaving       byte = 0xE3
)

// initSequence is the vendor-mandated power-up programming of the panel
// controller. The values come from the panel datasheet and must be sent
// byte-for-byte in this order.
var initSequence = []struct {
	cmd  byte
	data []byte
}{
	{powerSetting, []byte{0x3F, 0x00, 0x32, 0x2A, 0x0E, 0x2A}},
	{panelSetting, []byte{0x5F, 0x69}},
	{boosterSoftStart1, []byte{0x40, 0x1F, 0x1F, 0x2C}},
	{boosterSoftStart2, []byte{0x6F, 0x1F, 0x16, 0x25}},
	{boosterSoftStart3, []byte{0x6F, 0x1F, 0x1F, 0x22}},
	{pllControl, []byte{0x02}},
	{vcomDataInterval, []byte{0x37}},
	{resolutionSetting, []byte{0x03, 0x20, 0x01, 0xE0}},
	{temperatureSensor, []byte{0x00}},
	{vcmDCSetting, []byte{0x01}},
	{powerSaving, []byte{0x2F}},
}

// Transport carries command and data bytes to the panel controller.
type Transport interface {
	WriteCommand(code byte) error
	WriteData(value byte) error
}

// Opts is the configuration for the panel driver.
type Opts struct {
	// BusyTimeout bounds every busy-line wait. After it elapses the
	// driver logs and proceeds as though the panel were ready, so a
	// disconnected panel degrades to a no-op instead of a hang.
	// Zero means DefaultBusyTimeout.
	BusyTimeout time.Duration
}

// DefaultBusyTimeout is generous: a full six-color refresh takes on the
// order of 20 seconds.
const DefaultBusyTimeout = 30 * time.Second

// Dev is the device handle for the panel.
type Dev struct {
	t    Transport
	rst  gpio.PinOut
	busy gpio.PinIO

	busyTimeout time.Duration
	remaining   int // bytes left in the open frame transfer

	// Injectable clock, so the busy-wait policy is testable without
	// real hardware or a 30 second test run.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a panel driver on the given transport. rst drives the
// panel reset line, busy reads the panel busy line (low while the
// controller is working, high when ready). The panel is not touched
// until Init is called.
func New(t Transport, rst gpio.PinOut, busy gpio.PinIO, opts *Opts) (*Dev, error) {
	if t == nil {
		return nil, errors.New("epd: transport is required")
	}
	if rst == nil || busy == nil {
		return nil, errors.New("epd: rst and busy pins are required")
	}
	// The previous boot may have left the pin as an output or ALT
	// function, which would make every Read garbage.
	if err := busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("epd: configuring busy pin as input: %w", err)
	}
	if opts == nil {
		opts = &Opts{}
	}
	timeout := opts.BusyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	}
	return &Dev{
		t:           t,
		rst:         rst,
		busy:        busy,
		busyTimeout: timeout,
		now:         time.Now,
		sleep:       time.Sleep,
	}, nil
}

// Reset pulses the panel reset line to force a clean power-on state
// regardless of what the controller was doing before.
func (d *Dev) Reset() error {
	if err := d.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: reset high: %w", err)
	}
	d.sleep(20 * time.Millisecond)
	if err := d.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd: reset low: %w", err)
	}
	d.sleep(2 * time.Millisecond)
	if err := d.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: reset high: %w", err)
	}
	d.sleep(20 * time.Millisecond)
	return nil
}

// Init resets the panel and programs the vendor initialization sequence,
// then powers the panel on and waits for it to settle.
func (d *Dev) Init() error {
	if err := d.Reset(); err != nil {
		return err
	}
	for _, step := range initSequence {
		if err := d.t.WriteCommand(step.cmd); err != nil {
			return fmt.Errorf("epd: init command %#02x: %w", step.cmd, err)
		}
		for _, b := range step.data {
			if err := d.t.WriteData(b); err != nil {
				return fmt.Errorf("epd: init data for %#02x: %w", step.cmd, err)
			}
		}
	}
	if err := d.t.WriteCommand(powerOn); err != nil {
		return fmt.Errorf("epd: power on: %w", err)
	}
	d.waitReady()
	return nil
}

// waitReady polls the busy line until the panel reports ready (high) or
// the timeout elapses. Timing out is deliberately non-fatal: the device
// must stay reachable even with a dead or disconnected panel, so the
// caller proceeds as though the panel had settled.
func (d *Dev) waitReady() {
	deadline := d.now().Add(d.busyTimeout)
	for d.busy.Read() == gpio.Low {
		if d.now().After(deadline) {
			log.Printf("epd: busy line not released within %v, continuing", d.busyTimeout)
			return
		}
		d.sleep(10 * time.Millisecond)
	}
}

// FrameBytes returns the exact byte count of one packed frame.
func (d *Dev) FrameBytes() int {
	return frame.FrameBytes
}

// BeginFrame opens a frame transfer by issuing the data-start command.
// Exactly FrameBytes bytes must follow through WriteFrame before
// FinishFrame commits the refresh.
func (d *Dev) BeginFrame() error {
	if err := d.t.WriteCommand(dataStart); err != nil {
		return fmt.Errorf("epd: data start: %w", err)
	}
	d.remaining = frame.FrameBytes
	return nil
}

// WriteFrame streams packed pixel bytes into the open transfer. Bytes
// beyond the frame size are silently dropped; the returned count is how
// many were accepted.
func (d *Dev) WriteFrame(p []byte) (int, error) {
	n := len(p)
	if n > d.remaining {
		n = d.remaining
	}
	for i, b := range p[:n] {
		if err := d.t.WriteData(b); err != nil {
			// Bytes before the failure reached the transport; they
			// must still count against the frame so a retry cannot
			// overrun it.
			d.remaining -= i
			return i, fmt.Errorf("epd: frame data: %w", err)
		}
	}
	d.remaining -= n
	return n, nil
}

// FinishFrame triggers the refresh and waits for the panel to complete
// it. The caller is responsible for having delivered a full frame.
func (d *Dev) FinishFrame() error {
	if err := d.t.WriteCommand(displayRefresh); err != nil {
		return fmt.Errorf("epd: refresh: %w", err)
	}
	if err := d.t.WriteData(0x00); err != nil {
		return fmt.Errorf("epd: refresh parameter: %w", err)
	}
	d.remaining = 0
	d.waitReady()
	return nil
}

// StreamFrame displays one full frame pulled from src. It reads exactly
// FrameBytes bytes; a source that runs dry early is a caller bug and
// surfaces as an error with the panel transfer left uncommitted.
func (d *Dev) StreamFrame(src io.Reader) error {
	if err := d.BeginFrame(); err != nil {
		return err
	}
	buf := make([]byte, 4096)
	for d.remaining > 0 {
		want := len(buf)
		if want > d.remaining {
			want = d.remaining
		}
		n, err := io.ReadFull(src, buf[:want])
		if err != nil {
			return fmt.Errorf("epd: frame source ended %d bytes short: %w", d.remaining-n, err)
		}
		if _, err := d.WriteFrame(buf[:n]); err != nil {
			return err
		}
	}
	return d.FinishFrame()
}

// FillSolid paints the whole panel in a single palette color.
func (d *Dev) FillSolid(c frame.Color) error {
	return d.StreamFrame(frame.NewFill(c))
}

// TestPattern displays the vendor color-bar pattern: six equal
// horizontal bands, one per palette color. The bands are encoded as the
// bare single-pixel code repeated per byte, not as a packed pair, which
// matches the vendor test sequence.
func (d *Dev) TestPattern() error {
	if err := d.BeginFrame(); err != nil {
		return err
	}
	band := make([]byte, frame.FrameBytes/len(frame.Palette))
	for _, c := range frame.Palette {
		for i := range band {
			band[i] = byte(c)
		}
		if _, err := d.WriteFrame(band); err != nil {
			return err
		}
	}
	return d.FinishFrame()
}

// Sleep puts the panel controller into deep sleep. Only Reset/Init wake
// it again.
func (d *Dev) Sleep() error {
	if err := d.t.WriteCommand(deepSleep); err != nil {
		return fmt.Errorf("epd: deep sleep: %w", err)
	}
	if err := d.t.WriteData(0xA5); err != nil {
		return fmt.Errorf("epd: deep sleep parameter: %w", err)
	}
	d.waitReady()
	return nil
}
