// Command inkframed drives a 7.3" six-color e-paper panel over
// bit-banged GPIO and serves the HTTP API remote hosts push rendered
// frames to.
package main

import (
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"inkframe/internal/bus"
	"inkframe/internal/config"
	"inkframe/internal/device"
	"inkframe/internal/epd"
	"inkframe/internal/frame"
	"inkframe/internal/httpapi"
	"inkframe/internal/ingest"
	"inkframe/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: inkframed <config.yaml>")
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	if _, err := host.Init(); err != nil {
		log.Fatalf("periph host init failed: %v", err)
	}

	// ---- panel wiring ----

	b := &bus.Bus{
		SCK:   mustPin(cfg.Panel.Pins.Clk),
		DIN:   mustPin(cfg.Panel.Pins.Din),
		CS:    mustPin(cfg.Panel.Pins.CS),
		DC:    mustPin(cfg.Panel.Pins.DC),
		Delay: time.Duration(cfg.Panel.BitDelayUs) * time.Microsecond,
	}
	for _, line := range []struct {
		pin   gpio.PinOut
		level gpio.Level
	}{{b.SCK, gpio.Low}, {b.DIN, gpio.Low}, {b.CS, gpio.High}, {b.DC, gpio.Low}} {
		if err := line.pin.Out(line.level); err != nil {
			log.Fatalf("configuring bus pin %s: %v", line.pin, err)
		}
	}

	panel, err := epd.New(b, mustPin(cfg.Panel.Pins.Rst), mustPin(cfg.Panel.Pins.Busy), &epd.Opts{
		BusyTimeout: time.Duration(cfg.Panel.BusyTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("panel setup failed: %v", err)
	}

	// ---- optional capabilities ----

	var st *store.Store
	if cfg.Storage.Dir != "" {
		st, err = store.Open(cfg.Storage.Dir)
		if err != nil {
			log.Printf("storage unavailable, continuing without saves: %v", err)
			st = nil
		}
	}

	var led *device.LED
	if cfg.LED.R != "" {
		led = &device.LED{
			R: mustPin(cfg.LED.R),
			G: mustPin(cfg.LED.G),
			B: mustPin(cfg.LED.B),
		}
	}

	// ---- device state ----

	dev := &device.Context{
		Mode:    device.ModeStation,
		SSID:    cfg.Network.SSID,
		Address: localAddress(),
	}
	if cfg.Network.Mode == "access-point" {
		dev.Mode = device.ModeAccessPoint
	}

	drawBootScreen(dev, panel, st)

	// ---- serve ----

	ing := ingest.New(panel, dev, st)
	srv := httpapi.New(dev, ing, panel, st, led)

	log.Printf("inkframed listening on %s (mode=%s address=%s)", cfg.Listen, dev.Mode, dev.Address)
	log.Fatal(http.ListenAndServe(cfg.Listen, srv.Handler()))
}

// drawBootScreen renders the boot status screen unless the device came
// back up as a station with the same address as last boot, in which
// case the panel is left untouched to save a refresh cycle.
func drawBootScreen(dev *device.Context, panel *epd.Dev, st *store.Store) {
	lastAddr := ""
	if st != nil {
		lastAddr = st.LastAddress()
	}
	lines, draw := dev.BootScreen(lastAddr)
	if draw {
		if !dev.TryAcquire() {
			return
		}
		defer dev.Release()
		if err := panel.Init(); err != nil {
			log.Printf("boot screen init failed: %v", err)
			return
		}
		if err := panel.StreamFrame(frame.RenderText(lines)); err != nil {
			log.Printf("boot screen draw failed: %v", err)
			return
		}
		if err := panel.Sleep(); err != nil {
			log.Printf("boot screen sleep failed: %v", err)
			return
		}
	}
	if st != nil && dev.Mode == device.ModeStation && dev.Address != "" {
		if err := st.SetLastAddress(dev.Address); err != nil {
			log.Printf("recording address failed: %v", err)
		}
	}
}

func mustPin(name string) gpio.PinIO {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("GPIO pin %s not found", name)
	}
	return p
}

// localAddress returns the first non-loopback IPv4 address, or "" when
// the device has not acquired one.
func localAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
