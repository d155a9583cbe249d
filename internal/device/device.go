// Package device holds process-wide device state: the single busy flag
// guarding all panel operations, the network mode the device booted
// into, and the status LED side channel.
package device

import (
	"fmt"
	"sync"
)

// Mode says how the device is reachable on the network.
type Mode int

const (
	// ModeStation means the device joined a configured network.
	ModeStation Mode = iota
	// ModeAccessPoint means association failed and the device is
	// serving its own setup network.
	ModeAccessPoint
)

func (m Mode) String() string {
	if m == ModeAccessPoint {
		return "access-point"
	}
	return "station"
}

// Context is the device-wide state shared by every handler. The busy
// flag is the sole mutual exclusion over the panel: a handler must
// TryAcquire before touching it and Release on every exit path.
type Context struct {
	mu   sync.Mutex
	busy bool

	Mode    Mode
	Address string
	SSID    string
}

// TryAcquire attempts to claim the panel. It returns false without
// blocking if another operation is already in flight.
func (c *Context) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

// Release clears the busy flag. Calling it while not busy is a bug.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy {
		panic("device: release without acquire")
	}
	c.busy = false
}

// Busy reports whether a panel operation is in flight.
func (c *Context) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// BootScreen decides what, if anything, to draw at boot. A station
// whose address is unchanged from the previous boot keeps its screen
// untouched to avoid a needless refresh; otherwise the returned lines
// describe how to reach the device.
func (c *Context) BootScreen(lastAddress string) (lines [4]string, draw bool) {
	if c.Mode == ModeAccessPoint {
		return [4]string{
			"setup mode",
			"join network: " + c.SSID,
			"then open",
			"http://192.168.4.1/",
		}, true
	}
	if c.Address != "" && c.Address == lastAddress {
		return lines, false
	}
	return [4]string{
		"connected",
		c.SSID,
		c.Address,
		fmt.Sprintf("http://%s/", c.Address),
	}, true
}
