// Package ingest mediates between the HTTP producers and the panel:
// either one exact-length raw body, or a start/chunk/end sequence with
// hex-encoded payloads. Both paths converge on the same panel write
// sequence and are serialized through the device busy flag, so exactly
// one transfer is ever in flight.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"inkframe/internal/device"
	"inkframe/internal/frame"
	"inkframe/internal/store"
)

var (
	// ErrBusy signals that the panel is already claimed by another
	// operation. Fully recoverable by retrying later.
	ErrBusy = errors.New("ingest: device busy")
	// ErrNoSession signals Chunk or End without a preceding Start.
	ErrNoSession = errors.New("ingest: no transfer in progress")
	// ErrInvalidSize rejects single-shot payloads that are not exactly
	// one full frame.
	ErrInvalidSize = errors.New("ingest: payload must be exactly one frame")
)

// Panel is the consumer side of a transfer. Implemented by epd.Dev.
// The panel is left in deep sleep between transfers, so every transfer
// re-runs Init before streaming.
type Panel interface {
	Init() error
	BeginFrame() error
	WriteFrame(p []byte) (int, error)
	FinishFrame() error
	Sleep() error
	FrameBytes() int
}

// session tracks one in-progress chunked transfer.
type session struct {
	received int
	sink     io.WriteCloser // optional persistence entry, nil when not saving
	sinkName string
}

// Ingestor owns the transfer lifecycle. Storage is an optional
// capability: with a nil store, save requests are quietly ignored and
// read-back reports not-found.
type Ingestor struct {
	panel Panel
	dev   *device.Context
	store *store.Store

	mu   sync.Mutex
	sess *session

	// Mirrors sess != nil. The status path reads it without taking mu,
	// which End holds for the whole pad/refresh commit.
	streaming atomic.Bool
}

// New wires an ingestor to its panel, device context and optional
// store (nil when no storage is mounted).
func New(panel Panel, dev *device.Context, st *store.Store) *Ingestor {
	return &Ingestor{panel: panel, dev: dev, store: st}
}

// InProgress reports whether a chunked transfer is open. It never
// blocks, so status polling stays responsive during a commit.
func (g *Ingestor) InProgress() bool {
	return g.streaming.Load()
}

// Start opens a chunked transfer. saveName optionally names a
// persistence entry for the incoming frame; a name that sanitizes to
// nothing means no save, and a failed entry open is logged and skipped
// rather than failing the transfer. A Start while any panel operation
// is in flight is rejected without touching the existing session.
func (g *Ingestor) Start(saveName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess != nil {
		return ErrBusy
	}
	if !g.dev.TryAcquire() {
		return ErrBusy
	}
	if err := g.panel.Init(); err != nil {
		g.dev.Release()
		return err
	}
	if err := g.panel.BeginFrame(); err != nil {
		g.dev.Release()
		return err
	}
	sess := &session{}
	if clean := store.SanitizeName(saveName); clean != "" && g.store != nil {
		w, err := g.store.Create(clean)
		if err != nil {
			log.Printf("ingest: save to %s%s skipped: %v", clean, store.Ext, err)
		} else {
			sess.sink = w
			sess.sinkName = clean + store.Ext
		}
	}
	g.sess = sess
	g.streaming.Store(true)
	return nil
}

// Chunk decodes one hex payload and streams the bytes into the open
// transfer and, when saving, into the persistence entry. Decoding is
// lenient: digits are case-insensitive and anything that is not a hex
// digit decodes as zero. Bytes beyond one full frame are dropped.
// Returns the running total of bytes accepted so far.
func (g *Ingestor) Chunk(hexPayload []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess == nil {
		return 0, ErrNoSession
	}
	decoded := decodeHex(hexPayload)
	if remaining := g.panel.FrameBytes() - g.sess.received; len(decoded) > remaining {
		decoded = decoded[:remaining]
	}
	n, err := g.panel.WriteFrame(decoded)
	if err != nil {
		return g.sess.received, err
	}
	g.sess.received += n
	if g.sess.sink != nil {
		if _, err := g.sess.sink.Write(decoded[:n]); err != nil {
			log.Printf("ingest: writing %s failed, save abandoned: %v", g.sess.sinkName, err)
			g.sess.sink.Close()
			g.sess.sink = nil
		}
	}
	return g.sess.received, nil
}

// End finalizes the transfer: the persistence entry is closed with
// exactly the received bytes, the panel stream is padded to a full
// frame with white pixel pairs, and the refresh/sleep sequence runs.
// Note the asymmetry: padding goes to the panel only, never to the
// entry, so a short transfer leaves a short file (read-back pads again
// in memory). Returns the received and padded byte counts.
func (g *Ingestor) End() (received, padded int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess == nil {
		return 0, 0, ErrNoSession
	}
	sess := g.sess
	g.sess = nil
	g.streaming.Store(false)
	defer g.dev.Release()

	if sess.sink != nil {
		if cerr := sess.sink.Close(); cerr != nil {
			log.Printf("ingest: closing %s: %v", sess.sinkName, cerr)
		}
	}

	padded = g.panel.FrameBytes() - sess.received
	pad := make([]byte, 4096)
	for i := range pad {
		pad[i] = frame.WhitePair
	}
	for left := padded; left > 0; {
		chunk := pad
		if left < len(chunk) {
			chunk = chunk[:left]
		}
		n, werr := g.panel.WriteFrame(chunk)
		if werr != nil {
			return sess.received, padded, werr
		}
		left -= n
	}
	if err := g.panel.FinishFrame(); err != nil {
		return sess.received, padded, err
	}
	return sess.received, padded, g.panel.Sleep()
}

// Display is the single-shot path: one raw panel-native buffer shown in
// a single call. Unlike the chunked path there is no padding here; the
// caller controls the whole buffer up front, so anything but an exact
// frame is rejected before a single byte reaches the panel.
func (g *Ingestor) Display(buf []byte) error {
	if len(buf) != g.panel.FrameBytes() {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSize, len(buf), g.panel.FrameBytes())
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess != nil {
		return ErrBusy
	}
	if !g.dev.TryAcquire() {
		return ErrBusy
	}
	defer g.dev.Release()

	if err := g.panel.Init(); err != nil {
		return err
	}
	if err := g.panel.BeginFrame(); err != nil {
		return err
	}
	if _, err := g.panel.WriteFrame(buf); err != nil {
		return err
	}
	if err := g.panel.FinishFrame(); err != nil {
		return err
	}
	return g.panel.Sleep()
}

// DisplayStored loads a persistence entry and shows it through the
// single-shot path, white-padding any shortfall in memory (entries
// saved from short chunked transfers are shorter than a frame).
func (g *Ingestor) DisplayStored(name string) error {
	if g.store == nil {
		return store.ErrNotFound
	}
	data, err := g.store.ReadFrame(name)
	if err != nil {
		return err
	}
	size := g.panel.FrameBytes()
	if len(data) > size {
		data = data[:size]
	}
	for len(data) < size {
		data = append(data, frame.WhitePair)
	}
	return g.Display(data)
}

// decodeHex turns ASCII hex pairs into bytes. A trailing unpaired digit
// is ignored. Malformed digits decode as zero instead of failing; the
// producers on the other end of this protocol have always relied on
// that leniency.
func decodeHex(p []byte) []byte {
	out := make([]byte, 0, len(p)/2)
	for i := 0; i+1 < len(p); i += 2 {
		out = append(out, hexNibble(p[i])<<4|hexNibble(p[i+1]))
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
