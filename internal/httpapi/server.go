// Package httpapi exposes the panel, the status LED and the saved-image
// store over HTTP. Bodies are small JSON documents except for the two
// image ingest paths, which carry raw frame bytes (single-shot) or
// ASCII hex (streamed chunks).
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"inkframe/internal/device"
	"inkframe/internal/frame"
	"inkframe/internal/ingest"
	"inkframe/internal/store"
)

// Panel is the debug/maintenance surface of the display driver.
type Panel interface {
	Init() error
	FillSolid(c frame.Color) error
	TestPattern() error
	Sleep() error
}

// Server routes HTTP requests to the device.
type Server struct {
	dev   *device.Context
	ing   *ingest.Ingestor
	panel Panel
	store *store.Store // nil when storage is absent
	led   *device.LED  // nil when no LED is wired
}

// New builds the HTTP adapter. store and led may be nil.
func New(dev *device.Context, ing *ingest.Ingestor, panel Panel, st *store.Store, led *device.LED) *Server {
	return &Server{dev: dev, ing: ing, panel: panel, store: st, led: led}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/display", s.handleDisplay)
	mux.HandleFunc("POST /api/stream/start", s.handleStreamStart)
	mux.HandleFunc("POST /api/stream/chunk", s.handleStreamChunk)
	mux.HandleFunc("POST /api/stream/end", s.handleStreamEnd)
	mux.HandleFunc("GET /api/images", s.handleImageList)
	mux.HandleFunc("POST /api/images/{name}/display", s.handleImageDisplay)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/led", s.handleLED)
	mux.HandleFunc("POST /api/panel/clear", s.handlePanelClear)
	mux.HandleFunc("POST /api/panel/test", s.handlePanelTest)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// fail maps ingest/store errors onto HTTP statuses.
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, "device busy")
	case errors.Is(err, ingest.ErrInvalidSize):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrNoSession):
		writeError(w, http.StatusConflict, "no transfer in progress")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "image not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleDisplay is the single-shot path: the request body is one raw
// panel-native frame, exact length required.
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, frame.FrameBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	if err := s.ing.Display(body); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "displayed"})
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ing.Start(r.URL.Query().Get("save")); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "receiving"})
}

func (s *Server) handleStreamChunk(w http.ResponseWriter, r *http.Request) {
	// Hex doubles the size, plus slack for stray whitespace.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2*frame.FrameBytes+1024))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	received, err := s.ing.Chunk(body)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"received": received})
}

func (s *Server) handleStreamEnd(w http.ResponseWriter, r *http.Request) {
	received, padded, err := s.ing.End()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"received": received, "padded": padded})
}

func (s *Server) handleImageList(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.store != nil {
		var err error
		if names, err = s.store.List(); err != nil {
			fail(w, err)
			return
		}
		if names == nil {
			names = []string{}
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"images": names})
}

func (s *Server) handleImageDisplay(w http.ResponseWriter, r *http.Request) {
	if err := s.ing.DisplayStored(r.PathValue("name")); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "displayed"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"busy":      s.dev.Busy(),
		"streaming": s.ing.InProgress(),
		"mode":      s.dev.Mode.String(),
		"address":   s.dev.Address,
		"ssid":      s.dev.SSID,
	})
}

// ledRequest accepts either a named color, explicit RGB values, or a
// state change ("on", "off", "toggle").
type ledRequest struct {
	Color *string `json:"color"`
	R     *int    `json:"r"`
	G     *int    `json:"g"`
	B     *int    `json:"b"`
	State *string `json:"state"`
}

var ledColors = map[string][3]int{
	"black":  {0, 0, 0},
	"white":  {255, 255, 255},
	"red":    {255, 0, 0},
	"green":  {0, 255, 0},
	"blue":   {0, 0, 255},
	"yellow": {255, 255, 0},
}

func (s *Server) handleLED(w http.ResponseWriter, r *http.Request) {
	if s.led == nil {
		writeError(w, http.StatusNotFound, "led not configured")
		return
	}
	var req ledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "parsing body: "+err.Error())
		return
	}
	var err error
	switch {
	case req.State != nil:
		switch *req.State {
		case "on":
			err = s.led.On()
		case "off":
			err = s.led.Off()
		case "toggle":
			err = s.led.Toggle()
		default:
			writeError(w, http.StatusBadRequest, "state must be on, off or toggle")
			return
		}
	case req.Color != nil:
		rgb, ok := ledColors[*req.Color]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown color "+*req.Color)
			return
		}
		err = s.led.SetRGB(rgb[0], rgb[1], rgb[2])
	case req.R != nil || req.G != nil || req.B != nil:
		var rv, gv, bv int
		if req.R != nil {
			rv = *req.R
		}
		if req.G != nil {
			gv = *req.G
		}
		if req.B != nil {
			bv = *req.B
		}
		err = s.led.SetRGB(rv, gv, bv)
	default:
		writeError(w, http.StatusBadRequest, "missing color, rgb or state")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withPanel runs one maintenance operation under the busy flag with the
// panel woken up first and put back to sleep after.
func (s *Server) withPanel(w http.ResponseWriter, op func() error) {
	if !s.dev.TryAcquire() {
		writeError(w, http.StatusServiceUnavailable, "device busy")
		return
	}
	defer s.dev.Release()
	if err := s.panel.Init(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := op(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.panel.Sleep(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePanelClear(w http.ResponseWriter, r *http.Request) {
	c := frame.White
	if name := r.URL.Query().Get("color"); name != "" {
		var err error
		if c, err = frame.ParseColor(name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	s.withPanel(w, func() error { return s.panel.FillSolid(c) })
}

func (s *Server) handlePanelTest(w http.ResponseWriter, r *http.Request) {
	s.withPanel(w, func() error { return s.panel.TestPattern() })
}
