package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inkframe/internal/device"
	"inkframe/internal/frame"
	"inkframe/internal/ingest"
	"inkframe/internal/store"
)

// fakePanel satisfies both the ingest transfer contract and the debug
// surface used by the panel endpoints.
type fakePanel struct {
	size      int
	remaining int
	written   bytes.Buffer
	filled    []frame.Color
	patterns  int
}

func (p *fakePanel) Init() error { return nil }
func (p *fakePanel) BeginFrame() error {
	p.remaining = p.size
	return nil
}
func (p *fakePanel) WriteFrame(b []byte) (int, error) {
	n := len(b)
	if n > p.remaining {
		n = p.remaining
	}
	p.written.Write(b[:n])
	p.remaining -= n
	return n, nil
}
func (p *fakePanel) FinishFrame() error            { return nil }
func (p *fakePanel) Sleep() error                  { return nil }
func (p *fakePanel) FrameBytes() int               { return p.size }
func (p *fakePanel) FillSolid(c frame.Color) error { p.filled = append(p.filled, c); return nil }
func (p *fakePanel) TestPattern() error            { p.patterns++; return nil }

type testServer struct {
	*httptest.Server
	panel *fakePanel
	dev   *device.Context
	store *store.Store
}

func newTestServer(t *testing.T, frameSize int) *testServer {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	panel := &fakePanel{size: frameSize}
	dev := &device.Context{Mode: device.ModeStation, Address: "10.0.0.5", SSID: "lab"}
	ing := ingest.New(panel, dev, st)
	srv := New(dev, ing, panel, st, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, panel: panel, dev: dev, store: st}
}

func post(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestSingleShotDisplay(t *testing.T) {
	ts := newTestServer(t, 8)

	resp := post(t, ts.URL+"/api/display", make([]byte, 8))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ts.panel.written.Len() != 8 {
		t.Errorf("panel received %d bytes, want 8", ts.panel.written.Len())
	}
}

func TestSingleShotWrongSizeRejected(t *testing.T) {
	ts := newTestServer(t, 8)

	for _, size := range []int{0, 7, 9} {
		resp := post(t, ts.URL+"/api/display", make([]byte, size))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("size %d: status = %d, want 400", size, resp.StatusCode)
		}
	}
	if ts.panel.written.Len() != 0 {
		t.Errorf("rejected requests wrote %d bytes to the panel", ts.panel.written.Len())
	}
}

func TestStreamedTransfer(t *testing.T) {
	ts := newTestServer(t, 8)

	resp := post(t, ts.URL+"/api/stream/start?save=My%20Photo%21", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}

	resp = post(t, ts.URL+"/api/stream/chunk", []byte("00112233"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chunk status = %d, want 200", resp.StatusCode)
	}
	var chunk struct {
		Received int `json:"received"`
	}
	decode(t, resp, &chunk)
	if chunk.Received != 4 {
		t.Errorf("received = %d, want 4", chunk.Received)
	}

	resp = post(t, ts.URL+"/api/stream/end", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want 200", resp.StatusCode)
	}
	var end struct {
		Received int `json:"received"`
		Padded   int `json:"padded"`
	}
	decode(t, resp, &end)
	if end.Received != 4 || end.Padded != 4 {
		t.Errorf("end = %+v, want received 4 padded 4", end)
	}

	names, err := ts.store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "MyPhoto" {
		t.Errorf("saved entries = %v, want [MyPhoto]", names)
	}
}

func TestStreamStartWhileBusy(t *testing.T) {
	ts := newTestServer(t, 8)

	if resp := post(t, ts.URL+"/api/stream/start", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/stream/start", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("second start status = %d, want 503", resp.StatusCode)
	}
	// The single-shot path is locked out too.
	if resp := post(t, ts.URL+"/api/display", make([]byte, 8)); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("display while streaming status = %d, want 503", resp.StatusCode)
	}
}

func TestChunkWithoutSession(t *testing.T) {
	ts := newTestServer(t, 8)
	if resp := post(t, ts.URL+"/api/stream/chunk", []byte("00")); resp.StatusCode != http.StatusConflict {
		t.Errorf("chunk status = %d, want 409", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/stream/end", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("end status = %d, want 409", resp.StatusCode)
	}
}

func TestImageListAndDisplay(t *testing.T) {
	ts := newTestServer(t, 8)

	w, err := ts.store.Create("sunset")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Write([]byte{0xAB, 0xCD})
	w.Close()

	resp, err := http.Get(ts.URL + "/api/images")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var list struct {
		Images []string `json:"images"`
	}
	decode(t, resp, &list)
	if len(list.Images) != 1 || list.Images[0] != "sunset" {
		t.Errorf("images = %v, want [sunset]", list.Images)
	}

	if resp := post(t, ts.URL+"/api/images/sunset/display", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("display status = %d, want 200", resp.StatusCode)
	}
	want := []byte{0xAB, 0xCD, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11}
	if got := ts.panel.written.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("panel received % x, want % x", got, want)
	}

	if resp := post(t, ts.URL+"/api/images/missing/display", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing image status = %d, want 404", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, 8)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var status struct {
		Busy      bool   `json:"busy"`
		Streaming bool   `json:"streaming"`
		Mode      string `json:"mode"`
		Address   string `json:"address"`
	}
	decode(t, resp, &status)
	if status.Busy || status.Streaming {
		t.Errorf("idle status = %+v", status)
	}
	if status.Mode != "station" || status.Address != "10.0.0.5" {
		t.Errorf("status = %+v", status)
	}
}

func TestPanelClear(t *testing.T) {
	ts := newTestServer(t, 8)

	if resp := post(t, ts.URL+"/api/panel/clear", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", resp.StatusCode)
	}
	if len(ts.panel.filled) != 1 || ts.panel.filled[0] != frame.White {
		t.Errorf("fills = %v, want [white]", ts.panel.filled)
	}

	if resp := post(t, ts.URL+"/api/panel/clear?color=red", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("clear red status = %d, want 200", resp.StatusCode)
	}
	if got := ts.panel.filled[len(ts.panel.filled)-1]; got != frame.Red {
		t.Errorf("fill color = %v, want red", got)
	}

	if resp := post(t, ts.URL+"/api/panel/clear?color=mauve", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown color status = %d, want 400", resp.StatusCode)
	}
}

func TestPanelTest(t *testing.T) {
	ts := newTestServer(t, 8)
	if resp := post(t, ts.URL+"/api/panel/test", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("test status = %d, want 200", resp.StatusCode)
	}
	if ts.panel.patterns != 1 {
		t.Errorf("patterns = %d, want 1", ts.panel.patterns)
	}
}

func TestLEDNotConfigured(t *testing.T) {
	ts := newTestServer(t, 8)
	resp := post(t, ts.URL+"/api/led", []byte(`{"state":"on"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("led status = %d, want 404", resp.StatusCode)
	}
}

func TestLEDBadRequest(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	panel := &fakePanel{size: 8}
	dev := &device.Context{}
	srv := New(dev, ingest.New(panel, dev, st), panel, st, &device.LED{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, body := range []string{`{}`, `{"state":"blink"}`, `{"color":"mauve"}`, `not json`} {
		resp, err := http.Post(ts.URL+"/api/led", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}

	resp, err := http.Post(ts.URL+"/api/led", "application/json", strings.NewReader(`{"r":255,"g":10,"b":0}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("rgb status = %d, want 200", resp.StatusCode)
	}
}
