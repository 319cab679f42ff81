package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/controller"
	"github.com/ayusman/colorhit/internal/metrics"
	"github.com/ayusman/colorhit/internal/store"
)

type fakeController struct {
	mu      sync.Mutex
	enabled bool
	bits    []int
}

func (c *fakeController) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *fakeController) SetEnabled(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = v
}

func (c *fakeController) HandleRemoteBit(bit int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bits = append(c.bits, bit)
	return bit >= 0 && bit <= 2
}

func (c *fakeController) received() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.bits...)
}

type fakePreviewer struct {
	img *image.RGBA
	err error
}

func (p fakePreviewer) Preview(ctx context.Context, key string) (*image.RGBA, error) {
	if key != "front" {
		return nil, errors.New("no feed " + key)
	}
	return p.img, p.err
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestServer_Health(t *testing.T) {
	s := New(Config{Controller: &fakeController{enabled: true}, Events: NewEventHub()})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := sonic.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if response["enabled"] != true {
			t.Errorf("expected enabled true, got %v", response["enabled"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_OptionalRoutes(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/api/config", "/api/hits", "/api/enabled", "/metrics", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>scoreboard</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != testContent {
		t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
	}
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.New()
	m.HitsEmitted.Add(3)
	s := New(Config{Metrics: m})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "colorhit_hits_total 3") {
		t.Errorf("metrics output missing hit counter:\n%s", rec.Body.String())
	}
}

func TestServer_ConfigAndHitsWorkflow(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	holder := config.NewHolder(config.DefaultConfig())
	var applied config.Config
	srv := New(Config{
		Store:    st,
		Settings: holder,
		OnConfig: func(c config.Config) { applied = c },
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config", bytes.NewBufferString(`{"zoom":2}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/config error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}
	if holder.Get().FrontZoom != 2 || applied.FrontZoom != 2 {
		t.Errorf("FrontZoom = %v / applied %v, want 2", holder.Get().FrontZoom, applied.FrontZoom)
	}

	id := uuid.NewString()
	if err := st.Hits().Create(context.Background(), &store.Hit{ID: id, Team: "A", Color: "green"}); err != nil {
		t.Fatal(err)
	}
	resp, err = client.Get(ts.URL + "/api/hits/" + id)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET hit status = %d", resp.StatusCode)
	}
}

func TestEventHub_BroadcastsHits(t *testing.T) {
	hub := NewEventHub()
	ts := httptest.NewServer(New(Config{Events: hub}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/events"), nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	want := controller.Hit{ID: uuid.New(), Team: "B", Color: "blue", X: 0.5, Y: 0.25}
	hub.Hit(want)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	var got hitEvent
	if err := sonic.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	if got.Type != "hit" || got.Hit.ID != want.ID || got.Hit.Team != "B" || got.Hit.X != 0.5 {
		t.Errorf("event = %+v", got)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after disconnect")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRemoteHandler_ForwardsDigits(t *testing.T) {
	ctl := &fakeController{}
	ts := httptest.NewServer(New(Config{Controller: ctl}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/remote"), nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	for _, msg := range []string{"0", " 2\n", "x", "7"} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}
	conn.WriteMessage(websocket.BinaryMessage, []byte("1"))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(ctl.received()) < 3 {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	got := ctl.received()
	want := []int{0, 2, 7}
	if len(got) != len(want) {
		t.Fatalf("bits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bits = %v, want %v", got, want)
			break
		}
	}
}

func TestDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	for i := range src.Pix {
		src.Pix[i] = 200
	}

	got := downscale(src, 640)
	if got.Bounds() != image.Rect(0, 0, 640, 360) {
		t.Errorf("bounds = %v, want 640x360", got.Bounds())
	}
	if c := got.RGBAAt(320, 180); c != (color.RGBA{200, 200, 200, 200}) {
		t.Errorf("center = %v", c)
	}

	small := image.NewRGBA(image.Rect(0, 0, 320, 240))
	if downscale(small, 640) != small {
		t.Error("downscale should return images within the limit unchanged")
	}
}

func TestPreviewHandler(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{48, 255, 48, 255})
		}
	}
	s := New(Config{Preview: fakePreviewer{img: img}})

	t.Run("unknown feed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/preview/side?once=1", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("single jpeg", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping test that requires GoCV encoding")
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/preview/front?once=1", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		decoded, err := jpeg.Decode(rec.Body)
		if err != nil {
			t.Fatalf("jpeg.Decode() error = %v", err)
		}
		if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
			t.Errorf("jpeg size = %v", decoded.Bounds())
		}
		r, g, b, _ := decoded.At(32, 24).RGBA()
		if g>>8 < 200 || r>>8 > 100 || b>>8 > 100 {
			t.Errorf("center = %d,%d,%d, want green", r>>8, g>>8, b>>8)
		}
	})
}
