package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConfigHandler_Get(t *testing.T) {
	h := NewConfigHandler(config.NewHolder(config.DefaultConfig()), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got config.Config
	if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TeamA != "green" || got.RadiusPx != 18 {
		t.Errorf("config = %+v", got)
	}
}

func TestConfigHandler_PutMergesAndPersists(t *testing.T) {
	s := newTestStore(t)
	holder := config.NewHolder(config.DefaultConfig())
	var changed atomic.Int32
	h := NewConfigHandler(holder, s.Settings(), func(config.Config) { changed.Add(1) })

	body := `{"teamA":"red","radiusPx":24,"roiFront":{"minX":0,"minY":0,"maxX":100,"maxY":80}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/config", bytes.NewBufferString(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := holder.Get()
	if got.TeamA != "red" || got.TeamB != "blue" || got.RadiusPx != 24 {
		t.Errorf("holder = %s/%s/%v, want red/blue/24", got.TeamA, got.TeamB, got.RadiusPx)
	}
	if got.FrontROI == nil || got.FrontROI.MaxX != 100 {
		t.Errorf("FrontROI = %v", got.FrontROI)
	}
	if changed.Load() != 1 {
		t.Errorf("onChange calls = %d, want 1", changed.Load())
	}

	loaded, err := config.Load(context.Background(), s.Settings())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.TeamA != "red" || loaded.RadiusPx != 24 {
		t.Errorf("persisted config = %s/%v", loaded.TeamA, loaded.RadiusPx)
	}
}

func TestConfigHandler_PutRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"teamA":`},
		{"unknown team", `{"teamA":"purple"}`},
		{"non-positive fps", `{"topFPS":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			holder := config.NewHolder(config.DefaultConfig())
			h := NewConfigHandler(holder, nil, nil)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/config", bytes.NewBufferString(tt.body)))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if holder.Get().TeamA != "green" || holder.Get().TopFPS != 30 {
				t.Error("rejected update changed the live config")
			}
		})
	}
}

func TestHitsHandler(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	if err := s.Hits().Create(ctx, &store.Hit{ID: id, Team: "B", Color: "blue", X: 0.5, Y: 0.5, Mass: 9000}); err != nil {
		t.Fatal(err)
	}
	h := NewHitsHandler(s)

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hits?limit=10", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got listHitsResponse
		if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if len(got.Hits) != 1 || got.Hits[0].ID != id || got.Counts["B"] != 1 {
			t.Errorf("list = %+v", got)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hits?limit=x", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hits/"+id, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hits/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/hits", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
		}
	})

	t.Run("clear", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/hits", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		hits, _ := s.Hits().List(ctx, 0)
		if len(hits) != 0 {
			t.Errorf("%d hits left after clear", len(hits))
		}
	})
}

type fakeToggle struct{ on bool }

func (f *fakeToggle) IsEnabled() bool   { return f.on }
func (f *fakeToggle) SetEnabled(v bool) { f.on = v }

func TestControlHandler(t *testing.T) {
	toggle := &fakeToggle{on: true}
	h := NewControlHandler(toggle)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/enabled", bytes.NewBufferString(`{"enabled":false}`)))
	if rec.Code != http.StatusOK || toggle.on {
		t.Fatalf("PUT status = %d, enabled = %v", rec.Code, toggle.on)
	}
	if rec.Body.String() != `{"enabled":false}` {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/enabled", bytes.NewBufferString(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT without field status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/enabled", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
