// Package server provides the HTTP server for colorhit.
package server

import (
	"context"
	"image"
	"net/http"
	"time"

	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/metrics"
	"github.com/ayusman/colorhit/internal/server/api"
	"github.com/ayusman/colorhit/internal/store"
)

// Controller is the part of the detection controller the server drives.
type Controller interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	HandleRemoteBit(bit int) bool
}

// Previewer renders the debug composite of a feed.
type Previewer interface {
	Preview(ctx context.Context, key string) (*image.RGBA, error)
}

// Config holds the server configuration. Every field is optional; routes whose
// dependency is missing are not registered.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Settings   *config.Holder
	Controller Controller
	Events     *EventHub
	Preview    Previewer
	Metrics    *metrics.Metrics
	// OnConfig is called after the configuration is changed through the API.
	OnConfig func(config.Config)
}

// Server represents the HTTP server for the colorhit application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Settings != nil {
		var persisted config.Settings
		if s.config.Store != nil {
			persisted = s.config.Store.Settings()
		}
		s.mux.Handle("/api/config", api.NewConfigHandler(s.config.Settings, persisted, s.config.OnConfig))
	}

	if s.config.Store != nil {
		hits := api.NewHitsHandler(s.config.Store)
		s.mux.Handle("/api/hits", hits)
		s.mux.Handle("/api/hits/", hits)
	}

	if s.config.Controller != nil {
		s.mux.Handle("/api/enabled", api.NewControlHandler(s.config.Controller))
		s.mux.Handle("/api/remote", NewRemoteHandler(s.config.Controller))
	}

	if s.config.Events != nil {
		s.mux.Handle("/api/events", s.config.Events)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/preview/", NewPreviewHandler(s.config.Preview))
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Enabled *bool  `json:"enabled,omitempty"`
	Clients *int   `json:"clients,omitempty"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Millisecond).String(),
	}
	if s.config.Controller != nil {
		enabled := s.config.Controller.IsEnabled()
		resp.Enabled = &enabled
	}
	if s.config.Events != nil {
		n := s.config.Events.Clients()
		resp.Clients = &n
	}

	writeJSON(w, resp)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if s.config.Events != nil {
			s.config.Events.Close()
		}
		return srv.Shutdown(shutdownCtx)
	}
}
