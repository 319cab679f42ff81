package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/colorhit/internal/capture"
	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/controller"
	"github.com/ayusman/colorhit/internal/detector"
	"github.com/ayusman/colorhit/internal/gpu"
	"github.com/ayusman/colorhit/internal/metrics"
	"github.com/ayusman/colorhit/internal/plugin"
	"github.com/ayusman/colorhit/internal/server"
	"github.com/ayusman/colorhit/internal/store"
	"github.com/ayusman/colorhit/internal/tray"
)

type options struct {
	addr     string
	dataDir  string
	webDir   string
	backend  string
	workers  int
	logLevel string
	noTray   bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.addr, "addr", ":8080", "HTTP listen address")
	flag.StringVar(&o.dataDir, "data", "", "data directory (default ~/.colorhit)")
	flag.StringVar(&o.webDir, "web", "", "static web directory (default: search web/, ../web, ~/.colorhit/web)")
	flag.StringVar(&o.backend, "backend", "", "compute backend (default software)")
	flag.IntVar(&o.workers, "workers", 0, "compute workers (default GOMAXPROCS)")
	flag.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&o.noTray, "no-tray", false, "run without the system tray")
	flag.Parse()
	return o
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
}

func main() {
	o := parseFlags()
	setupLogging(o.logLevel)

	if err := run(o); err != nil {
		log.Fatal().Err(err).Msg("colorhit failed")
	}
}

func run(o options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir, err := resolveDataDir(o.dataDir)
	if err != nil {
		return err
	}

	st, err := store.New(filepath.Join(dataDir, "colorhit.db"))
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	cfg, err := config.Load(ctx, st.Settings())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("stored config invalid, using defaults")
		cfg = config.DefaultConfig()
	}
	holder := config.NewHolder(cfg)

	device, err := gpu.Open(gpu.Options{Backend: o.backend, Workers: o.workers})
	if err != nil {
		return fmt.Errorf("open compute device: %w", err)
	}
	defer device.Close()

	engine := detector.NewEngine(device)
	defer engine.Close()

	m := metrics.New()
	m.TrackDeviceMemory(engine.AllocatedBytes)

	front := capture.NewAcquirer(capture.NewCamera(cfg.FrontURL, cfg.CamW, cfg.CamH), cfg.FrontZoom, m)
	if err := front.Start(ctx); err != nil {
		return err
	}
	defer front.Stop()

	var top controller.FrameSource
	var topAcq *capture.Acquirer
	if cfg.TopMode == config.TopModeLocal {
		topAcq = capture.NewAcquirer(capture.NewCamera(cfg.TopURL, cfg.CamW, cfg.CamH), cfg.TopZoom, m)
		if err := topAcq.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("top camera unavailable, waiting for remote bits only")
			topAcq = nil
		} else {
			defer topAcq.Stop()
			top = controller.AcquirerSource{Acquirer: topAcq}
		}
	}

	plugins := plugin.NewManager(filepath.Join(dataDir, "plugins"))
	if err := plugins.Discover(); err != nil {
		log.Warn().Err(err).Msg("plugin discovery failed")
	}
	log.Info().Int("count", len(plugins.List())).Str("dir", plugins.PluginDir()).Msg("hit hooks loaded")
	hooks := plugin.NewHooks(plugins, plugin.NewExecutor(5*time.Second))
	defer hooks.Close()

	events := server.NewEventHub()
	tr := tray.New()
	sinks := controller.MultiSink{storeSink(st), events, tr, hooks}

	ctl, err := controller.New(controller.Options{
		Detector: engine,
		Top:      top,
		Front:    controller.AcquirerSource{Acquirer: front},
		Sink:     sinks,
		Config:   holder,
		Metrics:  m,
	})
	if err != nil {
		return err
	}
	if err := ctl.Start(ctx); err != nil {
		return err
	}
	defer ctl.Stop()

	webDir := o.webDir
	if webDir == "" {
		webDir = findWebDir(dataDir)
	}
	if webDir != "" {
		log.Info().Str("dir", webDir).Msg("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		Settings:   holder,
		Controller: trayedController{Controller: ctl, tray: tr},
		Events:     events,
		Preview:    engine,
		Metrics:    m,
		OnConfig: func(c config.Config) {
			front.SetZoom(c.FrontZoom)
			if topAcq != nil {
				topAcq.SetZoom(c.TopZoom)
			}
		},
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", o.addr).Msg("starting server")
		errCh <- srv.ListenAndServe(ctx, o.addr)
	}()

	if !o.noTray {
		tr.OnToggle(ctl.SetEnabled)
		tr.OnSettings(func() {
			log.Info().Str("url", "http://localhost"+o.addr).Msg("open settings in a browser")
		})
		tr.OnQuit(stop)
		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		// systray owns the main thread until quit.
		tr.Run()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	log.Info().Msg("shutting down")
	return nil
}

// trayedController keeps the tray toggle in step with changes made through the API.
type trayedController struct {
	*controller.Controller
	tray *tray.Tray
}

func (c trayedController) SetEnabled(enabled bool) {
	c.Controller.SetEnabled(enabled)
	c.tray.SetEnabled(enabled)
}

func storeSink(st *store.Store) controller.SinkFunc {
	return func(h controller.Hit) {
		err := st.Hits().Create(context.Background(), &store.Hit{
			ID:        h.ID.String(),
			Team:      h.Team,
			Color:     h.Color,
			X:         h.X,
			Y:         h.Y,
			Score:     h.Score,
			Mass:      h.Mass,
			FrameTime: h.FrameTime,
			CreatedAt: h.At,
		})
		if err != nil {
			log.Error().Err(err).Str("hit", h.ID.String()).Msg("failed to record hit")
		}
	}
}

func resolveDataDir(dir string) (string, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".colorhit")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// findWebDir searches for the web directory in common locations.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
