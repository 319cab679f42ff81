// Package controller drives detection: a throttled quick scan of the top source and a
// one-shot precision scan of the front source whenever a team fires.
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/detector"
	"github.com/ayusman/colorhit/internal/metrics"
)

var ctlLog = log.With().Str("module", "controller").Logger()

// Feed keys.
const (
	TopKey   = "top"
	FrontKey = "front"
)

// Frame is a captured frame handed to the controller. The controller releases it.
type Frame interface {
	detector.Source
	CaptureTime() int64
	Release()
}

// FrameSource yields the newest pending frame, or nil when none is pending.
type FrameSource interface {
	Next() Frame
}

// ConfigSource returns the live configuration. It is read once per scan.
type ConfigSource interface {
	Get() config.Config
}

// Options configures a Controller.
type Options struct {
	Detector detector.Detector
	// Top may be nil when only remote bits drive the front scan.
	Top     FrameSource
	Front   FrameSource
	Sink    HitSink
	Config  ConfigSource
	Metrics *metrics.Metrics
}

// Controller owns the top loop and the precision path.
type Controller struct {
	detector detector.Detector
	top      FrameSource
	front    FrameSource
	sink     HitSink
	config   ConfigSource
	metrics  *metrics.Metrics

	enabled  atomic.Bool
	inFlight atomic.Bool
	epoch    atomic.Uint64

	lastFront atomic.Int64
	haveFront atomic.Bool

	mu      sync.Mutex
	ctx     context.Context
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	scans   sync.WaitGroup
}

// New creates a controller. Detection starts enabled.
func New(opts Options) (*Controller, error) {
	if opts.Detector == nil {
		return nil, errors.New("controller: detector is required")
	}
	if opts.Front == nil {
		return nil, errors.New("controller: front source is required")
	}
	if opts.Config == nil {
		opts.Config = config.NewHolder(config.DefaultConfig())
	}
	if opts.Sink == nil {
		opts.Sink = MultiSink{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	c := &Controller{
		detector: opts.Detector,
		top:      opts.Top,
		front:    opts.Front,
		sink:     opts.Sink,
		config:   opts.Config,
		metrics:  opts.Metrics,
	}
	c.enabled.Store(true)
	return c, nil
}

// SetEnabled pauses or resumes detection without stopping the loop.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
	ctlLog.Info().Bool("enabled", enabled).Msg("detection toggled")
}

// IsEnabled reports whether detection is enabled.
func (c *Controller) IsEnabled() bool {
	return c.enabled.Load()
}

// Running reports whether Start has been called without a matching Stop.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start launches the top loop. In remote top mode the loop idles and only remote bits
// trigger the front scan.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.running = true
	c.ctx = ctx
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	go c.runTop(ctx, c.stopCh, c.done)

	ctlLog.Info().Msg("controller started")
	return nil
}

// Stop ends the top loop. A precision scan in flight runs to completion and its result
// is discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.epoch.Add(1)
	close(c.stopCh)
	done := c.done
	c.mu.Unlock()

	<-done
	c.scans.Wait()
	ctlLog.Info().Msg("controller stopped")
}

func topInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 30
	}
	return time.Second / time.Duration(fps)
}

// runTop ticks at the configured top rate.
func (c *Controller) runTop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := c.config.Get().TopFPS
	ticker := time.NewTicker(topInterval(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg := c.config.Get()
			if cfg.TopFPS != fps {
				fps = cfg.TopFPS
				ticker.Reset(topInterval(fps))
			}
			if !c.IsEnabled() || cfg.TopMode != config.TopModeLocal || c.top == nil {
				continue
			}
			if mask := c.ScanTop(ctx, cfg); mask != 0 {
				c.Trigger(mask)
			}
		}
	}
}

// ScanTop runs one quick scan of the newest top frame and returns the teams whose score
// reaches TopMinArea.
func (c *Controller) ScanTop(ctx context.Context, cfg config.Config) detector.TeamMask {
	if c.top == nil {
		return 0
	}
	f := c.top.Next()
	if f == nil {
		return 0
	}
	defer f.Release()

	start := time.Now()
	res, err := c.detector.Detect(ctx, detector.Request{
		Key:     TopKey,
		Source:  f,
		Params:  detector.NewParams(cfg, cfg.TopROI),
		Active:  detector.BothTeams,
		Preview: cfg.Preview,
	})
	c.metrics.ObserveTopScan(time.Since(start))
	c.metrics.TopScans.Add(1)
	if err != nil {
		c.metrics.ScanErrors.Add(1)
		ctlLog.Warn().Err(err).Msg("top scan failed")
		return 0
	}

	var mask detector.TeamMask
	if res.A.Present && res.A.Score >= cfg.TopMinArea {
		mask |= detector.TeamA
	}
	if res.B.Present && res.B.Score >= cfg.TopMinArea {
		mask |= detector.TeamB
	}
	if mask != 0 {
		c.metrics.TopFires.Add(1)
		ctlLog.Debug().
			Stringer("teams", mask).
			Float64("scoreA", res.A.Score).
			Float64("scoreB", res.B.Score).
			Msg("top fired")
	}
	return mask
}

// HandleRemoteBit maps a remote detection digit to a trigger: 0 is team A, 1 is team B,
// 2 is both. Other values are ignored.
func (c *Controller) HandleRemoteBit(bit int) bool {
	var mask detector.TeamMask
	switch bit {
	case 0:
		mask = detector.TeamA
	case 1:
		mask = detector.TeamB
	case 2:
		mask = detector.BothTeams
	default:
		ctlLog.Debug().Int("bit", bit).Msg("ignoring remote bit")
		return false
	}
	c.metrics.RemoteBits.Add(1)
	return c.Trigger(mask)
}

// Trigger starts a precision scan of the front source for mask. It returns false when
// the controller is stopped or disabled, or when a precision scan is already in flight.
func (c *Controller) Trigger(mask detector.TeamMask) bool {
	mask &= detector.BothTeams
	if mask == 0 || !c.IsEnabled() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		c.metrics.TriggersDropped.Add(1)
		ctlLog.Debug().Stringer("teams", mask).Msg("precision scan busy, trigger dropped")
		return false
	}

	epoch := c.epoch.Load()
	ctx := c.ctx
	c.scans.Add(1)
	go func() {
		defer c.scans.Done()
		defer c.inFlight.Store(false)
		c.scanFront(ctx, mask, epoch)
	}()
	return true
}

// scanFront runs the precision scan and emits hits unless the controller was stopped
// meanwhile.
func (c *Controller) scanFront(ctx context.Context, mask detector.TeamMask, epoch uint64) {
	cfg := c.config.Get()

	f := c.front.Next()
	if f == nil {
		c.metrics.MissingFrames.Add(1)
		ctlLog.Debug().Msg("no front frame pending")
		return
	}
	defer f.Release()

	ts := f.CaptureTime()
	if c.haveFront.Load() && c.lastFront.Load() == ts {
		c.metrics.DuplicateFrames.Add(1)
		ctlLog.Debug().Int64("timestamp", ts).Msg("front frame already processed")
		return
	}
	c.lastFront.Store(ts)
	c.haveFront.Store(true)

	start := time.Now()
	res, err := c.detector.Detect(ctx, detector.Request{
		Key:     FrontKey,
		Source:  f,
		Params:  detector.NewParams(cfg, cfg.FrontROI),
		Active:  mask,
		Refine:  true,
		Preview: cfg.Preview,
	})
	c.metrics.ObservePrecisionScan(time.Since(start))
	c.metrics.PrecisionScans.Add(1)
	if err != nil {
		c.metrics.ScanErrors.Add(1)
		ctlLog.Warn().Err(err).Stringer("teams", mask).Msg("precision scan failed")
		return
	}
	if c.epoch.Load() != epoch {
		ctlLog.Debug().Msg("discarding precision result after stop")
		return
	}

	a, b := cfg.Teams()
	for _, team := range []detector.TeamMask{detector.TeamA, detector.TeamB} {
		if !mask.Has(team) {
			continue
		}
		tr := res.Team(team)
		if !tr.Present {
			continue
		}
		color := a
		if team == detector.TeamB {
			color = b
		}
		c.emit(newHit(team, color, tr, res, ts))
	}
}

func newHit(team detector.TeamMask, color int, tr detector.TeamResult, res detector.Result, ts int64) Hit {
	h := Hit{
		ID:        uuid.New(),
		Team:      team.String(),
		Color:     config.TeamName(color),
		Score:     tr.Score,
		Mass:      tr.Mass,
		FrameTime: ts,
		At:        time.Now(),
	}
	if res.SourceWidth > 0 && res.SourceHeight > 0 {
		h.X = tr.X / float64(res.SourceWidth)
		h.Y = tr.Y / float64(res.SourceHeight)
	}
	return h
}

func (c *Controller) emit(h Hit) {
	c.metrics.HitsEmitted.Add(1)
	ctlLog.Info().
		Str("team", h.Team).
		Str("color", h.Color).
		Float64("x", h.X).
		Float64("y", h.Y).
		Uint32("mass", h.Mass).
		Msg("hit")
	c.sink.Hit(h)
}
