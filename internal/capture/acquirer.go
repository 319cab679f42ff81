package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/colorhit/internal/metrics"
)

var capLog = log.With().Str("module", "capture").Logger()

// ErrCaptureInitFailed is returned by Start when the camera cannot be opened.
var ErrCaptureInitFailed = errors.New("capture device failed to initialize")

// readBackoff is the pause after a failed read.
const readBackoff = 20 * time.Millisecond

// Acquirer reads frames as fast as the camera delivers them and keeps the newest crop.
type Acquirer struct {
	camera  Camera
	metrics *metrics.Metrics
	box     Mailbox[*Frame]
	zoom    atomic.Uint64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewAcquirer creates an acquirer for camera. m may be nil.
func NewAcquirer(camera Camera, zoom float64, m *metrics.Metrics) *Acquirer {
	if m == nil {
		m = metrics.New()
	}
	a := &Acquirer{camera: camera, metrics: m}
	a.SetZoom(zoom)
	return a
}

// SetZoom changes the crop factor for subsequent frames.
func (a *Acquirer) SetZoom(zoom float64) {
	if zoom < 1 || math.IsNaN(zoom) {
		zoom = 1
	}
	a.zoom.Store(math.Float64bits(zoom))
}

// Zoom returns the current crop factor.
func (a *Acquirer) Zoom() float64 {
	return math.Float64frombits(a.zoom.Load())
}

// Start opens the camera and starts the read loop. An open failure is reported once as
// ErrCaptureInitFailed and not retried.
func (a *Acquirer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}
	if err := a.camera.Open(); err != nil {
		capLog.Error().Err(err).Msg("camera failed to open")
		return fmt.Errorf("%w: %v", ErrCaptureInitFailed, err)
	}

	a.running = true
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(ctx, a.stopCh, a.done)

	capLog.Info().Float64("zoom", a.Zoom()).Msg("acquisition started")
	return nil
}

func (a *Acquirer) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		raw, err := a.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrCameraNotOpen) {
				return
			}
			a.metrics.CaptureErrors.Add(1)
			capLog.Debug().Err(err).Msg("read failed")
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(readBackoff):
			}
			continue
		}

		a.accept(raw)
	}
}

// accept crops raw into the mailbox and releases raw.
func (a *Acquirer) accept(raw *Frame) {
	defer raw.Release()

	cropped, err := Crop(raw, a.Zoom())
	if err != nil {
		a.metrics.CropFailures.Add(1)
		capLog.Debug().Err(err).Msg("skipping frame")
		return
	}
	if a.box.Put(cropped) {
		a.metrics.FramesReplaced.Add(1)
	}
	a.metrics.FramesCaptured.Add(1)
}

// TakeFrame returns the newest cropped frame, or nil if none arrived since the last call.
// The caller owns the frame.
func (a *Acquirer) TakeFrame() *Frame {
	f, ok := a.box.Take()
	if !ok {
		return nil
	}
	return f
}

// Stop ends the read loop, closes the camera and releases any pending frame.
func (a *Acquirer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	done := a.done
	a.mu.Unlock()

	a.camera.Close()
	<-done
	a.box.Clear()
	capLog.Info().Msg("acquisition stopped")
}
