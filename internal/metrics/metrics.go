// Package metrics exposes scan, trigger and capture counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Acquisition
	FramesCaptured atomic.Uint64
	FramesReplaced atomic.Uint64
	CropFailures   atomic.Uint64
	CaptureErrors  atomic.Uint64

	// Top loop
	TopScans atomic.Uint64
	TopFires atomic.Uint64

	// Precision path
	PrecisionScans  atomic.Uint64
	TriggersDropped atomic.Uint64
	DuplicateFrames atomic.Uint64
	MissingFrames   atomic.Uint64
	RemoteBits      atomic.Uint64

	ScanErrors  atomic.Uint64
	HitsEmitted atomic.Uint64

	// Last scan durations in microseconds
	TopScanMicros       atomic.Uint64
	PrecisionScanMicros atomic.Uint64

	deviceBytes atomic.Pointer[func() int64]

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	m.counter("colorhit_frames_captured_total", "Cropped frames placed in the mailbox", &m.FramesCaptured)
	m.counter("colorhit_frames_replaced_total", "Pending frames released unconsumed", &m.FramesReplaced)
	m.counter("colorhit_crop_failures_total", "Raw frames that could not be cropped", &m.CropFailures)
	m.counter("colorhit_capture_errors_total", "Camera read errors", &m.CaptureErrors)

	m.counter("colorhit_top_scans_total", "Quick scans run by the top loop", &m.TopScans)
	m.counter("colorhit_top_fires_total", "Top scans that cleared the presence threshold", &m.TopFires)

	m.counter("colorhit_precision_scans_total", "Precision scans completed", &m.PrecisionScans)
	m.counter("colorhit_triggers_dropped_total", "Triggers dropped while a precision scan was in flight", &m.TriggersDropped)
	m.counter("colorhit_duplicate_frames_total", "Front frames skipped for a repeated timestamp", &m.DuplicateFrames)
	m.counter("colorhit_missing_frames_total", "Triggers with no front frame available", &m.MissingFrames)
	m.counter("colorhit_remote_bits_total", "Remote team bits accepted", &m.RemoteBits)

	m.counter("colorhit_scan_errors_total", "Scans that returned an error", &m.ScanErrors)
	m.counter("colorhit_hits_total", "Hit events emitted", &m.HitsEmitted)

	m.gauge("colorhit_top_scan_latency_us", "Duration of the last top scan in microseconds",
		func() float64 { return float64(m.TopScanMicros.Load()) })
	m.gauge("colorhit_precision_scan_latency_us", "Duration of the last precision scan in microseconds",
		func() float64 { return float64(m.PrecisionScanMicros.Load()) })
	m.gauge("colorhit_device_memory_bytes", "Compute device memory held by buffers and textures",
		func() float64 {
			if fn := m.deviceBytes.Load(); fn != nil {
				return float64((*fn)())
			}
			return 0
		})
}

// ObserveTopScan records the duration of a top scan.
func (m *Metrics) ObserveTopScan(d time.Duration) {
	m.TopScanMicros.Store(uint64(d.Microseconds()))
}

// ObservePrecisionScan records the duration of a precision scan.
func (m *Metrics) ObservePrecisionScan(d time.Duration) {
	m.PrecisionScanMicros.Store(uint64(d.Microseconds()))
}

// TrackDeviceMemory sets the source of the device memory gauge.
func (m *Metrics) TrackDeviceMemory(fn func() int64) {
	m.deviceBytes.Store(&fn)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
