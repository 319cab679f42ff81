// Package gpu provides a compute device abstraction with buffers, textures and a single
// ordered submission queue. Kernels are dispatched as grids of workgroups that communicate
// through atomic buffer operations only.
package gpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// BackendSoftware runs kernels on a bounded set of goroutines.
const BackendSoftware = "software"

var (
	// ErrDeviceUnavailable is returned by Open when no compute-capable backend exists.
	ErrDeviceUnavailable = errors.New("no compute-capable device available")
	// ErrAllocationFailed is returned when a buffer or texture cannot be created.
	ErrAllocationFailed = errors.New("resource allocation failed")
	// ErrBufferMapped is returned when a mapped buffer is used by the queue or mapped twice.
	ErrBufferMapped = errors.New("buffer is mapped")
	// ErrDeviceLost is returned once a kernel has faulted or the device was closed.
	ErrDeviceLost = errors.New("device lost")
	// ErrDestroyed is returned when a destroyed resource is referenced.
	ErrDestroyed = errors.New("resource destroyed")
)

// Limits bounds what a device will allocate.
type Limits struct {
	MaxTextureDimension int
	MaxBufferWords      int
	MaxMemoryBytes      int64
}

// DefaultLimits returns limits comparable to a low-end discrete adapter.
func DefaultLimits() Limits {
	return Limits{
		MaxTextureDimension: 8192,
		MaxBufferWords:      1 << 26,
		MaxMemoryBytes:      1 << 30,
	}
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Workers is the number of goroutines executing workgroups. Zero means GOMAXPROCS.
	Workers int
	Limits  Limits
}

// Device owns all resources and the submission queue. There is one per process;
// it is constructed explicitly and passed to every component that needs it.
type Device struct {
	backend   string
	limits    Limits
	workers   int
	allocated atomic.Int64
	queue     *Queue

	mu      sync.Mutex
	lostErr error
}

// Open creates a device for the requested backend.
func Open(opts Options) (*Device, error) {
	if opts.Backend == "" {
		opts.Backend = BackendSoftware
	}
	if opts.Backend != BackendSoftware {
		return nil, fmt.Errorf("backend %q: %w", opts.Backend, ErrDeviceUnavailable)
	}

	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	d := &Device{
		backend: opts.Backend,
		limits:  limits,
		workers: workers,
	}
	d.queue = newQueue(d)
	return d, nil
}

// Backend returns the backend name.
func (d *Device) Backend() string {
	return d.backend
}

// Limits returns the allocation limits of the device.
func (d *Device) Limits() Limits {
	return d.limits
}

// Queue returns the device's single submission queue.
func (d *Device) Queue() *Queue {
	return d.queue
}

// AllocatedBytes reports memory held by live buffers and textures.
func (d *Device) AllocatedBytes() int64 {
	return d.allocated.Load()
}

// Err returns the reason the device was lost, or nil.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lostErr
}

// Close drains the queue and marks the device lost.
func (d *Device) Close() error {
	d.queue.close()
	d.lose(fmt.Errorf("device closed: %w", ErrDeviceLost))
	return nil
}

func (d *Device) lose(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lostErr == nil {
		d.lostErr = err
	}
}

func (d *Device) reserve(bytes int64) error {
	for {
		cur := d.allocated.Load()
		if cur+bytes > d.limits.MaxMemoryBytes {
			return fmt.Errorf("%d bytes requested with %d of %d in use: %w",
				bytes, cur, d.limits.MaxMemoryBytes, ErrAllocationFailed)
		}
		if d.allocated.CompareAndSwap(cur, cur+bytes) {
			return nil
		}
	}
}

func (d *Device) release(bytes int64) {
	d.allocated.Add(-bytes)
}
