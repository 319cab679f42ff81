package gpu

import (
	"fmt"
	"math"
	"sync/atomic"
)

// BufferUsage is a bit set describing how a buffer may be used.
type BufferUsage uint32

const (
	UsageStorage BufferUsage = 1 << iota
	UsageUniform
	UsageCopySrc
	UsageCopyDst
	UsageMapRead
)

// BufferDescriptor describes a buffer of 32-bit words.
type BufferDescriptor struct {
	Label string
	Words int
	Usage BufferUsage
}

const (
	mapUnmapped int32 = iota
	mapPending
	mapMapped
)

// Buffer is an array of 32-bit words. Kernels access it only through the atomic
// accessors; the host reads it only through MapAsync on a UsageMapRead buffer.
type Buffer struct {
	device    *Device
	label     string
	usage     BufferUsage
	words     []uint32
	state     atomic.Int32
	destroyed atomic.Bool
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	if desc.Words <= 0 || desc.Words > d.limits.MaxBufferWords {
		return nil, fmt.Errorf("buffer %q: %d words: %w", desc.Label, desc.Words, ErrAllocationFailed)
	}
	if desc.Usage&UsageMapRead != 0 && desc.Usage&^(UsageMapRead|UsageCopyDst) != 0 {
		return nil, fmt.Errorf("buffer %q: map-read buffers may only be copy destinations: %w",
			desc.Label, ErrAllocationFailed)
	}
	if err := d.reserve(int64(desc.Words) * 4); err != nil {
		return nil, fmt.Errorf("buffer %q: %w", desc.Label, err)
	}
	return &Buffer{
		device: d,
		label:  desc.Label,
		usage:  desc.Usage,
		words:  make([]uint32, desc.Words),
	}, nil
}

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Len returns the size in words.
func (b *Buffer) Len() int { return len(b.words) }

// Load atomically reads word i.
func (b *Buffer) Load(i int) uint32 {
	return atomic.LoadUint32(&b.words[i])
}

// LoadFloat32 atomically reads word i as an IEEE-754 float.
func (b *Buffer) LoadFloat32(i int) float32 {
	return math.Float32frombits(b.Load(i))
}

// Store atomically writes word i.
func (b *Buffer) Store(i int, v uint32) {
	atomic.StoreUint32(&b.words[i], v)
}

// Add atomically adds v to word i and returns the previous value.
func (b *Buffer) Add(i int, v uint32) uint32 {
	return atomic.AddUint32(&b.words[i], v) - v
}

// Max atomically raises word i to v if v is larger and returns the previous value.
func (b *Buffer) Max(i int, v uint32) uint32 {
	p := &b.words[i]
	for {
		old := atomic.LoadUint32(p)
		if old >= v || atomic.CompareAndSwapUint32(p, old, v) {
			return old
		}
	}
}

// MapAsync requests host access to the buffer. The returned channel yields once all work
// submitted before the call has completed; after a nil result Mapped is valid until Unmap.
func (b *Buffer) MapAsync() <-chan error {
	done := make(chan error, 1)
	switch {
	case b.usage&UsageMapRead == 0:
		done <- fmt.Errorf("buffer %q is not mappable", b.label)
		return done
	case b.destroyed.Load():
		done <- fmt.Errorf("buffer %q: %w", b.label, ErrDestroyed)
		return done
	case !b.state.CompareAndSwap(mapUnmapped, mapPending):
		done <- fmt.Errorf("buffer %q: %w", b.label, ErrBufferMapped)
		return done
	}

	fence := b.device.queue.OnSubmittedWorkDone()
	go func() {
		if err := <-fence; err != nil {
			b.state.Store(mapUnmapped)
			done <- err
			return
		}
		b.state.Store(mapMapped)
		done <- nil
	}()
	return done
}

// Mapped returns the host view of a mapped buffer, or nil if it is not mapped.
// The slice must not be retained past Unmap.
func (b *Buffer) Mapped() []uint32 {
	if b.state.Load() != mapMapped {
		return nil
	}
	return b.words
}

// Unmap returns the buffer to the queue.
func (b *Buffer) Unmap() {
	b.state.CompareAndSwap(mapMapped, mapUnmapped)
}

// IsMapped reports whether the buffer is mapped or has a map pending.
func (b *Buffer) IsMapped() bool {
	return b.state.Load() != mapUnmapped
}

// Destroy releases the buffer's device memory. Safe to call more than once.
func (b *Buffer) Destroy() {
	if b.destroyed.CompareAndSwap(false, true) {
		b.device.release(int64(len(b.words)) * 4)
	}
}
