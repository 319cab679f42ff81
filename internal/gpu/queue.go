package gpu

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// Workgroup identifies one workgroup of a dispatch grid.
type Workgroup struct {
	X, Y       int
	NumX, NumY int
}

// Index returns the linear index of the workgroup within its grid.
func (w Workgroup) Index() int {
	return w.Y*w.NumX + w.X
}

// Kernel is the body of one workgroup. Workgroups of a dispatch run concurrently in no
// particular order and may only share state through atomic buffer operations.
type Kernel func(wg Workgroup)

type queueItem struct {
	run   func() error
	fence chan error
}

// Queue executes writes and command buffers strictly in submission order on a single
// goroutine. A dispatch completes entirely before the next command starts.
type Queue struct {
	device *Device
	items  chan queueItem
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newQueue(d *Device) *Queue {
	q := &Queue{
		device: d,
		items:  make(chan queueItem, 64),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for item := range q.items {
		if item.fence != nil {
			item.fence <- q.device.Err()
			continue
		}
		if q.device.Err() != nil {
			continue
		}
		if err := item.run(); err != nil {
			q.device.lose(fmt.Errorf("%w: %v", ErrDeviceLost, err))
		}
	}
}

func (q *Queue) enqueue(item queueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue closed: %w", ErrDeviceLost)
	}
	q.items <- item
	return nil
}

func (q *Queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()
	<-q.done
}

// OnSubmittedWorkDone returns a channel that yields once everything submitted so far has
// executed. The value is non-nil if the device was lost.
func (q *Queue) OnSubmittedWorkDone() <-chan error {
	fence := make(chan error, 1)
	if err := q.enqueue(queueItem{fence: fence}); err != nil {
		fence <- err
	}
	return fence
}

// WriteBuffer schedules a write of data into b starting at word offset. The data is copied
// before WriteBuffer returns.
func (q *Queue) WriteBuffer(b *Buffer, offset int, data []uint32) error {
	if err := q.device.Err(); err != nil {
		return err
	}
	if err := checkWritable(b); err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > b.Len() {
		return fmt.Errorf("write of %d words at %d overruns buffer %q (%d words)", len(data), offset, b.label, b.Len())
	}
	src := append([]uint32(nil), data...)
	return q.enqueue(queueItem{run: func() error {
		for i, v := range src {
			b.Store(offset+i, v)
		}
		return nil
	}})
}

// WriteTexture schedules an upload of tightly or loosely packed RGBA8 rows into t.
// With flipY the first source row lands on the last texture row.
func (q *Queue) WriteTexture(t *Texture, pix []byte, stride int, flipY bool) error {
	if err := q.device.Err(); err != nil {
		return err
	}
	if t.IsDestroyed() {
		return fmt.Errorf("texture %q: %w", t.label, ErrDestroyed)
	}
	rowBytes := t.width * 4
	if stride < rowBytes || len(pix) < stride*(t.height-1)+rowBytes {
		return fmt.Errorf("texture %q: %d bytes at stride %d do not cover %dx%d",
			t.label, len(pix), stride, t.width, t.height)
	}
	src := make([]byte, rowBytes*t.height)
	for y := 0; y < t.height; y++ {
		copy(src[y*rowBytes:(y+1)*rowBytes], pix[y*stride:y*stride+rowBytes])
	}
	return q.enqueue(queueItem{run: func() error {
		for y := 0; y < t.height; y++ {
			dy := y
			if flipY {
				dy = t.height - 1 - y
			}
			copy(t.pix[dy*rowBytes:(dy+1)*rowBytes], src[y*rowBytes:(y+1)*rowBytes])
		}
		return nil
	}})
}

// ReadTexture schedules a copy of t into host memory. The image is delivered once all
// previously submitted work has executed.
func (q *Queue) ReadTexture(t *Texture) (<-chan *image.RGBA, <-chan error) {
	out := make(chan *image.RGBA, 1)
	errc := make(chan error, 1)
	if t.IsDestroyed() {
		errc <- fmt.Errorf("texture %q: %w", t.label, ErrDestroyed)
		return out, errc
	}
	err := q.enqueue(queueItem{run: func() error {
		out <- t.snapshot()
		return nil
	}})
	if err != nil {
		errc <- err
		return out, errc
	}
	go func() {
		errc <- <-q.OnSubmittedWorkDone()
	}()
	return out, errc
}

// Submit validates and schedules command buffers.
func (q *Queue) Submit(cbs ...*CommandBuffer) error {
	if err := q.device.Err(); err != nil {
		return err
	}
	for _, cb := range cbs {
		if err := cb.validate(); err != nil {
			return fmt.Errorf("submit %q: %w", cb.label, err)
		}
	}
	for _, cb := range cbs {
		cmds := cb.cmds
		err := q.enqueue(queueItem{run: func() error {
			for _, c := range cmds {
				if err := c.run(q); err != nil {
					return err
				}
			}
			return nil
		}})
		if err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) dispatch(label string, nx, ny int, k Kernel) error {
	total := nx * ny
	workers := q.device.workers
	if workers > total {
		workers = total
	}

	var (
		next    atomic.Int64
		faulted atomic.Bool
		once    sync.Once
		fault   error
		wg      sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					faulted.Store(true)
					once.Do(func() { fault = fmt.Errorf("kernel %q: %v", label, r) })
				}
			}()
			for !faulted.Load() {
				i := int(next.Add(1) - 1)
				if i >= total {
					return
				}
				k(Workgroup{X: i % nx, Y: i / nx, NumX: nx, NumY: ny})
			}
		}()
	}
	wg.Wait()
	return fault
}

func checkWritable(b *Buffer) error {
	if b.destroyed.Load() {
		return fmt.Errorf("buffer %q: %w", b.label, ErrDestroyed)
	}
	if b.IsMapped() {
		return fmt.Errorf("buffer %q: %w", b.label, ErrBufferMapped)
	}
	if b.usage&UsageCopyDst == 0 {
		return fmt.Errorf("buffer %q is not a copy destination", b.label)
	}
	return nil
}
