package capture

import (
	"sync"
	"sync/atomic"
	"testing"
)

type fakeFrame struct {
	id       int
	released atomic.Int32
}

func (f *fakeFrame) Release() { f.released.Add(1) }

func TestMailbox_KeepsOnlyNewest(t *testing.T) {
	var box Mailbox[*fakeFrame]
	const n = 10

	frames := make([]*fakeFrame, n)
	for i := range frames {
		frames[i] = &fakeFrame{id: i}
		box.Put(frames[i])
	}

	for i, f := range frames[:n-1] {
		if got := f.released.Load(); got != 1 {
			t.Errorf("frame %d released %d times, want 1", i, got)
		}
	}
	if got := frames[n-1].released.Load(); got != 0 {
		t.Errorf("newest frame released %d times, want 0", got)
	}
	if got := box.Dropped(); got != n-1 {
		t.Errorf("Dropped() = %d, want %d", got, n-1)
	}

	f, ok := box.Take()
	if !ok || f != frames[n-1] {
		t.Fatalf("Take() = %v, %v; want newest frame", f, ok)
	}
	if f, ok := box.Take(); ok || f != nil {
		t.Errorf("second Take() = %v, %v; want empty", f, ok)
	}
}

func TestMailbox_Clear(t *testing.T) {
	var box Mailbox[*fakeFrame]
	f := &fakeFrame{}
	box.Put(f)
	box.Clear()
	box.Clear()

	if got := f.released.Load(); got != 1 {
		t.Errorf("released %d times, want 1", got)
	}
	if _, ok := box.Take(); ok {
		t.Error("Take() after Clear() returned a frame")
	}
}

func TestMailbox_ConcurrentProducerConsumer(t *testing.T) {
	var box Mailbox[*fakeFrame]
	const n = 2000

	frames := make([]*fakeFrame, n)
	for i := range frames {
		frames[i] = &fakeFrame{id: i}
	}

	var taken []*fakeFrame
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if f, ok := box.Take(); ok {
				taken = append(taken, f)
				continue
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	for _, f := range frames {
		box.Put(f)
	}
	close(done)
	wg.Wait()
	if f, ok := box.Take(); ok {
		taken = append(taken, f)
	}

	takenSet := make(map[*fakeFrame]bool, len(taken))
	for _, f := range taken {
		if takenSet[f] {
			t.Fatalf("frame %d taken twice", f.id)
		}
		takenSet[f] = true
	}
	for _, f := range frames {
		got := f.released.Load()
		switch {
		case takenSet[f] && got != 0:
			t.Fatalf("taken frame %d was also released", f.id)
		case !takenSet[f] && got != 1:
			t.Fatalf("dropped frame %d released %d times, want 1", f.id, got)
		}
	}
}
