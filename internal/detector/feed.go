package detector

import (
	"fmt"
	"sync"

	"github.com/ayusman/colorhit/internal/gpu"
)

// Feed is the texture pair of one video source plus the kernels bound to it.
type Feed struct {
	Key    string
	Width  int
	Height int
	// Frame holds the uploaded source pixels, sRGB encoded.
	Frame *gpu.Texture
	// Mask receives the debug composite.
	Mask *gpu.Texture

	kernels bindings
}

// bindings are the kernels prebuilt against one feed and pack.
type bindings struct {
	seed    gpu.Kernel
	resolve gpu.Kernel
	refine  gpu.Kernel
	debug   gpu.Kernel
}

func (f *Feed) destroy() {
	f.Frame.Destroy()
	f.Mask.Destroy()
}

// FeedCache keeps at most one live feed per key.
type FeedCache struct {
	device *gpu.Device

	mu    sync.Mutex
	feeds map[string]*Feed
}

// NewFeedCache creates an empty cache.
func NewFeedCache(d *gpu.Device) *FeedCache {
	return &FeedCache{
		device: d,
		feeds:  make(map[string]*Feed),
	}
}

// GetOrCreate returns the feed for key when its size matches, and otherwise replaces it
// with textures of exactly width by height. created reports whether textures were
// allocated by this call.
func (c *FeedCache) GetOrCreate(key string, width, height int, p *Pack) (f *Feed, created bool, err error) {
	if width <= 0 || height <= 0 {
		return nil, false, fmt.Errorf("feed %q: %dx%d: %w", key, width, height, ErrInvalidSourceSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.feeds[key]; ok {
		if f.Width == width && f.Height == height {
			return f, false, nil
		}
		f.destroy()
		delete(c.feeds, key)
	}

	frame, err := c.device.CreateTexture(gpu.TextureDescriptor{
		Label:  key + "/frame",
		Width:  width,
		Height: height,
		Format: gpu.FormatRGBA8UnormSRGB,
	})
	if err != nil {
		return nil, false, fmt.Errorf("feed %q: %w", key, err)
	}
	mask, err := c.device.CreateTexture(gpu.TextureDescriptor{
		Label:  key + "/mask",
		Width:  width,
		Height: height,
	})
	if err != nil {
		frame.Destroy()
		return nil, false, fmt.Errorf("feed %q: %w", key, err)
	}

	f = &Feed{Key: key, Width: width, Height: height, Frame: frame, Mask: mask}
	f.kernels = bindings{
		seed:    seedKernel(f.Frame, p),
		resolve: resolveKernel(p),
		refine:  refineKernel(f.Frame, p),
		debug:   debugKernel(f.Frame, f.Mask, p),
	}
	c.feeds[key] = f
	return f, true, nil
}

// Get returns the feed for key, if any.
func (c *FeedCache) Get(key string) (*Feed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.feeds[key]
	return f, ok
}

// Close destroys every feed.
func (c *FeedCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, f := range c.feeds {
		f.destroy()
		delete(c.feeds, k)
	}
}
