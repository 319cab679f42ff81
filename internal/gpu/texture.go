package gpu

import (
	"fmt"
	"image"
	"math"
	"sync/atomic"
)

// TextureFormat is the pixel format of a texture. Both formats store four bytes per pixel.
type TextureFormat int

const (
	FormatRGBA8Unorm TextureFormat = iota
	// FormatRGBA8UnormSRGB decodes sRGB bytes to linear values on Load.
	FormatRGBA8UnormSRGB
)

// TextureDescriptor describes a 2D texture.
type TextureDescriptor struct {
	Label  string
	Width  int
	Height int
	Format TextureFormat
}

// Texture is a 2D RGBA8 image resident on the device. Kernels must write each texel from
// at most one invocation per dispatch.
type Texture struct {
	device    *Device
	label     string
	width     int
	height    int
	format    TextureFormat
	pix       []byte
	destroyed atomic.Bool
}

var srgbToLinear [256]float32

func init() {
	for i := range srgbToLinear {
		c := float64(i) / 255
		if c <= 0.04045 {
			srgbToLinear[i] = float32(c / 12.92)
		} else {
			srgbToLinear[i] = float32(math.Pow((c+0.055)/1.055, 2.4))
		}
	}
}

// CreateTexture allocates a zeroed texture.
func (d *Device) CreateTexture(desc TextureDescriptor) (*Texture, error) {
	maxDim := d.limits.MaxTextureDimension
	if desc.Width <= 0 || desc.Height <= 0 || desc.Width > maxDim || desc.Height > maxDim {
		return nil, fmt.Errorf("texture %q: %dx%d exceeds [1,%d]: %w",
			desc.Label, desc.Width, desc.Height, maxDim, ErrAllocationFailed)
	}
	size := int64(desc.Width) * int64(desc.Height) * 4
	if err := d.reserve(size); err != nil {
		return nil, fmt.Errorf("texture %q: %w", desc.Label, err)
	}
	return &Texture{
		device: d,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		pix:    make([]byte, size),
	}, nil
}

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Width returns the width in texels.
func (t *Texture) Width() int { return t.width }

// Height returns the height in texels.
func (t *Texture) Height() int { return t.height }

// Format returns the texel format.
func (t *Texture) Format() TextureFormat { return t.format }

// Load returns the texel at (x, y) as normalized floats, decoding sRGB color channels.
func (t *Texture) Load(x, y int) [4]float32 {
	i := (y*t.width + x) * 4
	p := t.pix[i : i+4 : i+4]
	if t.format == FormatRGBA8UnormSRGB {
		return [4]float32{srgbToLinear[p[0]], srgbToLinear[p[1]], srgbToLinear[p[2]], float32(p[3]) / 255}
	}
	return [4]float32{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255}
}

// LoadRaw returns the stored bytes of the texel at (x, y).
func (t *Texture) LoadRaw(x, y int) [4]uint8 {
	i := (y*t.width + x) * 4
	return [4]uint8{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

// Store writes the texel at (x, y).
func (t *Texture) Store(x, y int, c [4]uint8) {
	i := (y*t.width + x) * 4
	copy(t.pix[i:i+4], c[:])
}

// Destroy releases the texture's device memory. Safe to call more than once.
func (t *Texture) Destroy() {
	if t.destroyed.CompareAndSwap(false, true) {
		t.device.release(int64(len(t.pix)))
	}
}

// IsDestroyed reports whether Destroy has been called.
func (t *Texture) IsDestroyed() bool {
	return t.destroyed.Load()
}

func (t *Texture) snapshot() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.width, t.height))
	copy(img.Pix, t.pix)
	return img
}
