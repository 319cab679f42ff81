// Package testdata builds synthetic camera scenes for pipeline tests.
package testdata

import (
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/colorhit/internal/controller"
	"github.com/ayusman/colorhit/internal/detector"
)

// Colors that classify as the matching palette entry under the default thresholds.
var (
	Green = color.RGBA{0, 200, 0, 255}
	Blue  = color.RGBA{0, 0, 200, 255}
	Black = color.RGBA{0, 0, 0, 255}
)

// Scene is an opaque frame drawn from simple shapes.
type Scene struct {
	img *image.RGBA
}

// NewScene returns a black w x h scene.
func NewScene(w, h int) *Scene {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+3] = 255
	}
	return &Scene{img: img}
}

// Disc fills the pixels within r of (cx, cy).
func (s *Scene) Disc(cx, cy, r int, c color.RGBA) *Scene {
	b := image.Rect(cx-r, cy-r, cx+r+1, cy+r+1).Intersect(s.img.Rect)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				s.img.SetRGBA(x, y, c)
			}
		}
	}
	return s
}

// Rect fills r.
func (s *Scene) Rect(r image.Rectangle, c color.RGBA) *Scene {
	r = r.Intersect(s.img.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			s.img.SetRGBA(x, y, c)
		}
	}
	return s
}

// Image returns the scene pixels. Later drawing calls modify it.
func (s *Scene) Image() *image.RGBA {
	return s.img
}

// Mat converts the scene to a BGR mat. The caller closes it.
func (s *Scene) Mat() (gocv.Mat, error) {
	return gocv.ImageToMatRGB(s.img)
}

// Frame is an in-memory frame with a fixed capture time.
type Frame struct {
	*detector.ImageSource
	TS int64
}

func (f *Frame) CaptureTime() int64 { return f.TS }
func (f *Frame) Release()           {}

// Feed hands out the current scene with a fresh capture time on every call.
type Feed struct {
	mu    sync.Mutex
	img   image.Image
	ts    int64
	calls int
}

// NewFeed creates a feed showing img. A nil img yields no frames.
func NewFeed(img image.Image) *Feed {
	return &Feed{img: img}
}

// Show replaces the scene for subsequent frames.
func (f *Feed) Show(img image.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.img = img
}

// Calls returns how many frames were requested.
func (f *Feed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Feed) Next() controller.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.img == nil {
		return nil
	}
	f.ts++
	return &Frame{ImageSource: detector.NewImageSource(f.img), TS: f.ts}
}
