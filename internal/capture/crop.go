package capture

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrCropFailed is returned when a zoom window cannot be placed inside a frame.
var ErrCropFailed = errors.New("crop window is empty")

// CropWindow returns the centered zoom window of visible for a zoom factor. Zoom values
// below 1 are treated as 1. Width and height are even and the window stays inside visible.
func CropWindow(visible image.Rectangle, zoom float64) (image.Rectangle, error) {
	if zoom < 1 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		zoom = 1
	}
	w, h := visible.Dx(), visible.Dy()

	cw := toEven(float64(w) / zoom)
	ch := toEven(float64(h) / zoom)
	if cw <= 0 || ch <= 0 {
		cw, ch = w&^1, h&^1
	}
	if cw < 2 || ch < 2 {
		return image.Rectangle{}, fmt.Errorf("%v at zoom %.2f: %w", visible, zoom, ErrCropFailed)
	}

	x := visible.Min.X + (w-cw)>>1
	y := visible.Min.Y + (h-ch)>>1
	return image.Rect(x, y, x+cw, y+ch), nil
}

// ZoomFor returns the zoom factor that crops visible down to at most targetW by targetH.
// A non-positive target keeps the full frame.
func ZoomFor(visible image.Rectangle, targetW, targetH int) float64 {
	if targetW <= 0 || targetH <= 0 {
		return 1
	}
	r := math.Max(float64(visible.Dx())/float64(targetW), float64(visible.Dy())/float64(targetH))
	return math.Max(1, r)
}

func toEven(v float64) int {
	return int(math.Round(v)) &^ 1
}

// Crop returns a new frame holding a copy of the zoom window of raw. raw is left untouched
// and still belongs to the caller.
func Crop(raw *Frame, zoom float64) (*Frame, error) {
	if raw == nil || raw.Released() {
		return nil, fmt.Errorf("crop: %w", ErrCropFailed)
	}
	win, err := CropWindow(raw.Visible, zoom)
	if err != nil {
		return nil, err
	}
	if !win.In(image.Rect(0, 0, raw.mat.Cols(), raw.mat.Rows())) {
		return nil, fmt.Errorf("window %v outside %dx%d: %w", win, raw.mat.Cols(), raw.mat.Rows(), ErrCropFailed)
	}

	region := raw.mat.Region(win)
	defer region.Close()
	return NewFrame(region.Clone(), raw.Timestamp), nil
}
