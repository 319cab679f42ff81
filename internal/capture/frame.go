package capture

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/ayusman/colorhit/internal/gpu"
)

// Frame is a BGR camera frame with a single owner. Release must be called exactly once
// by whoever holds it last; further calls are no-ops.
type Frame struct {
	mat gocv.Mat
	// Visible is the region of the Mat that holds picture content.
	Visible image.Rectangle
	// Timestamp is the capture time in milliseconds.
	Timestamp int64

	once     sync.Once
	released atomic.Bool
}

// NewFrame takes ownership of mat. The whole Mat is visible.
func NewFrame(mat gocv.Mat, timestamp int64) *Frame {
	return &Frame{
		mat:       mat,
		Visible:   image.Rect(0, 0, mat.Cols(), mat.Rows()),
		Timestamp: timestamp,
	}
}

// Mat returns the underlying Mat. It is only valid until Release.
func (f *Frame) Mat() *gocv.Mat {
	return &f.mat
}

func (f *Frame) Width() int  { return f.Visible.Dx() }
func (f *Frame) Height() int { return f.Visible.Dy() }

// CaptureTime returns Timestamp.
func (f *Frame) CaptureTime() int64 { return f.Timestamp }

// Release frees the Mat.
func (f *Frame) Release() {
	f.once.Do(func() {
		f.mat.Close()
		f.released.Store(true)
	})
}

// Released reports whether Release has run.
func (f *Frame) Released() bool {
	return f.released.Load()
}

// CopyToTexture converts the visible region to RGBA and uploads it.
func (f *Frame) CopyToTexture(q *gpu.Queue, t *gpu.Texture) error {
	if f.Released() {
		return fmt.Errorf("frame at %d already released", f.Timestamp)
	}

	src := f.mat
	if f.Visible != image.Rect(0, 0, f.mat.Cols(), f.mat.Rows()) {
		src = f.mat.Region(f.Visible)
		defer src.Close()
	}

	code := gocv.ColorBGRToRGBA
	switch f.mat.Channels() {
	case 1:
		code = gocv.ColorGrayToRGBA
	case 4:
		code = gocv.ColorBGRAToRGBA
	}

	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(src, &rgba, code)
	if rgba.Empty() {
		return fmt.Errorf("frame at %d: color conversion produced no data", f.Timestamp)
	}
	return q.WriteTexture(t, rgba.ToBytes(), rgba.Step(), false)
}
