package detector

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/ayusman/colorhit/internal/gpu"
)

// ImageSource adapts an in-memory image to Source. Pixels are treated as sRGB.
type ImageSource struct {
	img image.Image
}

// NewImageSource wraps img. The image must not change while a scan is running.
func NewImageSource(img image.Image) *ImageSource {
	return &ImageSource{img: img}
}

func (s *ImageSource) Width() int  { return s.img.Bounds().Dx() }
func (s *ImageSource) Height() int { return s.img.Bounds().Dy() }

// CopyToTexture uploads the image, converting to RGBA when needed.
func (s *ImageSource) CopyToTexture(q *gpu.Queue, t *gpu.Texture) error {
	b := s.img.Bounds()
	rgba, ok := s.img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Copy(rgba, image.Point{}, s.img, b, draw.Src, nil)
	}
	return q.WriteTexture(t, rgba.Pix, rgba.Stride, false)
}
