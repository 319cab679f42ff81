package server

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// Preview stream defaults.
const (
	previewInterval = 66 * time.Millisecond // ~15 FPS
	previewMaxWidth = 640
)

// PreviewHandler serves the debug composite of a feed as MJPEG at /api/preview/{key}.
// With ?once=1 a single JPEG is returned.
type PreviewHandler struct {
	source   Previewer
	interval time.Duration
	maxWidth int
}

// NewPreviewHandler creates a new PreviewHandler reading from p.
func NewPreviewHandler(p Previewer) *PreviewHandler {
	return &PreviewHandler{source: p, interval: previewInterval, maxWidth: previewMaxWidth}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/preview/")
	if key == "" || strings.Contains(key, "/") {
		http.NotFound(w, r)
		return
	}

	if r.URL.Query().Get("once") != "" {
		jpg, err := h.frame(r.Context(), key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		jpg, err := h.frame(r.Context(), key)
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpg))
		w.Write(jpg)
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// frame renders one preview as JPEG.
func (h *PreviewHandler) frame(ctx context.Context, key string) ([]byte, error) {
	img, err := h.source.Preview(ctx, key)
	if err != nil {
		return nil, err
	}
	return encodeJPEG(downscale(img, h.maxWidth))
}

// downscale shrinks img to at most maxWidth pixels wide, keeping the aspect ratio.
func downscale(img *image.RGBA, maxWidth int) *image.RGBA {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodeJPEG(img *image.RGBA) ([]byte, error) {
	bgra, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("preview to mat: %w", err)
	}
	defer bgra.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(bgra, &bgr, gocv.ColorBGRAToBGR)

	buf, err := gocv.IMEncode(".jpg", bgr)
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
