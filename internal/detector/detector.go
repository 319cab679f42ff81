// Package detector locates the best matching region of two team colors in a frame using
// a two-pass seed and refine search on a compute device.
package detector

import (
	"context"
	"errors"
	"image"

	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/gpu"
)

var (
	// ErrInvalidSourceSize is returned when a source has a non-positive dimension.
	ErrInvalidSourceSize = errors.New("source has invalid size")
	// ErrNoActiveTeams is returned when a request selects neither team.
	ErrNoActiveTeams = errors.New("no active teams")
)

// TeamMask selects teams. Bit 0 is team A and bit 1 is team B.
type TeamMask uint32

const (
	TeamA     TeamMask = 1 << 0
	TeamB     TeamMask = 1 << 1
	BothTeams          = TeamA | TeamB
)

// Has reports whether every team of o is in m.
func (m TeamMask) Has(o TeamMask) bool {
	return m&o == o
}

func (m TeamMask) String() string {
	switch m & BothTeams {
	case TeamA:
		return "A"
	case TeamB:
		return "B"
	case BothTeams:
		return "AB"
	}
	return "-"
}

// Source is anything whose pixels can be uploaded into a frame texture. The texture is
// always exactly Width by Height.
type Source interface {
	Width() int
	Height() int
	CopyToTexture(q *gpu.Queue, t *gpu.Texture) error
}

// Params is the per-scan configuration that ends up in the uniform block.
type Params struct {
	// ROI in source pixels. The zero rectangle means the full frame.
	ROI    image.Rectangle
	Radius float32

	ColorA, ColorB         int
	ThresholdA, ThresholdB config.Threshold

	// MinMass is the refined pixel count a team must exceed in a precision scan.
	MinMass int
}

// NewParams builds scan parameters from the configuration and the ROI of one source.
func NewParams(c config.Config, roi *config.Rect) Params {
	a, b := c.Teams()
	return Params{
		ROI:        roi.Rectangle(),
		Radius:     c.RadiusPx,
		ColorA:     a,
		ColorB:     b,
		ThresholdA: c.Threshold(a),
		ThresholdB: c.Threshold(b),
		MinMass:    c.FrontMinArea,
	}
}

// Request describes one scan.
type Request struct {
	// Key names the feed, such as "top" or "front". Each key owns its own resources.
	Key    string
	Source Source
	Params Params
	Active TeamMask
	// Refine runs the micro refinement pass and applies the MinMass presence rule.
	Refine bool
	// Preview renders the debug composite into the feed's mask texture.
	Preview bool
}

// TeamResult is the outcome for one team.
type TeamResult struct {
	Present bool
	// Score is the presence score in [0,1].
	Score float64
	X, Y  float64
	// Mass is the refined pixel count. Always zero for quick scans.
	Mass uint32
	Key  uint32
}

// Result is the outcome of one scan in source pixel space.
type Result struct {
	A, B         TeamResult
	SourceWidth  int
	SourceHeight int
	Resized      bool
	ROI          image.Rectangle
}

// Team returns the result of a single-team mask.
func (r Result) Team(m TeamMask) TeamResult {
	if m == TeamB {
		return r.B
	}
	return r.A
}

// Detector runs scans.
type Detector interface {
	Detect(ctx context.Context, req Request) (Result, error)
	Close() error
}
