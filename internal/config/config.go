// Package config holds the tunable detection settings and their per-key persistence.
package config

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

var cfgLog = log.With().Str("module", "config").Logger()

// Palette indices of the four team colors.
const (
	Red = iota
	Green
	Blue
	Yellow
	PaletteSize
)

var paletteNames = [PaletteSize]string{"red", "green", "blue", "yellow"}

// TeamIndex returns the palette index of a team color name.
func TeamIndex(name string) (int, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, p := range paletteNames {
		if p == n {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown team color %q", name)
}

// TeamName returns the color name of a palette index.
func TeamName(idx int) string {
	if idx < 0 || idx >= PaletteSize {
		return "unknown"
	}
	return paletteNames[idx]
}

// Top source modes.
const (
	TopModeRemote = 0
	TopModeLocal  = 1
)

// Threshold is the classifier gate for one palette color.
type Threshold struct {
	DomThr float32
	SatMin float32
	YMin   float32
	YMax   float32
}

// Rect is a region of interest in source pixels. Max is exclusive.
type Rect struct {
	MinX int `json:"minX"`
	MinY int `json:"minY"`
	MaxX int `json:"maxX"`
	MaxY int `json:"maxY"`
}

// Rectangle converts r to an image.Rectangle. A nil or empty rect yields the zero
// rectangle, which callers treat as the full frame.
func (r *Rect) Rectangle() image.Rectangle {
	if r == nil || r.MaxX <= r.MinX || r.MaxY <= r.MinY {
		return image.Rectangle{}
	}
	return image.Rect(r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// Config holds everything the controller reads once per scan.
type Config struct {
	// TopURL is the top camera: a device index such as "0" or a stream URL.
	TopURL string `json:"url"`
	// FrontURL is the front camera, same format as TopURL.
	FrontURL string `json:"frontURL"`
	TopMode  int    `json:"topMode"`

	CamW      int     `json:"camW"`
	CamH      int     `json:"camH"`
	TopZoom   float64 `json:"topZoom"`
	FrontZoom float64 `json:"zoom"`
	TopFPS    int     `json:"topFPS"`

	// TopMinArea is the minimum presence score in [0,1] for the top loop to fire.
	TopMinArea float64 `json:"topMinArea"`
	// FrontMinArea is the refined pixel mass a precision scan hit must exceed. The refine
	// pass only counts pixels within RadiusPx of the seed, so it must stay below
	// MaxFrontMass. Zero accepts any seeded team.
	FrontMinArea int `json:"frontMinArea"`

	TeamA string `json:"teamA"`
	TeamB string `json:"teamB"`

	DomThr [PaletteSize]float32 `json:"domThr"`
	SatMin [PaletteSize]float32 `json:"satMin"`
	YMin   [PaletteSize]float32 `json:"yMin"`
	YMax   [PaletteSize]float32 `json:"yMax"`

	RadiusPx float32 `json:"radiusPx"`

	TopROI   *Rect `json:"roiTop"`
	FrontROI *Rect `json:"roiFront"`

	// Preview enables the debug composite on every scan.
	Preview bool `json:"preview"`
}

// DefaultConfig returns a Config with the stock calibration.
func DefaultConfig() Config {
	c := Config{
		TopURL:       "http://192.168.43.1:8080/video",
		FrontURL:     "0",
		TopMode:      TopModeLocal,
		CamW:         1920,
		CamH:         1080,
		TopZoom:      1,
		FrontZoom:    1,
		TopFPS:       30,
		TopMinArea:   0.025,
		FrontMinArea: 0,
		TeamA:        "green",
		TeamB:        "blue",
		RadiusPx:     18,
	}
	for i := 0; i < PaletteSize; i++ {
		c.DomThr[i] = 0.10
		c.SatMin[i] = 0.12
		c.YMin[i] = 0
		c.YMax[i] = 0.70
	}
	return c
}

// MaxFrontMass is the area of the refine disc, an upper bound on a precision scan's mass.
func (c Config) MaxFrontMass() float64 {
	r := float64(c.RadiusPx)
	return math.Pi * r * r
}

// Validate reports the first setting that the detector cannot run with.
func (c Config) Validate() error {
	if _, err := TeamIndex(c.TeamA); err != nil {
		return fmt.Errorf("teamA: %w", err)
	}
	if _, err := TeamIndex(c.TeamB); err != nil {
		return fmt.Errorf("teamB: %w", err)
	}
	if c.CamW < 2 || c.CamH < 2 {
		return fmt.Errorf("camera size %dx%d too small", c.CamW, c.CamH)
	}
	if c.TopZoom < 1 || c.FrontZoom < 1 {
		return errors.New("zoom must be at least 1")
	}
	if c.TopFPS <= 0 {
		return fmt.Errorf("topFPS %d must be positive", c.TopFPS)
	}
	if c.RadiusPx < 1 || math.IsNaN(float64(c.RadiusPx)) {
		return fmt.Errorf("radiusPx %v must be at least 1", c.RadiusPx)
	}
	if c.TopMinArea < 0 || c.TopMinArea > 1 {
		return fmt.Errorf("topMinArea %v outside [0,1]", c.TopMinArea)
	}
	if c.FrontMinArea < 0 {
		return fmt.Errorf("frontMinArea %d is negative", c.FrontMinArea)
	}
	if limit := c.MaxFrontMass(); float64(c.FrontMinArea) >= limit {
		return fmt.Errorf("frontMinArea %d unreachable with radiusPx %v (max mass %.0f)",
			c.FrontMinArea, c.RadiusPx, limit)
	}
	if c.TopMode != TopModeRemote && c.TopMode != TopModeLocal {
		return fmt.Errorf("topMode %d unknown", c.TopMode)
	}
	for i := 0; i < PaletteSize; i++ {
		if c.YMin[i] > c.YMax[i] {
			return fmt.Errorf("%s: yMin %v above yMax %v", paletteNames[i], c.YMin[i], c.YMax[i])
		}
	}
	return nil
}

// Threshold returns the classifier gate for a palette index.
func (c Config) Threshold(idx int) Threshold {
	return Threshold{
		DomThr: c.DomThr[idx],
		SatMin: c.SatMin[idx],
		YMin:   c.YMin[idx],
		YMax:   c.YMax[idx],
	}
}

// Teams returns the palette indices of team A and team B. Unknown names fall back to
// the defaults.
func (c Config) Teams() (a, b int) {
	a, err := TeamIndex(c.TeamA)
	if err != nil {
		a = Green
	}
	b, err = TeamIndex(c.TeamB)
	if err != nil {
		b = Blue
	}
	return a, b
}

// ClampROI resolves r against a source of w by h pixels. The result is the full frame
// when r is absent, invalid, or entirely outside the source.
func ClampROI(r image.Rectangle, w, h int) image.Rectangle {
	full := image.Rect(0, 0, w, h)
	if r.Empty() {
		return full
	}
	c := r.Intersect(full)
	if c.Empty() {
		return full
	}
	return c
}

// Settings is a string key/value store.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

func (c *Config) fields() map[string]any {
	return map[string]any{
		"url":          &c.TopURL,
		"frontURL":     &c.FrontURL,
		"topMode":      &c.TopMode,
		"camW":         &c.CamW,
		"camH":         &c.CamH,
		"topZoom":      &c.TopZoom,
		"zoom":         &c.FrontZoom,
		"topFPS":       &c.TopFPS,
		"topMinArea":   &c.TopMinArea,
		"frontMinArea": &c.FrontMinArea,
		"teamA":        &c.TeamA,
		"teamB":        &c.TeamB,
		"domThr":       &c.DomThr,
		"satMin":       &c.SatMin,
		"yMin":         &c.YMin,
		"yMax":         &c.YMax,
		"radiusPx":     &c.RadiusPx,
		"roiTop":       &c.TopROI,
		"roiFront":     &c.FrontROI,
		"preview":      &c.Preview,
	}
}

// Keys returns the persisted setting names.
func Keys() []string {
	var c Config
	keys := make([]string, 0, 20)
	for k := range c.fields() {
		keys = append(keys, k)
	}
	return keys
}

// Load reads every setting from s on top of the defaults. A missing key or a value that
// does not parse keeps the default for that key only.
func Load(ctx context.Context, s Settings) (Config, error) {
	c := DefaultConfig()
	for key, ptr := range c.fields() {
		raw, err := s.Get(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return c, ctx.Err()
			}
			continue
		}
		if err := decodeInto(raw, ptr); err != nil {
			cfgLog.Warn().Err(err).Str("key", key).Msg("ignoring stored setting")
		}
	}
	return c, nil
}

func decodeInto(raw string, ptr any) error {
	switch p := ptr.(type) {
	case *int:
		v := *p
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return err
		}
		*p = v
	case *float64:
		v := *p
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return err
		}
		*p = v
	case *float32:
		v := *p
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return err
		}
		*p = v
	case *string:
		v := *p
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return err
		}
		*p = v
	case *bool:
		v := *p
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return err
		}
		*p = v
	case *[PaletteSize]float32:
		var v []float32
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return err
		}
		if len(v) != PaletteSize {
			return fmt.Errorf("want %d values, got %d", PaletteSize, len(v))
		}
		copy(p[:], v)
	case **Rect:
		var v *Rect
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return err
		}
		*p = v
	default:
		return fmt.Errorf("unsupported setting type %T", ptr)
	}
	return nil
}

// Save writes every setting of c to s.
func Save(ctx context.Context, s Settings, c Config) error {
	for key, ptr := range c.fields() {
		if err := SaveKey(ctx, s, key, valueOf(ptr)); err != nil {
			return err
		}
	}
	return nil
}

// SaveKey writes one setting.
func SaveKey(ctx context.Context, s Settings, key string, value any) error {
	raw, err := sonic.MarshalString(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func valueOf(ptr any) any {
	switch p := ptr.(type) {
	case *int:
		return *p
	case *float64:
		return *p
	case *float32:
		return *p
	case *string:
		return *p
	case *bool:
		return *p
	case *[PaletteSize]float32:
		return p[:]
	case **Rect:
		return *p
	}
	return nil
}
