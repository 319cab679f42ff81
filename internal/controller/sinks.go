package controller

import (
	"time"

	"github.com/google/uuid"
)

// Hit is one detected impact of a team on the front source.
type Hit struct {
	ID    uuid.UUID `json:"id"`
	Team  string    `json:"team"`
	Color string    `json:"color"`
	// X and Y are normalized to [0,1] by the front frame size.
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
	Mass  uint32  `json:"mass"`
	// FrameTime is the capture timestamp of the front frame in milliseconds.
	FrameTime int64     `json:"frameTime"`
	At        time.Time `json:"at"`
}

// HitSink receives hits. Implementations must not block for long.
type HitSink interface {
	Hit(h Hit)
}

// SinkFunc adapts a function to HitSink.
type SinkFunc func(h Hit)

func (f SinkFunc) Hit(h Hit) { f(h) }

// MultiSink fans a hit out to every sink in order.
type MultiSink []HitSink

func (m MultiSink) Hit(h Hit) {
	for _, s := range m {
		if s != nil {
			s.Hit(h)
		}
	}
}
