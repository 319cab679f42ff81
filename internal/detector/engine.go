package detector

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/gpu"
)

var detLog = log.With().Str("module", "detector").Logger()

// detectionContext serializes scans on one key.
type detectionContext struct {
	mu   sync.Mutex
	pack *Pack
}

// Engine runs scans on a device. Scans on different keys may run concurrently; scans on
// the same key are serialized.
type Engine struct {
	device *gpu.Device
	feeds  *FeedCache

	mu       sync.Mutex
	contexts map[string]*detectionContext
}

// NewEngine creates an engine on d.
func NewEngine(d *gpu.Device) *Engine {
	return &Engine{
		device:   d,
		feeds:    NewFeedCache(d),
		contexts: make(map[string]*detectionContext),
	}
}

func (e *Engine) context(key string) (*detectionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dc, ok := e.contexts[key]; ok {
		return dc, nil
	}
	p, err := newPack(e.device, key)
	if err != nil {
		return nil, fmt.Errorf("context %q: %w", key, err)
	}
	dc := &detectionContext{pack: p}
	e.contexts[key] = dc
	return dc, nil
}

// Detect runs one scan. Registers are reset at the start of every scan, so a failed scan
// does not affect the next one.
func (e *Engine) Detect(ctx context.Context, req Request) (Result, error) {
	if req.Source == nil {
		return Result{}, ErrInvalidSourceSize
	}
	w, h := req.Source.Width(), req.Source.Height()
	if w <= 0 || h <= 0 {
		return Result{}, fmt.Errorf("%dx%d: %w", w, h, ErrInvalidSourceSize)
	}
	if req.Active&BothTeams == 0 {
		return Result{}, ErrNoActiveTeams
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	dc, err := e.context(req.Key)
	if err != nil {
		return Result{}, err
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()

	feed, created, err := e.feeds.GetOrCreate(req.Key, w, h, dc.pack)
	if err != nil {
		return Result{}, err
	}
	if created {
		detLog.Debug().Str("key", req.Key).Int("width", w).Int("height", h).Msg("allocated feed")
	}

	roi := config.ClampROI(req.Params.ROI, w, h)
	stride := GridStride(req.Params.Radius)
	cx, cy := CellGrid(roi, stride)
	if err := dc.pack.ensureCells(cx * cy); err != nil {
		return Result{}, err
	}

	q := e.device.Queue()
	if err := dc.pack.ResetScan(q); err != nil {
		return Result{}, err
	}
	u := Uniform{
		ROI:    roi,
		Radius: req.Params.Radius,
		ColorA: uint32(req.Params.ColorA),
		ColorB: uint32(req.Params.ColorB),
		ThrA:   req.Params.ThresholdA,
		ThrB:   req.Params.ThresholdB,
		Active: req.Active,
	}
	if err := dc.pack.WriteUniform(q, u); err != nil {
		return Result{}, err
	}
	if err := req.Source.CopyToTexture(q, feed.Frame); err != nil {
		return Result{}, fmt.Errorf("upload %q: %w", req.Key, err)
	}

	enc := e.device.NewCommandEncoder(req.Key)
	p := dc.pack
	enc.Dispatch("seed", cx, cy, feed.kernels.seed, p.uniform, p.best[0], p.best[1], p.cells)
	enc.Dispatch("resolve", 1, 1, feed.kernels.resolve, p.uniform, p.best[0], p.best[1], p.cells)
	if req.Refine {
		tx, ty := TileGrid(roi)
		enc.Dispatch("refine", tx, ty, feed.kernels.refine, p.uniform, p.best[0], p.best[1],
			p.stats[0], p.stats[1], p.grid)
	}
	if req.Preview {
		enc.Dispatch("debug", ceilDiv(w, RefineTile), ceilDiv(h, RefineTile), feed.kernels.debug,
			p.uniform, p.best[0], p.best[1])
	}
	p.encodeReadBack(enc)
	if err := q.Submit(enc.Finish()); err != nil {
		return Result{}, fmt.Errorf("scan %q: %w", req.Key, err)
	}

	regs, err := p.mapStage()
	if err != nil {
		return Result{}, fmt.Errorf("scan %q: %w", req.Key, err)
	}

	res := Result{
		SourceWidth:  w,
		SourceHeight: h,
		Resized:      created,
		ROI:          roi,
	}
	res.A = decodeTeam(regs, 0, req)
	res.B = decodeTeam(regs, 1, req)
	return res, nil
}

func decodeTeam(r Registers, t int, req Request) TeamResult {
	if req.Active&(1<<t) == 0 {
		return TeamResult{}
	}
	key := r.Best[t][regKey]
	tr := TeamResult{
		Key:   key,
		Score: KeyScore(key),
		X:     float64(r.Best[t][regX]),
		Y:     float64(r.Best[t][regY]),
	}
	if !req.Refine {
		tr.Present = key != 0
		return tr
	}
	tr.Mass = r.Stats[t][statCount]
	tr.Present = key != 0 && tr.Mass > uint32(max(0, req.Params.MinMass))
	return tr
}

// Preview returns the last debug composite rendered for key.
func (e *Engine) Preview(ctx context.Context, key string) (*image.RGBA, error) {
	e.mu.Lock()
	dc, ok := e.contexts[key]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("preview %q: no scans yet", key)
	}

	dc.mu.Lock()
	feed, ok := e.feeds.Get(key)
	if !ok {
		dc.mu.Unlock()
		return nil, fmt.Errorf("preview %q: no feed", key)
	}
	imgc, errc := e.device.Queue().ReadTexture(feed.Mask)
	dc.mu.Unlock()

	select {
	case err := <-errc:
		if err != nil {
			return nil, err
		}
		return <-imgc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AllocatedBytes reports device memory in use.
func (e *Engine) AllocatedBytes() int64 {
	return e.device.AllocatedBytes()
}

// Close releases every feed and pack. The device stays open.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, dc := range e.contexts {
		dc.mu.Lock()
		dc.pack.Destroy()
		dc.mu.Unlock()
		delete(e.contexts, k)
	}
	e.feeds.Close()
	return nil
}
