package plugin

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/colorhit/internal/controller"
)

var plgLog = log.With().Str("module", "plugin").Logger()

// Hooks runs every subscribed plugin for each hit. A plugin still busy with an earlier
// hit skips the new one. Hooks is a controller.HitSink.
type Hooks struct {
	manager  *Manager
	executor *Executor

	mu      sync.Mutex
	busy    map[string]bool
	skipped int
	closed  bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHooks creates hooks over the plugins of m.
func NewHooks(m *Manager, e *Executor) *Hooks {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hooks{
		manager:  m,
		executor: e,
		busy:     make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Hit starts the plugins subscribed to h.Team. It does not wait for them. Hits after
// Close are dropped.
func (k *Hooks) Hit(h controller.Hit) {
	for _, p := range k.manager.List() {
		if !p.Wants(h.Team) {
			continue
		}
		if !k.acquire(p.Manifest.Name) {
			continue
		}

		go func(p *Plugin) {
			defer k.wg.Done()
			defer k.release(p.Manifest.Name)
			k.run(p, h)
		}(p)
	}
}

func (k *Hooks) run(p *Plugin, h controller.Hit) {
	resp, err := k.executor.Execute(k.ctx, p, &Request{Event: "hit", Hit: h, Config: p.Manifest.Config})
	if err != nil {
		plgLog.Warn().Err(err).Str("plugin", p.Manifest.Name).Msg("hook failed")
		return
	}
	if !resp.Success {
		plgLog.Warn().Str("plugin", p.Manifest.Name).Str("error", resp.Error).Msg("hook reported failure")
		return
	}
	plgLog.Debug().Str("plugin", p.Manifest.Name).Str("hit", h.ID.String()).Msg("hook done")
}

// acquire marks name busy and registers the run with wg. The Add happens under mu so
// Close never waits on a group that can still grow.
func (k *Hooks) acquire(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return false
	}
	if k.busy[name] {
		k.skipped++
		plgLog.Debug().Str("plugin", name).Msg("hook busy, skipping hit")
		return false
	}
	k.busy[name] = true
	k.wg.Add(1)
	return true
}

func (k *Hooks) release(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.busy, name)
}

// Skipped returns how many hook runs were skipped because the plugin was busy.
func (k *Hooks) Skipped() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.skipped
}

// Wait blocks until every started hook has finished.
func (k *Hooks) Wait() {
	k.wg.Wait()
}

// Close cancels running hooks and waits for them.
func (k *Hooks) Close() {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()

	k.cancel()
	k.wg.Wait()
}
