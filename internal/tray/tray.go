// Package tray provides the operator system tray: a detection toggle and the last hit.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/colorhit/internal/controller"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onSettings func()
	onQuit     func()
	enabled    bool
	lastHit    string
	hits       map[string]int
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle  *systray.MenuItem
	menuLastHit *systray.MenuItem
	menuScore   *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
		hits:    make(map[string]int),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("colorhit")
	systray.SetTooltip("colorhit team detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle detection")
	systray.AddSeparator()

	t.menuLastHit = systray.AddMenuItem(t.lastHitTitle(), "Last detected hit")
	t.menuLastHit.Disable()
	t.menuScore = systray.AddMenuItem(t.scoreTitle(), "Hits per team")
	t.menuScore.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit colorhit")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.Toggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

// Toggle flips the enabled state and notifies the toggle callback.
func (t *Tray) Toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// SetEnabled updates the toggle after the state was changed elsewhere. The toggle callback
// is not called.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Hit records h as the last hit. It makes Tray a controller.HitSink.
func (t *Tray) Hit(h controller.Hit) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hits[h.Team]++
	t.lastHit = fmt.Sprintf("%s %s (%.2f, %.2f)", h.Team, h.Color, h.X, h.Y)
	if t.menuLastHit != nil {
		t.menuLastHit.SetTitle(t.lastHitTitle())
		t.menuScore.SetTitle(t.scoreTitle())
	}
}

func (t *Tray) lastHitTitle() string {
	if t.lastHit == "" {
		return "Last: none"
	}
	return "Last: " + t.lastHit
}

func (t *Tray) scoreTitle() string {
	return fmt.Sprintf("A %d : %d B", t.hits["A"], t.hits["B"])
}

// LastHit returns the description of the last hit, or "" if none arrived.
func (t *Tray) LastHit() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastHit
}

// Score returns the hit count of a team.
func (t *Tray) Score(team string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hits[team]
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
