// Package plugin runs external hook executables for every hit.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/ayusman/colorhit/internal/controller"
)

// Manifest describes a plugin's metadata and the teams it reacts to.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Teams lists "A" and/or "B". Empty means every team.
	Teams []string `json:"teams,omitempty"`
	// Config is passed unchanged with every request.
	Config json.RawMessage `json:"config,omitempty"`
}

// Request is written to the plugin's stdin.
type Request struct {
	Event  string          `json:"event"`
	Hit    controller.Hit  `json:"hit"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Wants reports whether the plugin subscribes to team.
func (p *Plugin) Wants(team string) bool {
	return len(p.Manifest.Teams) == 0 || slices.Contains(p.Manifest.Teams, team)
}
