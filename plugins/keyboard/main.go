// Package main is a hit hook that presses a key per team, for games that read the
// keyboard. It sends keystrokes via AppleScript on macOS.
//
// Manifest example:
//
//	{"name":"keyboard","executable":"keyboard","config":{"A":{"key":"a"},"B":{"key":"b","modifiers":["shift"]}}}
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/ayusman/colorhit/internal/plugin"
)

// KeystrokeParams defines the key pressed for one team.
type KeystrokeParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// modifierMap maps user-friendly modifier names to AppleScript equivalents.
var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

func main() {
	var req plugin.Request
	if err := sonic.ConfigDefault.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(plugin.Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	if req.Event != "hit" {
		writeResponse(plugin.Response{Error: fmt.Sprintf("unknown event: %s", req.Event)})
		return
	}

	p, err := keyForTeam(req.Config, req.Hit.Team)
	if err != nil {
		writeResponse(plugin.Response{Error: err.Error()})
		return
	}
	if err := runAppleScript(buildKeystrokeScript(p.Key, p.Modifiers)); err != nil {
		writeResponse(plugin.Response{Error: fmt.Sprintf("keystroke failed: %v", err)})
		return
	}

	writeResponse(plugin.Response{Success: true})
}

// keyForTeam picks the team's keystroke from the plugin config.
func keyForTeam(config []byte, team string) (KeystrokeParams, error) {
	var keys map[string]KeystrokeParams
	if err := sonic.Unmarshal(config, &keys); err != nil {
		return KeystrokeParams{}, fmt.Errorf("failed to parse config: %w", err)
	}
	p, ok := keys[team]
	if !ok || p.Key == "" {
		return KeystrokeParams{}, fmt.Errorf("no key configured for team %q", team)
	}
	return p, nil
}

// buildKeystrokeScript generates an AppleScript for the given key and modifiers.
func buildKeystrokeScript(key string, modifiers []string) string {
	var appleModifiers []string
	for _, mod := range modifiers {
		if appleMod, ok := modifierMap[strings.ToLower(mod)]; ok {
			appleModifiers = append(appleModifiers, appleMod)
		}
	}

	if len(appleModifiers) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, key, strings.Join(appleModifiers, ", "))
}

func writeResponse(resp plugin.Response) {
	out, err := sonic.Marshal(resp)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}

// runAppleScript executes an AppleScript command and returns any error.
func runAppleScript(script string) error {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
