package api

import (
	"net/http"

	"github.com/ayusman/colorhit/internal/config"
)

// ConfigHandler serves GET and PUT /api/config.
type ConfigHandler struct {
	holder   *config.Holder
	settings config.Settings
	onChange func(config.Config)
}

// NewConfigHandler creates a ConfigHandler. settings may be nil to keep changes in memory
// only. onChange, if set, is called after every accepted update.
func NewConfigHandler(h *config.Holder, s config.Settings, onChange func(config.Config)) *ConfigHandler {
	return &ConfigHandler{holder: h, settings: s, onChange: onChange}
}

// ServeHTTP implements the http.Handler interface.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.holder.Get())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// update merges the request body into the current configuration. Keys that are absent
// keep their value.
func (h *ConfigHandler) update(w http.ResponseWriter, r *http.Request) {
	c := h.holder.Get()
	if err := readJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := c.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.settings != nil {
		if err := config.Save(r.Context(), h.settings, c); err != nil {
			apiLog.Error().Err(err).Msg("persist config")
			writeError(w, http.StatusInternalServerError, "Failed to save config")
			return
		}
	}
	h.holder.Set(c)
	if h.onChange != nil {
		h.onChange(c)
	}
	apiLog.Info().Str("teamA", c.TeamA).Str("teamB", c.TeamB).Msg("config updated")

	writeJSON(w, http.StatusOK, c)
}
