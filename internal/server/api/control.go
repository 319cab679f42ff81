package api

import "net/http"

// Toggle is the detection on/off switch.
type Toggle interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// ControlHandler serves GET and PUT /api/enabled.
type ControlHandler struct {
	toggle Toggle
}

// NewControlHandler creates a ControlHandler for t.
func NewControlHandler(t Toggle) *ControlHandler {
	return &ControlHandler{toggle: t}
}

type enabledBody struct {
	Enabled *bool `json:"enabled"`
}

// ServeHTTP implements the http.Handler interface.
func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var body enabledBody
		if err := readJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if body.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.toggle.SetEnabled(*body.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enabled := h.toggle.IsEnabled()
	writeJSON(w, http.StatusOK, enabledBody{Enabled: &enabled})
}
