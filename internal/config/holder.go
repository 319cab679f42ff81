package config

import "sync/atomic"

// Holder shares the live configuration between the HTTP API and the scan loops.
type Holder struct {
	v atomic.Pointer[Config]
}

// NewHolder returns a holder initialized with c.
func NewHolder(c Config) *Holder {
	h := &Holder{}
	h.Set(c)
	return h
}

// Get returns a copy of the current configuration. ROIs are copied too, so callers may
// decode into the result.
func (h *Holder) Get() Config {
	p := h.v.Load()
	if p == nil {
		return DefaultConfig()
	}
	c := *p
	c.TopROI = copyRect(c.TopROI)
	c.FrontROI = copyRect(c.FrontROI)
	return c
}

func copyRect(r *Rect) *Rect {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Set replaces the current configuration.
func (h *Holder) Set(c Config) {
	c.TopROI = copyRect(c.TopROI)
	c.FrontROI = copyRect(c.FrontROI)
	h.v.Store(&c)
}
