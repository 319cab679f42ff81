package detector

import (
	"context"
	"sync"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the scan results per feed key.
type MockDetector struct {
	mu      sync.Mutex
	results map[string]Result
	err     error
	calls   map[string]int
	last    map[string]Request
	gate    chan struct{}
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		results: make(map[string]Result),
		calls:   make(map[string]int),
		last:    make(map[string]Request),
	}
}

// SetResult sets the result returned for scans on key.
func (m *MockDetector) SetResult(key string, r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = r
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Block makes subsequent Detect calls wait until Release is called or their context ends.
func (m *MockDetector) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// Release unblocks every waiting Detect call.
func (m *MockDetector) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls returns how many scans were started on key.
func (m *MockDetector) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

// LastRequest returns the most recent request on key.
func (m *MockDetector) LastRequest(key string) Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[key]
}

// Detect returns the pre-configured result or error.
func (m *MockDetector) Detect(ctx context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.calls[req.Key]++
	m.last[req.Key] = req
	gate := m.gate
	res, err := m.results[req.Key], m.err
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if err != nil {
		return Result{}, err
	}
	if req.Active&BothTeams == 0 {
		return Result{}, ErrNoActiveTeams
	}
	if !req.Active.Has(TeamA) {
		res.A = TeamResult{}
	}
	if !req.Active.Has(TeamB) {
		res.B = TeamResult{}
	}
	return res, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
