package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.TriggersDropped.Add(2)
	m.HitsEmitted.Add(1)
	m.ObservePrecisionScan(1500 * time.Microsecond)
	m.TrackDeviceMemory(func() int64 { return 4096 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"colorhit_triggers_dropped_total 2",
		"colorhit_hits_total 1",
		"colorhit_precision_scan_latency_us 1500",
		"colorhit_device_memory_bytes 4096",
		"colorhit_top_scans_total 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
