package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/ayusman/colorhit/internal/controller"
)

// writeScript creates an executable shell plugin in a temp dir.
func writeScript(t *testing.T, name, body string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return &Plugin{
		Manifest:   Manifest{Name: name, Version: "1.0.0", Executable: name},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := writeScript(t, "ok.sh", "cat > /dev/null\necho '{\"success\":true,\"data\":{\"message\":\"hello world\"}}'\n")

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, &Request{Event: "hit"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}
	if response.Error != "" {
		t.Errorf("expected empty error, got %q", response.Error)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "hello world" {
		t.Errorf("expected message 'hello world', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	// Echo the request back as the response data.
	plugin := writeScript(t, "echo.sh", "printf '{\"success\":true,\"data\":'\ncat\nprintf '}'\n")

	hit := controller.Hit{ID: uuid.New(), Team: "A", Color: "red", X: 0.5, Y: 0.5}
	req := &Request{Event: "hit", Hit: hit, Config: json.RawMessage(`{"key":"space"}`)}

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, req)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var echoed Request
	if err := sonic.Unmarshal(response.Data, &echoed); err != nil {
		t.Fatalf("failed to decode echoed request: %v", err)
	}
	if echoed.Event != "hit" || echoed.Hit.ID != hit.ID || echoed.Hit.Color != "red" {
		t.Errorf("echoed request = %+v", echoed)
	}
	if string(echoed.Config) != `{"key":"space"}` {
		t.Errorf("echoed config = %s", echoed.Config)
	}
}

func TestExecutor_Execute_Errors(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		timeout time.Duration
		wantErr string
	}{
		{"non-zero exit with stderr", "echo boom >&2\nexit 3\n", 5 * time.Second, "stderr: boom"},
		{"invalid response", "echo not-json\n", 5 * time.Second, "failed to parse plugin response"},
		{"timeout", "exec sleep 5\n", 100 * time.Millisecond, "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := writeScript(t, "fail.sh", tt.script)
			_, err := NewExecutor(tt.timeout).Execute(context.Background(), plugin, &Request{Event: "hit"})
			if err == nil {
				t.Fatal("Execute() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
