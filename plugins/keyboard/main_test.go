package main

import "testing"

func TestKeyForTeam(t *testing.T) {
	config := []byte(`{"A":{"key":"a"},"B":{"key":"b","modifiers":["shift"]}}`)

	tests := []struct {
		team    string
		want    string
		wantErr bool
	}{
		{team: "A", want: "a"},
		{team: "B", want: "b"},
		{team: "C", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.team, func(t *testing.T) {
			got, err := keyForTeam(config, tt.team)
			if (err != nil) != tt.wantErr {
				t.Fatalf("keyForTeam() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Key != tt.want {
				t.Errorf("key = %q, want %q", got.Key, tt.want)
			}
		})
	}
}

func TestBuildKeystrokeScript(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		modifiers []string
		want      string
	}{
		{"plain", "a", nil, `tell application "System Events" to keystroke "a"`},
		{"unknown modifier ignored", "a", []string{"hyper"}, `tell application "System Events" to keystroke "a"`},
		{"shift", "b", []string{"Shift"}, `tell application "System Events" to keystroke "b" using {shift down}`},
		{"two", "c", []string{"cmd", "alt"}, `tell application "System Events" to keystroke "c" using {command down, option down}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildKeystrokeScript(tt.key, tt.modifiers); got != tt.want {
				t.Errorf("buildKeystrokeScript() = %q, want %q", got, tt.want)
			}
		})
	}
}
