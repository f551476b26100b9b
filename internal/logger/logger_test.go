package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/petkit-ble/internal/config"
)

func TestOpenOutput(t *testing.T) {
	tests := []struct {
		output string
		want   *os.File
	}{
		{"stdout", os.Stdout},
		{"STDOUT", os.Stdout},
		{"stderr", os.Stderr},
		{"", os.Stderr},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			w, closer, err := openOutput(tt.output)
			if err != nil {
				t.Fatalf("openOutput(%q): %v", tt.output, err)
			}
			defer closer()
			if w != tt.want {
				t.Errorf("openOutput(%q) returned %v, want %v", tt.output, w, tt.want.Name())
			}
		})
	}
}

func TestOpenOutputInvalidPath(t *testing.T) {
	_, _, err := openOutput("/nonexistent/dir/log.txt")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestNewTextFileOutputFiltersLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petkit.log")

	log, closer, err := New(config.LogConfig{Level: "warn", Format: "text", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("should be filtered")
	log.Warn("[BLE] connection lost", "address", "A1:B2:C3:D4:E5:F6")
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "should be filtered") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "connection lost") || !strings.Contains(out, "address=A1:B2:C3:D4:E5:F6") {
		t.Errorf("log file missing warn entry: %q", out)
	}
}

func TestNewJSONFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petkit.json")

	log, closer, err := New(config.LogConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("frame", "cmd", 210)
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("invalid JSON: %v, output: %s", err, data)
	}
	if entry["msg"] != "frame" {
		t.Errorf("msg = %v, want %q", entry["msg"], "frame")
	}
	if entry["cmd"] != float64(210) {
		t.Errorf("cmd = %v, want 210", entry["cmd"])
	}
}

func TestNewInvalidOutput(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "info", Output: "/nonexistent/dir/app.log"})
	if err == nil {
		t.Error("expected error for invalid output path")
	}
}
