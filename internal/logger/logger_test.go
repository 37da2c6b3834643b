package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestBuildLevels(t *testing.T) {
	info, err := New(false, false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if info.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug must be disabled by default")
	}

	debug, err := New(true, true)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !debug.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug flag must enable debug level")
	}
}

func TestBuildJSONEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")

	l, err := Build(Options{JSON: true, Output: path, Fields: map[string]any{"mode": "schedule"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l.Info("search finished")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if entry["step"] != "search finished" || entry["level"] != "info" || entry["mode"] != "schedule" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
