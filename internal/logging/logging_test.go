package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/violencesense/vsense/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vsense.log")
	logger, err := New(config.LoggerConfig{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("stream subscribed")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "stream subscribed") {
		t.Errorf("log file missing info entry: %s", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry should be filtered at info level")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LoggerConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
