package mock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultScenario(t *testing.T) {
	sc := DefaultScenario()
	if len(sc.Cameras) != 4 {
		t.Fatalf("cameras = %d, want 4", len(sc.Cameras))
	}
	if sc.Threshold != 0.7 {
		t.Errorf("threshold = %v, want 0.7", sc.Threshold)
	}
	if err := sc.normalize(); err != nil {
		t.Errorf("default scenario invalid: %v", err)
	}
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
interval: 250ms
threshold: 0.8
cameras:
  - id: dock
    name: Loading Dock
    url: rtsp://10.1.0.5/live
    fps: 12
    baseline: 0.2
    violence_rate: 0.05
    incident_ticks: 6
  - id: roof
    url: rtsp://10.1.0.6/live
    baseline: 0.9
    stopped: true
`)

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Interval != 250*time.Millisecond {
		t.Errorf("interval = %v, want 250ms", sc.Interval)
	}
	if sc.Threshold != 0.8 {
		t.Errorf("threshold = %v, want 0.8", sc.Threshold)
	}
	if len(sc.Cameras) != 2 {
		t.Fatalf("cameras = %d, want 2", len(sc.Cameras))
	}

	dock := sc.Cameras[0]
	if dock.Name != "Loading Dock" || dock.FPS != 12 || dock.IncidentTicks != 6 || dock.ViolenceRate != 0.05 {
		t.Errorf("dock = %+v", dock)
	}

	roof := sc.Cameras[1]
	if roof.Name != "roof" {
		t.Errorf("roof name = %q, want id fallback", roof.Name)
	}
	if roof.FPS != 15 || roof.IncidentTicks != 8 {
		t.Errorf("roof defaults = fps %d ticks %d", roof.FPS, roof.IncidentTicks)
	}
	if roof.Baseline != 0.5 {
		t.Errorf("roof baseline = %v, want clamped to 0.5", roof.Baseline)
	}
	if !roof.Stopped {
		t.Error("roof should start stopped")
	}
}

func TestLoadScenario_KeepsDefaultsForOmittedFields(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, "threshold: 0.75\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Cameras) != 4 || sc.Interval != 500*time.Millisecond {
		t.Errorf("got %d cameras at %v, want default fleet", len(sc.Cameras), sc.Interval)
	}
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "cameras: [", "parse scenario"},
		{"threshold", "threshold: 1.5\n", "threshold"},
		{"no cameras", "cameras: []\n", "no cameras"},
		{"missing id", "cameras:\n  - name: x\n", "missing id"},
		{"duplicate", "cameras:\n  - id: a\n  - id: a\n", "duplicate camera id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}
