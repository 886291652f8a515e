// Package mock simulates a fleet of RTSP cameras behind the ViolenceSense
// inference service. It feeds the push server with score and event frames
// and answers the REST surface from memory.
package mock

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera describes one simulated stream.
type Camera struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Location string `yaml:"location"`
	FPS      int    `yaml:"fps"`

	// Baseline is the score the camera settles at between incidents.
	Baseline float64 `yaml:"baseline"`
	// ViolenceRate is the chance per tick that an incident begins.
	ViolenceRate float64 `yaml:"violence_rate"`
	// IncidentTicks is the typical incident length.
	IncidentTicks int `yaml:"incident_ticks"`
	// Stopped cameras are registered but do not emit until started.
	Stopped bool `yaml:"stopped"`
}

// Scenario is the fleet layout loaded by the mock backend.
type Scenario struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold float64       `yaml:"threshold"`
	Cameras   []Camera      `yaml:"cameras"`
}

// DefaultScenario is a four camera fleet with one noisy entrance.
func DefaultScenario() *Scenario {
	return &Scenario{
		Interval:  500 * time.Millisecond,
		Threshold: 0.7,
		Cameras: []Camera{
			{ID: "cam-entrance", Name: "Main Entrance", URL: "rtsp://10.0.0.11:554/stream1", Location: "Building A",
				FPS: 25, Baseline: 0.12, ViolenceRate: 0.03, IncidentTicks: 12},
			{ID: "cam-parking", Name: "Parking Lot", URL: "rtsp://10.0.0.12:554/stream1", Location: "North Lot",
				FPS: 15, Baseline: 0.08, ViolenceRate: 0.01, IncidentTicks: 8},
			{ID: "cam-lobby", Name: "Lobby", URL: "rtsp://10.0.0.13:554/stream1", Location: "Building A",
				FPS: 30, Baseline: 0.05, ViolenceRate: 0.005, IncidentTicks: 6},
			{ID: "cam-yard", Name: "Yard", URL: "rtsp://10.0.0.14:554/stream1", Location: "Building B",
				FPS: 20, Baseline: 0.15, ViolenceRate: 0.015, IncidentTicks: 10, Stopped: true},
		},
	}
}

// LoadScenario reads a YAML scenario. Fields left out keep the defaults of
// DefaultScenario; a file that lists cameras replaces the default fleet.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sc := DefaultScenario()
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.normalize(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

func (sc *Scenario) normalize() error {
	if sc.Interval <= 0 {
		sc.Interval = 500 * time.Millisecond
	}
	if sc.Threshold <= 0 || sc.Threshold > 1 {
		return fmt.Errorf("threshold %v out of range (0,1]", sc.Threshold)
	}
	if len(sc.Cameras) == 0 {
		return fmt.Errorf("no cameras")
	}

	seen := make(map[string]bool, len(sc.Cameras))
	for i := range sc.Cameras {
		c := &sc.Cameras[i]
		if c.ID == "" {
			return fmt.Errorf("camera %d: missing id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate camera id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Name == "" {
			c.Name = c.ID
		}
		if c.FPS <= 0 {
			c.FPS = 15
		}
		if c.IncidentTicks <= 0 {
			c.IncidentTicks = 8
		}
		c.Baseline = clamp(c.Baseline, 0, 0.5)
		c.ViolenceRate = clamp(c.ViolenceRate, 0, 1)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
