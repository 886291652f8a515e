package alerts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/violencesense/vsense/internal/realtime"
)

func sample(n int) []realtime.AlertMessage {
	out := make([]realtime.AlertMessage, n)
	for i := range out {
		out[i] = realtime.AlertMessage{
			Type:       realtime.MsgEventStart,
			EventID:    fmt.Sprintf("e%d", i),
			StreamName: fmt.Sprintf("cam-%d", i),
			Timestamp:  "2026-03-01T12:00:00Z",
			MaxScore:   0.95,
		}
	}
	return out
}

func TestSelection(t *testing.T) {
	m := New()
	if _, ok := m.Current(); ok {
		t.Fatal("empty log has a current alert")
	}

	m.SetEntries(sample(5))
	m.Down(2)
	if a, _ := m.Current(); a.EventID != "e2" {
		t.Errorf("current = %q, want e2", a.EventID)
	}
	m.Down(10)
	if m.Selected != 4 {
		t.Errorf("selected = %d, want capped at 4", m.Selected)
	}
	m.Up(10)
	if m.Selected != 0 {
		t.Errorf("selected = %d, want 0", m.Selected)
	}

	m.Selected = 4
	m.SetEntries(sample(2))
	if m.Selected != 1 {
		t.Errorf("selected after shrink = %d, want 1", m.Selected)
	}
	m.SetEntries(nil)
	if m.Selected != 0 {
		t.Errorf("selected after clear = %d", m.Selected)
	}
}

func TestViewEmpty(t *testing.T) {
	if v := New().View(100, 30); !strings.Contains(v, "No alerts") {
		t.Error("empty view should show 'No alerts' message")
	}
}

func TestViewWithEntries(t *testing.T) {
	m := New()
	entries := sample(3)
	d := 6.5
	entries[1].Type = realtime.MsgEventEnd
	entries[1].Duration = &d
	entries[2].MaxScore = 0.65
	m.SetEntries(entries)

	v := m.View(120, 30)
	for _, want := range []string{"ALERTS", "cam-0", "critical", "event_end", "6.5s", "medium", "3 alerts"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewScrollsToSelection(t *testing.T) {
	m := New()
	m.SetEntries(sample(40))
	m.Down(30)

	v := m.View(120, 20)
	if !strings.Contains(v, "cam-30") {
		t.Error("selected entry not visible")
	}
	if strings.Contains(v, "cam-0 ") {
		t.Error("newest entry should have scrolled out")
	}
	if !strings.Contains(v, "9 older") {
		t.Error("missing older indicator")
	}
}
