package status

import (
	"strings"
	"testing"

	"github.com/violencesense/vsense/internal/realtime"
)

func TestConnLabel(t *testing.T) {
	tests := []struct {
		state    realtime.State
		attempts int
		want     string
	}{
		{realtime.Connected, 0, "Connected"},
		{realtime.Connecting, 0, "Connecting"},
		{realtime.Reconnecting, 2, "Reconnecting (2/5)"},
		{realtime.Disconnected, 5, "Disconnected"},
	}
	for _, tt := range tests {
		m := New()
		m.State = tt.state
		m.Attempts = tt.attempts
		if got := m.ConnLabel(); !strings.Contains(got, tt.want) {
			t.Errorf("ConnLabel(%v) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestView(t *testing.T) {
	m := New()
	m.State = realtime.Reconnecting
	m.Attempts = 3
	m.Streams = 4
	m.Violent = 1
	m.Unread = 7
	m.Flash = "stream started"
	m.Width = 120

	v := m.View()
	for _, want := range []string{"Reconnecting (3/5)", "4 streams", "1 violent", "7 unread alerts", "stream started"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}
