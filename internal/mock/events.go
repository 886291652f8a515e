package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/violencesense/vsense/internal/api"
	"github.com/violencesense/vsense/internal/realtime"
	"github.com/violencesense/vsense/internal/ws"
)

const defaultEventCapacity = 1000

type storedEvent struct {
	api.ViolenceEvent
	scoreSum float64
	samples  int
}

// EventStore keeps violence events in memory, oldest evicted first.
type EventStore struct {
	mu       sync.RWMutex
	events   map[string]*storedEvent
	order    []string // insertion order
	capacity int
}

// NewEventStore creates a store holding at most capacity events.
func NewEventStore(capacity int) *EventStore {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &EventStore{
		events:   make(map[string]*storedEvent),
		capacity: capacity,
	}
}

// Open records a new event with its first score.
func (s *EventStore) Open(ev api.ViolenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Status == "" {
		ev.Status = api.EventNew
	}
	s.events[ev.ID] = &storedEvent{ViolenceEvent: ev, scoreSum: ev.MaxScore, samples: 1}
	s.order = append(s.order, ev.ID)
	for len(s.order) > s.capacity {
		delete(s.events, s.order[0])
		s.order = s.order[1:]
	}
}

// Observe folds another score into an open event.
func (s *EventStore) Observe(id string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.EndTime != nil {
		return
	}
	e.scoreSum += score
	e.samples++
	e.AvgScore = e.scoreSum / float64(e.samples)
	if score > e.MaxScore {
		e.MaxScore = score
		e.Severity = realtime.SeverityForScore(score)
	}
}

// Close ends an event and returns its final form.
func (s *EventStore) Close(id string, end time.Time, clipPath string) (api.ViolenceEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.EndTime != nil {
		return api.ViolenceEvent{}, false
	}
	dur := end.Sub(e.StartTime).Seconds()
	e.EndTime = &end
	e.Duration = &dur
	e.ClipPath = clipPath
	return e.ViolenceEvent, true
}

// Get returns one event.
func (s *EventStore) Get(id string) (api.ViolenceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return api.ViolenceEvent{}, fmt.Errorf("event %q: %w", id, ws.ErrNotFound)
	}
	return e.ViolenceEvent, nil
}

// List returns the page of f, newest first, and the number of matches.
func (s *EventStore) List(f api.EventFilter) ([]api.ViolenceEvent, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []api.ViolenceEvent
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.events[s.order[i]]
		if f.StreamID != "" && e.StreamID != f.StreamID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		matched = append(matched, e.ViolenceEvent)
	}

	total := len(matched)
	page, limit := max(f.Page, 1), f.Limit
	if limit <= 0 {
		limit = total
	}
	start := (page - 1) * limit
	if start >= total {
		return []api.ViolenceEvent{}, total
	}
	return matched[start:min(start+limit, total)], total
}

// UpdateStatus sets the review status of an event.
func (s *EventStore) UpdateStatus(id string, u api.StatusUpdate) (api.ViolenceEvent, error) {
	if !u.Status.Valid() {
		return api.ViolenceEvent{}, fmt.Errorf("status %q: %w", u.Status, ws.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return api.ViolenceEvent{}, fmt.Errorf("event %q: %w", id, ws.ErrNotFound)
	}
	e.Status = u.Status
	if u.Notes != "" {
		e.Notes = u.Notes
	}
	return e.ViolenceEvent, nil
}

// Stats aggregates the stored events relative to now.
func (s *EventStore) Stats(now time.Time) api.EventStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := api.EventStats{
		Total:      len(s.events),
		ByStatus:   make(map[string]int),
		BySeverity: make(map[string]int),
		ByStream:   make(map[string]int),
	}
	dayAgo := now.Add(-24 * time.Hour)
	for _, e := range s.events {
		if e.EndTime == nil {
			st.Active++
		}
		if e.StartTime.After(dayAgo) {
			st.Last24h++
		}
		st.ByStatus[string(e.Status)]++
		st.BySeverity[string(e.Severity)]++
		st.ByStream[e.StreamID]++
	}
	return st
}
