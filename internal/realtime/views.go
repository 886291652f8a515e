package realtime

import "sync"

// AlertLogCapacity is the number of alerts an AlertLog retains.
const AlertLogCapacity = 100

// StreamScoreView follows the latest score of a single stream over a shared
// Client connection.
type StreamScoreView struct {
	streamID string
	onUpdate func(ScoreMessage)
	remove   func()

	mu     sync.RWMutex
	latest *ScoreMessage
}

// NewStreamScoreView attaches to c and seeds the view from the client cache.
// onUpdate may be nil.
func NewStreamScoreView(c *Client, streamID string, onUpdate func(ScoreMessage)) *StreamScoreView {
	v := &StreamScoreView{streamID: streamID, onUpdate: onUpdate}
	if s, ok := c.StreamScore(streamID); ok {
		v.latest = &s
	}
	v.remove = c.AddScoreListener(v.handle)
	return v
}

func (v *StreamScoreView) handle(s ScoreMessage) {
	if s.StreamID != v.streamID {
		return
	}
	v.mu.Lock()
	v.latest = &s
	v.mu.Unlock()
	if v.onUpdate != nil {
		v.onUpdate(s)
	}
}

// StreamID returns the stream this view follows.
func (v *StreamScoreView) StreamID() string {
	return v.streamID
}

// Latest returns the most recent score for the stream.
func (v *StreamScoreView) Latest() (ScoreMessage, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.latest == nil {
		return ScoreMessage{}, false
	}
	return *v.latest, true
}

// Close detaches the view from its client.
func (v *StreamScoreView) Close() {
	v.remove()
}

// AlertLog keeps the most recent alerts, newest first, and counts the ones
// not yet seen by the consumer.
type AlertLog struct {
	remove func()

	mu     sync.RWMutex
	alerts []AlertMessage
	unread int
}

// NewAlertLog attaches a log to c.
func NewAlertLog(c *Client) *AlertLog {
	l := &AlertLog{}
	l.remove = c.AddAlertListener(l.Add)
	return l
}

// Add records an alert at the head of the log.
func (l *AlertLog) Add(a AlertMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, AlertMessage{})
	copy(l.alerts[1:], l.alerts)
	l.alerts[0] = a
	if len(l.alerts) > AlertLogCapacity {
		l.alerts = l.alerts[:AlertLogCapacity]
	}
	l.unread++
}

// Alerts returns a copy of the log, most recent first.
func (l *AlertLog) Alerts() []AlertMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AlertMessage, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// Len returns the number of retained alerts.
func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}

// Unread returns the number of alerts added since the last ClearUnread.
func (l *AlertLog) Unread() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.unread
}

// ClearUnread resets the pending counter.
func (l *AlertLog) ClearUnread() {
	l.mu.Lock()
	l.unread = 0
	l.mu.Unlock()
}

// Clear empties the log and the pending counter.
func (l *AlertLog) Clear() {
	l.mu.Lock()
	l.alerts = nil
	l.unread = 0
	l.mu.Unlock()
}

// Close detaches the log from its client.
func (l *AlertLog) Close() {
	if l.remove != nil {
		l.remove()
	}
}
