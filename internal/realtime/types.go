// Package realtime provides the push-channel client for the ViolenceSense
// inference service: live per-stream violence scores and event alerts.
// Types mirror the service wire protocol.
package realtime

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of realtime frame.
type MessageType string

const (
	MsgInferenceScore MessageType = "inference_score"
	MsgEventStart     MessageType = "event_start"
	MsgEventEnd       MessageType = "event_end"
	MsgViolenceAlert  MessageType = "violence_alert"
	MsgAlert          MessageType = "alert"
	MsgPing           MessageType = "ping"

	// Outbound control frames.
	MsgPong        MessageType = "pong"
	MsgSubscribe   MessageType = "subscribe"
	MsgUnsubscribe MessageType = "unsubscribe"
)

// IsAlert reports whether frames of type t carry an AlertMessage.
func (t MessageType) IsAlert() bool {
	switch t {
	case MsgEventStart, MsgEventEnd, MsgViolenceAlert, MsgAlert:
		return true
	}
	return false
}

// Envelope is the normalised form of every inbound frame.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ControlMessage is an outbound subscribe/unsubscribe/pong frame.
type ControlMessage struct {
	Type     MessageType `json:"type"`
	StreamID string      `json:"stream_id,omitempty"`
}

// ScoreMessage is the latest inference result for one stream.
type ScoreMessage struct {
	StreamID         string  `json:"stream_id"`
	StreamName       string  `json:"stream_name"`
	ViolenceScore    float64 `json:"violence_score"`
	NonViolenceScore float64 `json:"non_violence_score"`
	IsViolent        bool    `json:"is_violent"`
	Timestamp        string  `json:"timestamp"`
	FPS              float64 `json:"fps,omitempty"`
}

// Time parses the score timestamp.
func (s ScoreMessage) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s.Timestamp)
}

// Severity classifies an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityForScore maps a peak violence score to a severity level.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 0.9:
		return SeverityCritical
	case score >= 0.8:
		return SeverityHigh
	case score >= 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AlertMessage is an event start/end notification or a standalone alert.
type AlertMessage struct {
	Type          MessageType `json:"type"`
	EventID       string      `json:"event_id"`
	StreamID      string      `json:"stream_id"`
	StreamName    string      `json:"stream_name"`
	StartTime     string      `json:"start_time,omitempty"`
	Timestamp     string      `json:"timestamp"`
	Confidence    *float64    `json:"confidence,omitempty"`
	MaxScore      float64     `json:"max_score"`
	Severity      Severity    `json:"severity,omitempty"`
	Message       string      `json:"message,omitempty"`
	ClipPath      string      `json:"clip_path,omitempty"`
	ThumbnailPath string      `json:"thumbnail_path,omitempty"`
	ClipDuration  *float64    `json:"clip_duration,omitempty"`
	Duration      *float64    `json:"duration,omitempty"`
}

// EffectiveSeverity returns the payload severity, or one derived from
// MaxScore when the payload omits it or carries an unknown level.
func (a AlertMessage) EffectiveSeverity() Severity {
	if a.Severity.Valid() {
		return a.Severity
	}
	return SeverityForScore(a.MaxScore)
}

// Time parses the alert timestamp.
func (a AlertMessage) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, a.Timestamp)
}
