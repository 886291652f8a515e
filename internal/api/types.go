package api

import (
	"time"

	"github.com/violencesense/vsense/internal/realtime"
)

// ListOptions selects a page of a list endpoint. Zero values use the
// server defaults.
type ListOptions struct {
	Page  int
	Limit int
}

// Video is an uploaded clip known to the main API.
type Video struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	OriginalName  string    `json:"original_name"`
	Size          int64     `json:"size"`
	Duration      float64   `json:"duration,omitempty"`
	Status        string    `json:"status"` // uploaded, processing, analyzed, failed
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// PredictionLabel is the classifier's verdict for a video.
type PredictionLabel string

const (
	LabelViolence    PredictionLabel = "violence"
	LabelNonViolence PredictionLabel = "non_violence"
)

// Prediction is one classification of a stored video.
type Prediction struct {
	ID               string          `json:"id"`
	VideoID          string          `json:"video_id"`
	Label            PredictionLabel `json:"label"`
	Confidence       float64         `json:"confidence"`
	ViolenceScore    float64         `json:"violence_score"`
	NonViolenceScore float64         `json:"non_violence_score"`
	ProcessingTime   float64         `json:"processing_time"` // seconds
	ModelVersion     string          `json:"model_version,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ModelConfig is the inference model configuration of the model service.
type ModelConfig struct {
	ModelPath       string  `json:"model_path"`
	Architecture    string  `json:"architecture"`
	Threshold       float64 `json:"threshold"`
	FrameSampleRate int     `json:"frame_sample_rate"`
	InputSize       int     `json:"input_size"`
	Device          string  `json:"device"`
}

// LoadModelRequest asks the model service to load weights.
type LoadModelRequest struct {
	ModelPath    string `json:"model_path"`
	Architecture string `json:"architecture,omitempty"`
}

// ModelStatus reports whether a model is loaded.
type ModelStatus struct {
	Loaded       bool       `json:"loaded"`
	ModelPath    string     `json:"model_path,omitempty"`
	Architecture string     `json:"architecture,omitempty"`
	Device       string     `json:"device,omitempty"`
	Version      string     `json:"version,omitempty"`
	LoadedAt     *time.Time `json:"loaded_at,omitempty"`
}

// ModelMetrics are runtime figures of the model service host.
type ModelMetrics struct {
	InferenceCount int64   `json:"inference_count"`
	AvgInferenceMS float64 `json:"avg_inference_ms"`
	FPS            float64 `json:"fps"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	MemoryUsedMB   float64 `json:"memory_used_mb"`
	GPUAvailable   bool    `json:"gpu_available"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// StreamStatus is the lifecycle state of an RTSP stream.
type StreamStatus string

const (
	StreamActive     StreamStatus = "active"
	StreamInactive   StreamStatus = "inactive"
	StreamConnecting StreamStatus = "connecting"
	StreamError      StreamStatus = "error"
)

// Stream is a camera registered with the RTSP service.
type Stream struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	URL       string       `json:"url"`
	Location  string       `json:"location,omitempty"`
	Status    StreamStatus `json:"status"`
	FPS       int          `json:"fps"`
	CreatedAt time.Time    `json:"created_at"`
}

// StreamInput creates a stream.
type StreamInput struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Location string `json:"location,omitempty"`
	FPS      int    `json:"fps,omitempty"`
}

// StreamState is the live processing state of a stream.
type StreamState struct {
	StreamID        string       `json:"stream_id"`
	Status          StreamStatus `json:"status"`
	IsRunning       bool         `json:"is_running"`
	FPS             float64      `json:"fps"`
	FramesProcessed int64        `json:"frames_processed"`
	LastScore       float64      `json:"last_score"`
	LastFrameAt     *time.Time   `json:"last_frame_at,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// EventStatus is the review state of a violence event.
type EventStatus string

const (
	EventNew           EventStatus = "new"
	EventAcknowledged  EventStatus = "acknowledged"
	EventReviewed      EventStatus = "reviewed"
	EventFalsePositive EventStatus = "false_positive"
	EventResolved      EventStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventNew, EventAcknowledged, EventReviewed, EventFalsePositive, EventResolved:
		return true
	}
	return false
}

// ViolenceEvent is a stored detection, from event_start to event_end.
type ViolenceEvent struct {
	ID            string            `json:"id"`
	StreamID      string            `json:"stream_id"`
	StreamName    string            `json:"stream_name"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       *time.Time        `json:"end_time,omitempty"`
	Duration      *float64          `json:"duration,omitempty"` // seconds
	MaxScore      float64           `json:"max_score"`
	AvgScore      float64           `json:"avg_score"`
	Severity      realtime.Severity `json:"severity"`
	Status        EventStatus       `json:"status"`
	Notes         string            `json:"notes,omitempty"`
	ClipPath      string            `json:"clip_path,omitempty"`
	ThumbnailPath string            `json:"thumbnail_path,omitempty"`
}

// EventFilter narrows ListEvents. Empty fields do not filter.
type EventFilter struct {
	StreamID string
	Status   EventStatus
	Severity realtime.Severity
	Page     int
	Limit    int
}

// StatusUpdate is the body of an event status change.
type StatusUpdate struct {
	Status EventStatus `json:"status"`
	Notes  string      `json:"notes,omitempty"`
}

// EventStats aggregates stored events.
type EventStats struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	Last24h    int            `json:"last_24h"`
	ByStatus   map[string]int `json:"by_status"`
	BySeverity map[string]int `json:"by_severity"`
	ByStream   map[string]int `json:"by_stream"`
}
