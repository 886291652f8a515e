package ws

import (
	"errors"

	"github.com/violencesense/vsense/internal/api"
)

var (
	// ErrNotFound maps to 404.
	ErrNotFound = errors.New("not found")
	// ErrInvalid maps to 400.
	ErrInvalid = errors.New("invalid request")
)

// Backend is the data the server exposes over REST. The mock fleet
// implements it.
type Backend interface {
	Videos() []api.Video

	Streams() []api.Stream
	Stream(id string) (api.Stream, error)
	CreateStream(in api.StreamInput) (api.Stream, error)
	DeleteStream(id string) error
	StartStream(id string) (api.StreamState, error)
	StopStream(id string) (api.StreamState, error)
	StreamState(id string) (api.StreamState, error)

	Events(f api.EventFilter) (events []api.ViolenceEvent, total int)
	Event(id string) (api.ViolenceEvent, error)
	UpdateEventStatus(id string, u api.StatusUpdate) (api.ViolenceEvent, error)
	EventStats() api.EventStats

	ModelConfig() api.ModelConfig
	UpdateModelConfig(cfg api.ModelConfig) (api.ModelConfig, error)
	LoadModel(req api.LoadModelRequest) (api.ModelStatus, error)
	ModelStatus() api.ModelStatus
	ModelMetrics() api.ModelMetrics
}
