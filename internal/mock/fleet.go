package mock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/violencesense/vsense/internal/api"
	"github.com/violencesense/vsense/internal/ws"
)

// camera is the runtime state of one simulated stream.
type camera struct {
	cam     Camera
	created time.Time

	running   bool
	frames    int64
	lastScore float64
	lastFrame time.Time

	incidentLeft int
	peak         float64
	openEvent    string
}

func (c *camera) stream() api.Stream {
	return api.Stream{
		ID:        c.cam.ID,
		Name:      c.cam.Name,
		URL:       c.cam.URL,
		Location:  c.cam.Location,
		Status:    c.status(),
		FPS:       c.cam.FPS,
		CreatedAt: c.created,
	}
}

func (c *camera) status() api.StreamStatus {
	if c.running {
		return api.StreamActive
	}
	return api.StreamInactive
}

func (c *camera) state() api.StreamState {
	st := api.StreamState{
		StreamID:        c.cam.ID,
		Status:          c.status(),
		IsRunning:       c.running,
		FramesProcessed: c.frames,
		LastScore:       c.lastScore,
	}
	if c.running {
		st.FPS = float64(c.cam.FPS)
	}
	if !c.lastFrame.IsZero() {
		t := c.lastFrame
		st.LastFrameAt = &t
	}
	return st
}

type modelState struct {
	config     api.ModelConfig
	status     api.ModelStatus
	inferences int64
	totalMS    float64
}

// Fleet is the in-memory backend of the mock service: cameras, their
// events and the model service state. It implements ws.Backend.
type Fleet struct {
	mu      sync.RWMutex
	order   []string
	cameras map[string]*camera
	model   modelState
	videos  []api.Video

	events *EventStore
	now    func() time.Time
}

var _ ws.Backend = (*Fleet)(nil)

// NewFleet registers the cameras of sc. Cameras not marked stopped start
// running immediately.
func NewFleet(sc *Scenario) *Fleet {
	now := time.Now()
	f := &Fleet{
		cameras: make(map[string]*camera, len(sc.Cameras)),
		events:  NewEventStore(defaultEventCapacity),
		now:     time.Now,
		videos:  []api.Video{},
	}
	for _, cam := range sc.Cameras {
		f.order = append(f.order, cam.ID)
		f.cameras[cam.ID] = &camera{
			cam:       cam,
			created:   now,
			running:   !cam.Stopped,
			lastScore: cam.Baseline,
		}
	}

	loaded := now
	f.model = modelState{
		config: api.ModelConfig{
			ModelPath:       "models/violence_mobilenetv2_lstm.h5",
			Architecture:    "MobileNetV2-LSTM",
			Threshold:       sc.Threshold,
			FrameSampleRate: 16,
			InputSize:       224,
			Device:          "cpu",
		},
		status: api.ModelStatus{
			Loaded:       true,
			ModelPath:    "models/violence_mobilenetv2_lstm.h5",
			Architecture: "MobileNetV2-LSTM",
			Device:       "cpu",
			Version:      "1.0.0",
			LoadedAt:     &loaded,
		},
	}
	return f
}

// EventStore exposes the stored events.
func (f *Fleet) EventStore() *EventStore {
	return f.events
}

// Threshold is the score at which an event opens.
func (f *Fleet) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.model.config.Threshold
}

func (f *Fleet) Videos() []api.Video {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]api.Video(nil), f.videos...)
}

func (f *Fleet) Streams() []api.Stream {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]api.Stream, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.cameras[id].stream())
	}
	return out
}

func (f *Fleet) lookup(id string) (*camera, error) {
	c, ok := f.cameras[id]
	if !ok {
		return nil, fmt.Errorf("stream %q: %w", id, ws.ErrNotFound)
	}
	return c, nil
}

func (f *Fleet) Stream(id string) (api.Stream, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c, err := f.lookup(id)
	if err != nil {
		return api.Stream{}, err
	}
	return c.stream(), nil
}

// CreateStream registers a stopped camera with a quiet profile.
func (f *Fleet) CreateStream(in api.StreamInput) (api.Stream, error) {
	if strings.TrimSpace(in.Name) == "" {
		return api.Stream{}, fmt.Errorf("stream name is required: %w", ws.ErrInvalid)
	}
	if !strings.HasPrefix(in.URL, "rtsp://") && !strings.HasPrefix(in.URL, "rtsps://") {
		return api.Stream{}, fmt.Errorf("stream url %q is not rtsp: %w", in.URL, ws.ErrInvalid)
	}

	cam := Camera{
		ID:            "cam-" + uuid.NewString()[:8],
		Name:          in.Name,
		URL:           in.URL,
		Location:      in.Location,
		FPS:           in.FPS,
		Baseline:      0.1,
		ViolenceRate:  0.01,
		IncidentTicks: 8,
		Stopped:       true,
	}
	if cam.FPS <= 0 {
		cam.FPS = 15
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c := &camera{cam: cam, created: f.now(), lastScore: cam.Baseline}
	f.cameras[cam.ID] = c
	f.order = append(f.order, cam.ID)
	return c.stream(), nil
}

// DeleteStream removes a camera and closes its open event.
func (f *Fleet) DeleteStream(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.lookup(id)
	if err != nil {
		return err
	}
	if c.openEvent != "" {
		f.events.Close(c.openEvent, f.now(), "")
	}
	delete(f.cameras, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Fleet) StartStream(id string) (api.StreamState, error) {
	return f.setRunning(id, true)
}

// StopStream pauses a camera. An event it left open is closed on the next
// generator tick.
func (f *Fleet) StopStream(id string) (api.StreamState, error) {
	return f.setRunning(id, false)
}

func (f *Fleet) setRunning(id string, running bool) (api.StreamState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.lookup(id)
	if err != nil {
		return api.StreamState{}, err
	}
	c.running = running
	return c.state(), nil
}

func (f *Fleet) StreamState(id string) (api.StreamState, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c, err := f.lookup(id)
	if err != nil {
		return api.StreamState{}, err
	}
	return c.state(), nil
}

func (f *Fleet) Events(filter api.EventFilter) ([]api.ViolenceEvent, int) {
	return f.events.List(filter)
}

func (f *Fleet) Event(id string) (api.ViolenceEvent, error) {
	return f.events.Get(id)
}

func (f *Fleet) UpdateEventStatus(id string, u api.StatusUpdate) (api.ViolenceEvent, error) {
	return f.events.UpdateStatus(id, u)
}

func (f *Fleet) EventStats() api.EventStats {
	return f.events.Stats(f.now())
}

func (f *Fleet) ModelConfig() api.ModelConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.model.config
}

// UpdateModelConfig replaces the config. Zero fields keep their value and
// the threshold must lie in (0,1].
func (f *Fleet) UpdateModelConfig(cfg api.ModelConfig) (api.ModelConfig, error) {
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return api.ModelConfig{}, fmt.Errorf("threshold %v out of range: %w", cfg.Threshold, ws.ErrInvalid)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cur := &f.model.config
	if cfg.ModelPath != "" {
		cur.ModelPath = cfg.ModelPath
	}
	if cfg.Architecture != "" {
		cur.Architecture = cfg.Architecture
	}
	if cfg.Threshold > 0 {
		cur.Threshold = cfg.Threshold
	}
	if cfg.FrameSampleRate > 0 {
		cur.FrameSampleRate = cfg.FrameSampleRate
	}
	if cfg.InputSize > 0 {
		cur.InputSize = cfg.InputSize
	}
	if cfg.Device != "" {
		cur.Device = cfg.Device
	}
	return *cur, nil
}

func (f *Fleet) LoadModel(req api.LoadModelRequest) (api.ModelStatus, error) {
	if req.ModelPath == "" {
		return api.ModelStatus{}, fmt.Errorf("model_path is required: %w", ws.ErrInvalid)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	st := &f.model.status
	st.Loaded = true
	st.ModelPath = req.ModelPath
	st.LoadedAt = &now
	if req.Architecture != "" {
		st.Architecture = req.Architecture
	}
	f.model.config.ModelPath = req.ModelPath
	f.model.config.Architecture = st.Architecture
	return *st, nil
}

func (f *Fleet) ModelStatus() api.ModelStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.model.status
}

// ModelMetrics reports the simulated inference figures. Host figures are
// filled in by the server.
func (f *Fleet) ModelMetrics() api.ModelMetrics {
	f.mu.RLock()
	defer f.mu.RUnlock()

	m := api.ModelMetrics{InferenceCount: f.model.inferences}
	if f.model.inferences > 0 {
		m.AvgInferenceMS = f.model.totalMS / float64(f.model.inferences)
	}
	for _, c := range f.cameras {
		if c.running {
			m.FPS += float64(c.cam.FPS)
		}
	}
	return m
}
