package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/violencesense/vsense/internal/api"
	"github.com/violencesense/vsense/internal/realtime"
)

// fakeBackend serves fixed data and records the last event filter.
type fakeBackend struct {
	mu         sync.Mutex
	streams    map[string]api.Stream
	events     map[string]api.ViolenceEvent
	total      int
	lastFilter api.EventFilter
	updates    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		streams: map[string]api.Stream{
			"cam1": {ID: "cam1", Name: "Gate", URL: "rtsp://gate", Status: api.StreamActive, FPS: 25},
		},
		events: map[string]api.ViolenceEvent{
			"e1": {ID: "e1", StreamID: "cam1", MaxScore: 0.91, Severity: realtime.SeverityCritical, Status: api.EventNew},
		},
		total: 45,
	}
}

func (f *fakeBackend) Videos() []api.Video { return []api.Video{} }

func (f *fakeBackend) Streams() []api.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.Stream, 0, len(f.streams))
	for _, s := range f.streams {
		out = append(out, s)
	}
	return out
}

func (f *fakeBackend) Stream(id string) (api.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[id]
	if !ok {
		return api.Stream{}, fmt.Errorf("stream %q: %w", id, ErrNotFound)
	}
	return s, nil
}

func (f *fakeBackend) CreateStream(in api.StreamInput) (api.Stream, error) {
	if in.Name == "" {
		return api.Stream{}, fmt.Errorf("name required: %w", ErrInvalid)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := api.Stream{ID: "cam2", Name: in.Name, URL: in.URL, Status: api.StreamInactive}
	f.streams[s.ID] = s
	return s, nil
}

func (f *fakeBackend) DeleteStream(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.streams[id]; !ok {
		return fmt.Errorf("stream %q: %w", id, ErrNotFound)
	}
	delete(f.streams, id)
	return nil
}

func (f *fakeBackend) StartStream(id string) (api.StreamState, error) {
	if _, err := f.Stream(id); err != nil {
		return api.StreamState{}, err
	}
	return api.StreamState{StreamID: id, Status: api.StreamActive, IsRunning: true}, nil
}

func (f *fakeBackend) StopStream(id string) (api.StreamState, error) {
	if _, err := f.Stream(id); err != nil {
		return api.StreamState{}, err
	}
	return api.StreamState{StreamID: id, Status: api.StreamInactive}, nil
}

func (f *fakeBackend) StreamState(id string) (api.StreamState, error) {
	if _, err := f.Stream(id); err != nil {
		return api.StreamState{}, err
	}
	return api.StreamState{StreamID: id, Status: api.StreamActive, IsRunning: true, FramesProcessed: 99}, nil
}

func (f *fakeBackend) Events(filter api.EventFilter) ([]api.ViolenceEvent, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return []api.ViolenceEvent{f.events["e1"]}, f.total
}

func (f *fakeBackend) Event(id string) (api.ViolenceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return api.ViolenceEvent{}, fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	return ev, nil
}

func (f *fakeBackend) UpdateEventStatus(id string, u api.StatusUpdate) (api.ViolenceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	ev, ok := f.events[id]
	if !ok {
		return api.ViolenceEvent{}, fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	ev.Status = u.Status
	ev.Notes = u.Notes
	f.events[id] = ev
	return ev, nil
}

func (f *fakeBackend) EventStats() api.EventStats {
	return api.EventStats{Total: 1, Active: 1, ByStream: map[string]int{"cam1": 1}}
}

func (f *fakeBackend) ModelConfig() api.ModelConfig {
	return api.ModelConfig{Architecture: "MobileNetV2-LSTM", Threshold: 0.7}
}

func (f *fakeBackend) UpdateModelConfig(cfg api.ModelConfig) (api.ModelConfig, error) {
	if cfg.Threshold > 1 {
		return api.ModelConfig{}, fmt.Errorf("threshold: %w", ErrInvalid)
	}
	return cfg, nil
}

func (f *fakeBackend) LoadModel(req api.LoadModelRequest) (api.ModelStatus, error) {
	return api.ModelStatus{Loaded: true, ModelPath: req.ModelPath}, nil
}

func (f *fakeBackend) ModelStatus() api.ModelStatus { return api.ModelStatus{Loaded: true} }

func (f *fakeBackend) ModelMetrics() api.ModelMetrics {
	return api.ModelMetrics{InferenceCount: 1234, AvgInferenceMS: 31.5, FPS: 25}
}

const testToken = "s3cret"

func newTestServer(t *testing.T) (*httptest.Server, *Broadcaster, *fakeBackend) {
	t.Helper()
	reg := prometheus.NewRegistry()
	b := NewBroadcaster(0, nil, reg)
	backend := newFakeBackend()
	srv := httptest.NewServer(NewServer(b, backend, testToken, reg, nil))
	t.Cleanup(func() {
		b.Stop()
		srv.Close()
	})
	return srv, b, backend
}

func doRequest(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestServer_Routes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		wantStatus  int
		wantSuccess bool
	}{
		{"list streams", http.MethodGet, "/api/streams", "", 200, true},
		{"get stream", http.MethodGet, "/api/streams/cam1", "", 200, true},
		{"unknown stream", http.MethodGet, "/api/streams/nope", "", 404, false},
		{"create stream", http.MethodPost, "/api/streams", `{"name":"Dock","url":"rtsp://dock"}`, 201, true},
		{"create invalid", http.MethodPost, "/api/streams", `{"url":"rtsp://dock"}`, 400, false},
		{"create malformed", http.MethodPost, "/api/streams", `{`, 400, false},
		{"start", http.MethodPost, "/api/streams/cam1/start", "", 200, true},
		{"stop", http.MethodPost, "/api/streams/cam1/stop", "", 200, true},
		{"status", http.MethodGet, "/api/streams/cam1/status", "", 200, true},
		{"start unknown", http.MethodPost, "/api/streams/nope/start", "", 404, false},
		{"get event", http.MethodGet, "/api/events/e1", "", 200, true},
		{"unknown event", http.MethodGet, "/api/events/zz", "", 404, false},
		{"event stats", http.MethodGet, "/api/events/stats", "", 200, true},
		{"model config", http.MethodGet, "/api/model/config", "", 200, true},
		{"update config", http.MethodPut, "/api/model/config", `{"threshold":0.8}`, 200, true},
		{"bad config", http.MethodPut, "/api/model/config", `{"threshold":3}`, 400, false},
		{"load model", http.MethodPost, "/api/model/load", `{"model_path":"m.h5"}`, 200, true},
		{"model status", http.MethodGet, "/api/model/status", "", 200, true},
		{"videos", http.MethodGet, "/api/videos", "", 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, tt.method, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, body)
			}
			var env api.Response[json.RawMessage]
			if err := json.Unmarshal(body, &env); err != nil {
				t.Fatalf("decode envelope: %v: %s", err, body)
			}
			if env.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v: %s", env.Success, tt.wantSuccess, body)
			}
			if !tt.wantSuccess && env.Error == "" {
				t.Error("failure without error message")
			}
		})
	}
}

func TestServer_DeleteStream(t *testing.T) {
	srv, _, backend := newTestServer(t)

	resp, _ := doRequest(t, http.MethodDelete, srv.URL+"/api/streams/cam1", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if _, err := backend.Stream("cam1"); err == nil {
		t.Error("stream not deleted")
	}

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/api/streams/cam1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_ListEventsPagination(t *testing.T) {
	srv, _, backend := newTestServer(t)

	_, body := doRequest(t, http.MethodGet, srv.URL+"/api/events?stream_id=cam1&status=new&severity=high&page=2", "")
	var env api.Response[[]api.ViolenceEvent]
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatal(err)
	}
	if !env.Success || len(env.Data) != 1 {
		t.Fatalf("envelope = %s", body)
	}
	want := api.Pagination{Page: 2, Limit: 20, Total: 45, TotalPages: 3}
	if env.Pagination == nil || *env.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", env.Pagination, want)
	}

	backend.mu.Lock()
	f := backend.lastFilter
	backend.mu.Unlock()
	if f.StreamID != "cam1" || f.Status != api.EventNew || f.Severity != realtime.SeverityHigh {
		t.Errorf("filter = %+v", f)
	}

	doRequest(t, http.MethodGet, srv.URL+"/api/events?limit=500&page=-1", "")
	backend.mu.Lock()
	f = backend.lastFilter
	backend.mu.Unlock()
	if f.Limit != maxPageSize || f.Page != 1 {
		t.Errorf("clamped filter = %+v, want limit %d page 1", f, maxPageSize)
	}
}

func TestServer_UpdateEventStatus(t *testing.T) {
	srv, _, backend := newTestServer(t)

	resp, body := doRequest(t, http.MethodPatch, srv.URL+"/api/events/e1/status", `{"status":"bogus"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus status code = %d: %s", resp.StatusCode, body)
	}
	if backend.updates != 0 {
		t.Error("invalid status reached the backend")
	}

	resp, body = doRequest(t, http.MethodPatch, srv.URL+"/api/events/e1/status", `{"status":"acknowledged","notes":"seen"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d: %s", resp.StatusCode, body)
	}
	var env api.Response[api.ViolenceEvent]
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatal(err)
	}
	if env.Data.Status != api.EventAcknowledged || env.Data.Notes != "seen" {
		t.Errorf("event = %+v", env.Data)
	}
}

func TestServer_ModelMetricsAddsHostFigures(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, body := doRequest(t, http.MethodGet, srv.URL+"/api/model/metrics", "")
	var env api.Response[api.ModelMetrics]
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatal(err)
	}
	if !env.Success || env.Data.InferenceCount != 1234 || env.Data.FPS != 25 {
		t.Errorf("metrics = %+v", env.Data)
	}
	if env.Data.UptimeSeconds < 0 {
		t.Errorf("uptime = %v", env.Data.UptimeSeconds)
	}
}

func TestServer_HealthAndMetricsArePublic(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "vsense_ws_clients") {
		t.Errorf("/metrics = %d without vsense_ws_clients", resp.StatusCode)
	}
}

func TestServer_Auth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   int
	}{
		{"none", func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+testToken) }, http.StatusOK},
		{"header", func(r *http.Request) { r.Header.Set("X-VSense-Token", testToken) }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + testToken }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/streams", nil)
			tt.mutate(req)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAuthorize_NoTokenConfigured(t *testing.T) {
	s := NewServer(NewBroadcaster(0, nil, nil), newFakeBackend(), "", nil, nil)
	if !s.authorize(httptest.NewRequest(http.MethodGet, "/api/streams", nil)) {
		t.Error("empty token should admit every request")
	}
}

func TestCheckOrigin(t *testing.T) {
	s := &Server{}
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://example.com", "example.com", true},
		{"http://localhost:5173", "example.com", true},
		{"http://127.0.0.1:3000", "example.com", true},
		{"http://evil.test", "example.com", false},
		{"::bad", "example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := s.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func wsEndpoint(srv *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func TestServer_WebSocketRequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsEndpoint(srv, ""), nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsEndpoint(srv, testToken), nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close()
}

func TestServer_RejectsOverLimit(t *testing.T) {
	b := NewBroadcaster(1, nil, nil)
	srv := httptest.NewServer(NewServer(b, newFakeBackend(), "", nil, nil))
	defer srv.Close()
	defer b.Stop()

	first, _, err := websocket.DefaultDialer.Dial(wsEndpoint(srv, ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	waitClients(t, b, 1)

	second, _, err := websocket.DefaultDialer.Dial(wsEndpoint(srv, ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Errorf("over-limit read = %v, want close 1013", err)
	}
	if got := testutil.ToFloat64(b.Metrics().Rejected); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
}

// TestServer_RealtimeClientEndToEnd connects the dashboard's realtime
// client to the push server and checks subscription filtering, alerts and
// the ping/pong exchange.
func TestServer_RealtimeClientEndToEnd(t *testing.T) {
	srv, b, _ := newTestServer(t)

	scores := make(chan realtime.ScoreMessage, 8)
	alerts := make(chan realtime.AlertMessage, 8)
	c := realtime.New(realtime.Options{
		URL:                  wsEndpoint(srv, testToken),
		DisableAutoReconnect: true,
		Handlers: realtime.Handlers{
			OnScore: func(s realtime.ScoreMessage) { scores <- s },
			OnAlert: func(a realtime.AlertMessage) { alerts <- a },
		},
	})
	defer c.Close()

	c.Connect()
	deadline := time.Now().Add(2 * time.Second)
	for !c.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("client did not connect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitClients(t, b, 1)

	if !c.SubscribeToStream("cam1") {
		t.Fatal("subscribe not sent")
	}
	deadline = time.Now().Add(2 * time.Second)
	for {
		sc := b.snapshot()
		if len(sc) == 1 && !sc[0].wants("cam2") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.BroadcastScore(realtime.ScoreMessage{StreamID: "cam2", ViolenceScore: 0.4})
	b.BroadcastScore(realtime.ScoreMessage{StreamID: "cam1", StreamName: "Gate", ViolenceScore: 0.93, IsViolent: true})

	select {
	case s := <-scores:
		if s.StreamID != "cam1" || s.ViolenceScore != 0.93 {
			t.Errorf("score = %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no score delivered")
	}
	if got, ok := c.StreamScore("cam1"); !ok || !got.IsViolent {
		t.Errorf("cached score = %+v, %v", got, ok)
	}
	if _, ok := c.StreamScore("cam2"); ok {
		t.Error("unsubscribed stream reached the client")
	}

	b.BroadcastAlert(realtime.AlertMessage{Type: realtime.MsgEventStart, EventID: "e9", StreamID: "cam5", MaxScore: 0.88})
	select {
	case a := <-alerts:
		if a.EventID != "e9" || a.Type != realtime.MsgEventStart {
			t.Errorf("alert = %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert delivered")
	}

	b.Ping()
	deadline = time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(b.Metrics().Pongs) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client did not answer ping")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
