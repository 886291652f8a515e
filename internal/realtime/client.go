package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5

	writeTimeout = 10 * time.Second
	dialTimeout  = 15 * time.Second
)

// Handlers are invoked synchronously on the read goroutine, in arrival order.
// Any of them may be nil.
type Handlers struct {
	OnScore      func(ScoreMessage)
	OnAlert      func(AlertMessage)
	OnConnect    func()
	OnDisconnect func()
}

// Dialer opens the transport connection. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options configure a Client. Zero values take the documented defaults.
type Options struct {
	URL                  string
	Header               http.Header
	ReconnectInterval    time.Duration // default 3s
	MaxReconnectAttempts int           // default 5
	// AutoReconnect defaults to true; set DisableAutoReconnect to turn it off.
	DisableAutoReconnect bool

	Handlers   Handlers
	Logger     *zap.Logger
	Registerer prometheus.Registerer
	Dialer     Dialer
	Scheduler  Scheduler
}

// Client owns one persistent connection to the realtime endpoint.
type Client struct {
	url      string
	header   http.Header
	base     time.Duration
	max      int
	auto     bool
	handlers Handlers
	logger   *zap.Logger
	metrics  *Metrics
	dialer   Dialer
	sched    Scheduler

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	gen        uint64 // bumped on every connect and disconnect; stale dials and reads compare against it
	attempts   int
	timer      Timer
	timerSeq   uint64
	cancelDial context.CancelFunc

	writeMu sync.Mutex // serialises all conn writes

	cacheMu sync.RWMutex
	scores  map[string]ScoreMessage
	latest  *AlertMessage

	listenMu       sync.RWMutex
	nextListener   int
	scoreListeners map[int]func(ScoreMessage)
	alertListeners map[int]func(AlertMessage)
}

// New creates a disconnected client. Call Connect to open the connection.
func New(opts Options) *Client {
	c := &Client{
		url:            opts.URL,
		header:         opts.Header,
		base:           opts.ReconnectInterval,
		max:            opts.MaxReconnectAttempts,
		auto:           !opts.DisableAutoReconnect,
		handlers:       opts.Handlers,
		logger:         opts.Logger,
		metrics:        NewMetrics(opts.Registerer),
		dialer:         opts.Dialer,
		sched:          opts.Scheduler,
		scores:         make(map[string]ScoreMessage),
		scoreListeners: make(map[int]func(ScoreMessage)),
		alertListeners: make(map[int]func(AlertMessage)),
	}
	if c.base <= 0 {
		c.base = DefaultReconnectInterval
	}
	if c.max <= 0 {
		c.max = DefaultMaxReconnectAttempts
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("realtime").With(zap.String("url", c.url))
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
		}
	}
	if c.sched == nil {
		c.sched = wallScheduler{}
	}
	return c
}

// Connect opens the connection in the background. It is a no-op while
// connecting or connected. From Disconnected it starts with a fresh
// reconnect budget; from Reconnecting it cancels the pending timer and
// dials immediately.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return
	}
	if c.state == Disconnected {
		c.attempts = 0
	}
	ctx, gen := c.connectLocked()
	c.mu.Unlock()

	go c.dial(ctx, gen)
}

// connectLocked moves to Connecting and returns the dial context and
// generation. c.mu must be held.
func (c *Client) connectLocked() (context.Context, uint64) {
	c.stopTimerLocked()
	c.gen++
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	c.cancelDial = cancel
	c.setStateLocked(Connecting)
	return ctx, c.gen
}

func (c *Client) dial(ctx context.Context, gen uint64) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)

	c.mu.Lock()
	if gen != c.gen || c.state != Connecting {
		// Disconnected or superseded while dialing.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("dial failed", zap.Error(err))
		c.handleClose(gen, websocket.CloseAbnormalClosure)
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(Connected)
	c.mu.Unlock()

	c.logger.Info("connected")
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}

	c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := closeCode(err)
			c.logger.Debug("read loop ended", zap.Int("code", code), zap.Error(err))
			c.handleClose(gen, code)
			return
		}
		c.dispatch(conn, data)
	}
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// handleClose is the single place that drives reconnection. Transport
// errors are only ever observed here.
func (c *Client) handleClose(gen uint64, code int) {
	c.mu.Lock()
	if gen != c.gen {
		// Disconnect already handled this connection.
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == Connected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(Disconnected)

	if c.auto && code != websocket.CloseNormalClosure {
		if c.attempts < c.max {
			delay := backoffDelay(c.base, c.attempts)
			c.attempts++
			c.timerSeq++
			seq := c.timerSeq
			c.setStateLocked(Reconnecting)
			c.timer = c.sched.AfterFunc(delay, func() { c.reconnect(seq) })
			c.metrics.ReconnectsScheduled.Inc()
			c.logger.Info("reconnect scheduled",
				zap.Int("attempt", c.attempts),
				zap.Int("max_attempts", c.max),
				zap.Duration("delay", delay))
		} else {
			c.logger.Warn("reconnect budget exhausted, staying disconnected",
				zap.Int("max_attempts", c.max))
		}
	}
	c.mu.Unlock()

	if wasConnected && c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect()
	}
}

func (c *Client) reconnect(seq uint64) {
	c.mu.Lock()
	if seq != c.timerSeq || c.state != Reconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	ctx, gen := c.connectLocked()
	c.mu.Unlock()

	c.dial(ctx, gen)
}

// Disconnect cancels any pending reconnect, closes the connection with a
// normal-closure code and settles in Disconnected. No reconnect follows.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopTimerLocked()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.gen++
	conn := c.conn
	c.conn = nil
	wasConnected := c.state == Connected
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		conn.Close()
	}
	if wasConnected {
		c.logger.Info("disconnected by client")
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect()
		}
	}
}

// Close disconnects and detaches every listener.
func (c *Client) Close() {
	c.Disconnect()
	c.listenMu.Lock()
	clear(c.scoreListeners)
	clear(c.alertListeners)
	c.listenMu.Unlock()
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Client) setStateLocked(s State) {
	c.state = s
	c.metrics.ConnectionState.Set(float64(s))
}

// Send writes v as JSON when connected and reports whether it was written.
// Messages sent while not connected are dropped, never queued.
func (c *Client) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Debug("send marshal error", zap.Error(err))
		return false
	}

	c.mu.Lock()
	conn := c.conn
	ok := c.state == Connected && conn != nil
	c.mu.Unlock()
	if !ok {
		return false
	}
	return c.write(conn, data)
}

func (c *Client) write(conn *websocket.Conn, data []byte) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read loop observes the broken connection and handles it.
		c.logger.Debug("write error", zap.Error(err))
		return false
	}
	return true
}

// SubscribeToStream asks the server for score frames of one stream.
func (c *Client) SubscribeToStream(streamID string) bool {
	return c.Send(ControlMessage{Type: MsgSubscribe, StreamID: streamID})
}

// UnsubscribeFromStream stops score frames for one stream.
func (c *Client) UnsubscribeFromStream(streamID string) bool {
	return c.Send(ControlMessage{Type: MsgUnsubscribe, StreamID: streamID})
}

var pongFrame = []byte(`{"type":"pong"}`)

// dispatch decodes one inbound frame and fans it out. Malformed frames and
// frames missing required fields are dropped without any callback.
func (c *Client) dispatch(conn *websocket.Conn, frame []byte) {
	env, err := normalize(frame)
	if err != nil {
		c.metrics.Dropped.WithLabelValues("decode").Inc()
		c.logger.Debug("dropping undecodable frame", zap.Error(err))
		return
	}
	c.metrics.Frames.WithLabelValues(frameLabel(env.Type)).Inc()

	switch {
	case env.Type == MsgInferenceScore:
		s, err := decodeScore(env.Data)
		if err != nil {
			c.metrics.Dropped.WithLabelValues("invalid").Inc()
			c.logger.Debug("dropping score frame", zap.Error(err))
			return
		}
		c.storeScore(s)
		if c.handlers.OnScore != nil {
			c.handlers.OnScore(s)
		}
		for _, fn := range c.scoreFns() {
			fn(s)
		}

	case env.Type.IsAlert():
		a, err := decodeAlert(env.Type, env.Data)
		if err != nil {
			c.metrics.Dropped.WithLabelValues("invalid").Inc()
			c.logger.Debug("dropping alert frame", zap.String("type", string(env.Type)), zap.Error(err))
			return
		}
		c.cacheMu.Lock()
		c.latest = &a
		c.cacheMu.Unlock()
		if c.handlers.OnAlert != nil {
			c.handlers.OnAlert(a)
		}
		for _, fn := range c.alertFns() {
			fn(a)
		}

	case env.Type == MsgPing:
		if conn != nil {
			c.write(conn, pongFrame)
		}
	}
}

// frameLabel bounds the frames metric to the known message types.
func frameLabel(t MessageType) string {
	switch t {
	case MsgInferenceScore, MsgEventStart, MsgEventEnd, MsgViolenceAlert, MsgAlert, MsgPing:
		return string(t)
	}
	return "other"
}

// scoreFns and alertFns snapshot the listeners so a listener may remove
// itself while being called.
func (c *Client) scoreFns() []func(ScoreMessage) {
	c.listenMu.RLock()
	defer c.listenMu.RUnlock()
	fns := make([]func(ScoreMessage), 0, len(c.scoreListeners))
	for _, fn := range c.scoreListeners {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Client) alertFns() []func(AlertMessage) {
	c.listenMu.RLock()
	defer c.listenMu.RUnlock()
	fns := make([]func(AlertMessage), 0, len(c.alertListeners))
	for _, fn := range c.alertListeners {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Client) storeScore(s ScoreMessage) {
	c.cacheMu.Lock()
	c.scores[s.StreamID] = s
	n := len(c.scores)
	c.cacheMu.Unlock()
	c.metrics.TrackedStreams.Set(float64(n))
}

// StreamScore returns the latest cached score for a stream.
func (c *Client) StreamScore(streamID string) (ScoreMessage, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	s, ok := c.scores[streamID]
	return s, ok
}

// Scores returns a copy of the whole score cache.
func (c *Client) Scores() map[string]ScoreMessage {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	out := make(map[string]ScoreMessage, len(c.scores))
	for id, s := range c.scores {
		out[id] = s
	}
	return out
}

// LatestAlert returns the most recent alert, if any.
func (c *Client) LatestAlert() (AlertMessage, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	if c.latest == nil {
		return AlertMessage{}, false
	}
	return *c.latest, true
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Attempts returns the number of consecutive reconnects scheduled since the
// last successful connection.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// MaxAttempts returns the reconnect budget.
func (c *Client) MaxAttempts() int {
	return c.max
}

// Metrics exposes the client's collectors.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// AddScoreListener registers fn for every accepted score frame and returns
// a func that removes it. Listeners share the client's connection.
func (c *Client) AddScoreListener(fn func(ScoreMessage)) (remove func()) {
	c.listenMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.scoreListeners[id] = fn
	c.listenMu.Unlock()
	return func() {
		c.listenMu.Lock()
		delete(c.scoreListeners, id)
		c.listenMu.Unlock()
	}
}

// AddAlertListener registers fn for every accepted alert frame.
func (c *Client) AddAlertListener(fn func(AlertMessage)) (remove func()) {
	c.listenMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.alertListeners[id] = fn
	c.listenMu.Unlock()
	return func() {
		c.listenMu.Lock()
		delete(c.alertListeners, id)
		c.listenMu.Unlock()
	}
}
