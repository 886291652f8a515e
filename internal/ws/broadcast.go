package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/violencesense/vsense/internal/realtime"
)

// ErrTooManyConnections is returned when the connection limit is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const (
	sendBuffer     = 64
	writeWait      = 10 * time.Second
	maxInboundSize = 4096
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool // empty means every stream

	lastSeen  atomic.Int64 // unix nanos of the last inbound frame
	closeCode atomic.Int32 // sent when the pump exits; 0 means normal closure
}

func (c *client) writePump() {
	defer c.b.removeClient(c)
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	code := int(c.closeCode.Load())
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	msg := websocket.FormatCloseMessage(code, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (c *client) wants(streamID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs) == 0 || c.subs[streamID]
}

func (c *client) subscribe(streamID string) {
	c.mu.Lock()
	c.subs[streamID] = true
	c.mu.Unlock()
}

func (c *client) unsubscribe(streamID string) {
	c.mu.Lock()
	delete(c.subs, streamID)
	c.mu.Unlock()
}

func (c *client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *client) idle() time.Duration {
	return time.Since(time.Unix(0, c.lastSeen.Load()))
}

// Broadcaster fans realtime frames out to connected clients. Every client
// has a buffered send channel drained by its own write pump; a client whose
// buffer is full is disconnected.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int

	logger  *zap.Logger
	metrics *Metrics

	stop     chan struct{}
	stopOnce sync.Once
}

// NewBroadcaster creates a broadcaster. maxConns <= 0 means no limit.
func NewBroadcaster(maxConns int, logger *zap.Logger, reg prometheus.Registerer) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		logger:   logger.Named("ws"),
		metrics:  NewMetrics(reg),
		stop:     make(chan struct{}),
	}
}

// addClient registers conn and starts its write pump.
func (b *Broadcaster) addClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]bool),
	}
	c.touch()

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		b.metrics.Rejected.Inc()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	n := len(b.clients)
	b.mu.Unlock()

	b.metrics.Clients.Set(float64(n))
	go c.writePump()
	return c, nil
}

// removeClient unregisters c and stops its write pump. Safe to call twice.
func (b *Broadcaster) removeClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	n := len(b.clients)
	b.mu.Unlock()
	b.metrics.Clients.Set(float64(n))
}

// drop removes c, telling the peer why. Any code other than normal closure
// leaves the peer free to reconnect.
func (b *Broadcaster) drop(c *client, code int) {
	c.closeCode.CompareAndSwap(0, int32(code))
	b.removeClient(c)
}

// readPump consumes control frames from c until the connection fails, then
// removes the client.
func (b *Broadcaster) readPump(c *client) {
	defer b.removeClient(c)
	c.conn.SetReadLimit(maxInboundSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()
		b.handleInbound(c, data)
	}
}

func (b *Broadcaster) handleInbound(c *client, data []byte) {
	var msg realtime.ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Debug("ignoring malformed client frame", zap.Error(err))
		return
	}
	switch msg.Type {
	case realtime.MsgSubscribe:
		if msg.StreamID != "" {
			c.subscribe(msg.StreamID)
		}
	case realtime.MsgUnsubscribe:
		if msg.StreamID != "" {
			c.unsubscribe(msg.StreamID)
		}
	case realtime.MsgPong:
		b.metrics.Pongs.Inc()
	case realtime.MsgPing:
		b.sendTo(c, pongFrame)
	}
}

// BroadcastScore sends an inference score to clients subscribed to its
// stream, or to every client without subscriptions.
func (b *Broadcaster) BroadcastScore(s realtime.ScoreMessage) {
	data, err := encode(Message{Type: realtime.MsgInferenceScore, Data: s})
	if err != nil {
		b.logger.Error("broadcast marshal error", zap.Error(err))
		return
	}
	b.broadcast(realtime.MsgInferenceScore, data, func(c *client) bool { return c.wants(s.StreamID) })
}

// BroadcastAlert sends an alert frame to every client.
func (b *Broadcaster) BroadcastAlert(a realtime.AlertMessage) {
	typ := a.Type
	if typ == "" {
		typ = realtime.MsgAlert
	}
	data, err := encode(Message{Type: typ, Data: a})
	if err != nil {
		b.logger.Error("broadcast marshal error", zap.Error(err))
		return
	}
	b.broadcast(typ, data, nil)
}

// Ping sends an application-level ping to every client.
func (b *Broadcaster) Ping() {
	b.broadcast(realtime.MsgPing, pingFrame, nil)
}

// StartPing pings every interval and drops clients silent for three
// intervals. It returns immediately; Stop ends the loop.
func (b *Broadcaster) StartPing(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-t.C:
				b.evictIdle(3 * interval)
				b.Ping()
			}
		}
	}()
}

func (b *Broadcaster) evictIdle(limit time.Duration) {
	for _, c := range b.snapshot() {
		if c.idle() > limit {
			b.logger.Info("evicting unresponsive client", zap.Duration("idle", c.idle()))
			b.metrics.Evicted.Inc()
			b.drop(c, websocket.ClosePolicyViolation)
		}
	}
}

// Stop ends the ping loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	for _, c := range b.snapshot() {
		b.drop(c, websocket.CloseGoingAway)
	}
}

func (b *Broadcaster) snapshot() []*client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	return clients
}

func (b *Broadcaster) broadcast(typ realtime.MessageType, data []byte, filter func(*client) bool) {
	for _, c := range b.snapshot() {
		if filter != nil && !filter(c) {
			continue
		}
		if b.sendTo(c, data) {
			b.metrics.Sent.WithLabelValues(string(typ)).Inc()
		}
	}
}

// sendTo queues data for c, disconnecting it when its buffer is full.
func (b *Broadcaster) sendTo(c *client, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		go func() {
			b.logger.Warn("ws client too slow, disconnecting")
			b.metrics.SlowDisconnects.Inc()
			b.drop(c, websocket.CloseTryAgainLater)
		}()
		return false
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Metrics exposes the broadcaster's collectors.
func (b *Broadcaster) Metrics() *Metrics {
	return b.metrics
}
