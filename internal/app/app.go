// Package app is the root Bubble Tea model of the dashboard.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/violencesense/vsense/internal/api"
	"github.com/violencesense/vsense/internal/realtime"
	"github.com/violencesense/vsense/internal/theme"
	"github.com/violencesense/vsense/internal/views/alerts"
	"github.com/violencesense/vsense/internal/views/detail"
	"github.com/violencesense/vsense/internal/views/status"
	"github.com/violencesense/vsense/internal/views/streams"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayAlerts
	OverlayDetail
)

const (
	defaultTick         = 200 * time.Millisecond
	defaultRefreshTicks = 25
)

// Options configure the root model. Services may be nil, in which case the
// dashboard runs on the push channel alone.
type Options struct {
	Realtime     *realtime.Client
	Alerts       *realtime.AlertLog
	Services     *api.Services
	Logger       *zap.Logger
	Tick         time.Duration // poll and animation interval, default 200ms
	RefreshTicks int           // ticks between REST refreshes, default 25
	GlamourStyle string
}

type tickMsg time.Time

type streamsMsg struct {
	streams []api.Stream
	err     string
}

type actionMsg struct {
	text    string
	err     bool
	refresh bool
}

// Model is the root Bubble Tea model.
type Model struct {
	rt     *realtime.Client
	log    *realtime.AlertLog
	rest   *api.Services
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	tick    time.Duration
	refresh int
	ticks   int

	// Subscriptions are lost with the socket; resent on every connect.
	connected  bool
	known      []string
	subscribed map[string]bool

	overlay  Overlay
	returnTo Overlay

	statusBar status.Model
	streams   streams.Model
	alerts    alerts.Model
	detail    detail.Model
}

// New creates the root model.
func New(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.RefreshTicks <= 0 {
		opts.RefreshTicks = defaultRefreshTicks
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Alerts == nil {
		opts.Alerts = realtime.NewAlertLog(opts.Realtime)
	}
	sb := status.New()
	sb.MaxAttempts = opts.Realtime.MaxAttempts()
	return Model{
		rt:         opts.Realtime,
		log:        opts.Alerts,
		rest:       opts.Services,
		logger:     opts.Logger.Named("app"),
		ctx:        ctx,
		cancel:     cancel,
		keys:       DefaultKeyMap(),
		tick:       opts.Tick,
		refresh:    opts.RefreshTicks,
		subscribed: make(map[string]bool),
		statusBar:  sb,
		streams:    streams.New(opts.Tick),
		alerts:     alerts.New(),
		detail:     detail.New(opts.GlamourStyle),
	}
}

// Init opens the realtime connection and starts polling.
func (m Model) Init() tea.Cmd {
	rt := m.rt
	return tea.Batch(
		func() tea.Msg {
			rt.Connect()
			return nil
		},
		m.tickCmd(),
		m.fetchStreams(),
	)
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.streams.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.ticks++
		m.poll()
		cmds := []tea.Cmd{m.tickCmd()}
		if m.ticks%m.refresh == 0 {
			cmds = append(cmds, m.fetchStreams())
		}
		return m, tea.Batch(cmds...)

	case streamsMsg:
		if msg.err != "" {
			m.logger.Warn("stream refresh failed", zap.String("error", msg.err))
			m.flash("streams: "+msg.err, true)
			return m, nil
		}
		m.streams.SetStreams(msg.streams)
		m.known = make([]string, 0, len(msg.streams))
		for _, s := range msg.streams {
			m.known = append(m.known, s.ID)
		}
		if m.connected {
			m.subscribeKnown()
		}
		m.syncCounts()
		return m, nil

	case actionMsg:
		m.flash(msg.text, msg.err)
		if msg.refresh {
			return m, m.fetchStreams()
		}
		return m, nil
	}

	return m, nil
}

// poll copies client state into the views and animates the bars.
func (m *Model) poll() {
	state := m.rt.State()
	m.statusBar.State = state
	m.statusBar.Attempts = m.rt.Attempts()

	connected := state == realtime.Connected
	if connected && !m.connected {
		m.subscribed = make(map[string]bool)
		m.connected = true
		m.subscribeKnown()
	} else if !connected {
		m.connected = false
	}

	m.streams.SetScores(m.rt.Scores())
	m.streams.Animate()

	m.alerts.SetEntries(m.log.Alerts())
	if m.overlay == OverlayAlerts {
		m.log.ClearUnread()
	}
	m.syncCounts()
}

func (m *Model) syncCounts() {
	m.statusBar.Streams = m.streams.Len()
	m.statusBar.Violent = m.streams.Violent()
	m.statusBar.Unread = m.log.Unread()
}

func (m *Model) subscribeKnown() {
	for _, id := range m.known {
		if m.subscribed[id] {
			continue
		}
		if m.rt.SubscribeToStream(id) {
			m.subscribed[id] = true
		}
	}
}

func (m *Model) flash(text string, isErr bool) {
	m.statusBar.Flash = text
	m.statusBar.FlashErr = isErr
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Escape):
		if m.overlay == OverlayDetail {
			m.overlay = m.returnTo
		} else {
			m.overlay = OverlayNone
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		switch m.overlay {
		case OverlayAlerts:
			m.alerts.Down(1)
		case OverlayDetail:
			m.detail.ScrollDown(1)
		default:
			m.streams.Next()
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		switch m.overlay {
		case OverlayAlerts:
			m.alerts.Up(1)
		case OverlayDetail:
			m.detail.ScrollUp(1)
		default:
			m.streams.Prev()
		}
		return m, nil

	case key.Matches(msg, m.keys.Alerts):
		if m.overlay == OverlayAlerts {
			m.overlay = OverlayNone
			return m, nil
		}
		m.overlay = OverlayAlerts
		m.alerts.SetEntries(m.log.Alerts())
		m.log.ClearUnread()
		m.syncCounts()
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		a, ok := m.focusedAlert()
		if !ok {
			m.flash("no alerts yet", false)
			return m, nil
		}
		m.returnTo = OverlayNone
		if m.overlay == OverlayAlerts {
			m.returnTo = OverlayAlerts
		}
		m.detail.Show(a, m.height)
		m.overlay = OverlayDetail
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		m.rt.Disconnect()
		// The new socket may be up before the next poll sees a transition.
		m.connected = false
		m.subscribed = make(map[string]bool)
		m.rt.Connect()
		m.flash("reconnecting", false)
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.log.Clear()
		m.alerts.SetEntries(nil)
		if m.overlay == OverlayDetail {
			m.overlay = OverlayNone
		}
		m.syncCounts()
		m.flash("alerts cleared", false)
		return m, nil

	case key.Matches(msg, m.keys.StartStop):
		if m.overlay != OverlayNone {
			return m, nil
		}
		row, ok := m.streams.SelectedRow()
		if !ok {
			return m, nil
		}
		return m, m.toggleStream(row)

	case key.Matches(msg, m.keys.Acknowledge):
		a, ok := m.focusedAlert()
		if !ok || a.EventID == "" {
			m.flash("no event to acknowledge", true)
			return m, nil
		}
		return m, m.acknowledge(a)
	}

	return m, nil
}

// focusedAlert is the alert under the cursor: the open detail, the
// selection in the log, or the newest alert.
func (m Model) focusedAlert() (realtime.AlertMessage, bool) {
	switch m.overlay {
	case OverlayDetail:
		if m.detail.Alert != nil {
			return *m.detail.Alert, true
		}
	case OverlayAlerts:
		return m.alerts.Current()
	}
	entries := m.log.Alerts()
	if len(entries) == 0 {
		return realtime.AlertMessage{}, false
	}
	return entries[0], true
}

func (m Model) fetchStreams() tea.Cmd {
	if m.rest == nil {
		return nil
	}
	rest, ctx := m.rest.RTSP, m.ctx
	return func() tea.Msg {
		resp := rest.ListStreams(ctx)
		if !resp.Success {
			return streamsMsg{err: resp.Error}
		}
		return streamsMsg{streams: resp.Data}
	}
}

func (m Model) toggleStream(row streams.Row) tea.Cmd {
	if m.rest == nil {
		return func() tea.Msg { return actionMsg{text: "REST API not configured", err: true} }
	}
	rest, ctx, logger := m.rest.RTSP, m.ctx, m.logger
	return func() tea.Msg {
		verb := "started"
		var resp api.Response[api.StreamState]
		if row.Status == api.StreamActive {
			verb = "stopped"
			resp = rest.StopStream(ctx, row.ID)
		} else {
			resp = rest.StartStream(ctx, row.ID)
		}
		if !resp.Success {
			logger.Warn("stream toggle failed", zap.String("stream_id", row.ID), zap.String("error", resp.Error))
			return actionMsg{text: fmt.Sprintf("%s: %s", row.Name, resp.Error), err: true}
		}
		return actionMsg{text: fmt.Sprintf("%s %s", row.Name, verb), refresh: true}
	}
}

func (m Model) acknowledge(a realtime.AlertMessage) tea.Cmd {
	if m.rest == nil {
		return func() tea.Msg { return actionMsg{text: "REST API not configured", err: true} }
	}
	rest, ctx := m.rest.RTSP, m.ctx
	return func() tea.Msg {
		resp := rest.UpdateEventStatus(ctx, a.EventID, api.EventAcknowledged, "")
		if !resp.Success {
			return actionMsg{text: "acknowledge: " + resp.Error, err: true}
		}
		return actionMsg{text: fmt.Sprintf("event %s acknowledged", shortID(a.EventID))}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch m.overlay {
	case OverlayAlerts:
		body = m.alerts.View(m.width, m.height-4)
	case OverlayDetail:
		body = m.detail.View()
	default:
		body = m.streams.View()
	}

	sections := []string{m.statusBar.View()}
	if banner := m.banner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections,
		body,
		theme.StyleDimmed.Render("  j/k:navigate  enter:detail  a:alerts  s:start/stop  x:ack  r:reconnect  q:quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) banner() string {
	switch m.statusBar.State {
	case realtime.Disconnected:
		return theme.StyleError.Render("  DISCONNECTED  press r to reconnect")
	case realtime.Reconnecting:
		return lipgloss.NewStyle().Foreground(theme.ColorWarning).
			Render(fmt.Sprintf("  Reconnecting (attempt %d of %d)...", m.statusBar.Attempts, m.statusBar.MaxAttempts))
	}
	return ""
}
