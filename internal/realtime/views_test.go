package realtime

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestAlertLog_NewestFirstAndCapped(t *testing.T) {
	l := &AlertLog{}
	total := AlertLogCapacity + 50
	for i := 0; i < total; i++ {
		l.Add(AlertMessage{EventID: fmt.Sprintf("e%d", i)})
	}

	if got := l.Len(); got != AlertLogCapacity {
		t.Fatalf("Len() = %d, want %d", got, AlertLogCapacity)
	}
	alerts := l.Alerts()
	if alerts[0].EventID != fmt.Sprintf("e%d", total-1) {
		t.Errorf("head = %s, want most recent", alerts[0].EventID)
	}
	if last := alerts[len(alerts)-1].EventID; last != fmt.Sprintf("e%d", total-AlertLogCapacity) {
		t.Errorf("tail = %s, want e%d", last, total-AlertLogCapacity)
	}
	if got := l.Unread(); got != total {
		t.Errorf("Unread() = %d, want %d", got, total)
	}

	alerts[0].EventID = "mutated"
	if l.Alerts()[0].EventID == "mutated" {
		t.Error("Alerts() must return a copy")
	}
}

func TestAlertLog_UnreadAndClear(t *testing.T) {
	l := &AlertLog{}
	l.Add(AlertMessage{EventID: "a"})
	l.Add(AlertMessage{EventID: "b"})

	l.ClearUnread()
	if l.Unread() != 0 {
		t.Errorf("Unread() = %d after ClearUnread", l.Unread())
	}
	if l.Len() != 2 {
		t.Errorf("ClearUnread must keep alerts, Len() = %d", l.Len())
	}

	l.Add(AlertMessage{EventID: "c"})
	if l.Unread() != 1 {
		t.Errorf("Unread() = %d, want 1", l.Unread())
	}

	l.Clear()
	if l.Len() != 0 || l.Unread() != 0 {
		t.Errorf("after Clear: Len()=%d Unread()=%d", l.Len(), l.Unread())
	}
}

func TestAlertLog_FollowsClient(t *testing.T) {
	rec := &recorder{}
	c := newOfflineClient(t, rec)
	l := NewAlertLog(c)

	c.dispatch(nil, []byte(`{"type":"event_start","data":{"event_id":"e1","stream_id":"cam1"}}`))
	c.dispatch(nil, []byte(`{"type":"inference_score","data":{"stream_id":"cam1","violence_score":0.5}}`))
	c.dispatch(nil, []byte(`{"type":"event_end","data":{"event_id":"e1","stream_id":"cam1"}}`))

	alerts := l.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("log has %d alerts, want 2", len(alerts))
	}
	if alerts[0].Type != MsgEventEnd || alerts[1].Type != MsgEventStart {
		t.Errorf("order = %s, %s", alerts[0].Type, alerts[1].Type)
	}
	if len(rec.alerts) != 2 {
		t.Errorf("client handler saw %d alerts, want 2", len(rec.alerts))
	}

	l.Close()
	c.dispatch(nil, []byte(`{"type":"alert","data":{"event_id":"e2"}}`))
	if l.Len() != 2 {
		t.Error("closed log still receives alerts")
	}
}

func TestStreamScoreView_FiltersByStream(t *testing.T) {
	c := newOfflineClient(t, &recorder{})
	c.dispatch(nil, []byte(`{"type":"inference_score","data":{"stream_id":"cam1","violence_score":0.3}}`))

	var updates []ScoreMessage
	v := NewStreamScoreView(c, "cam1", func(s ScoreMessage) { updates = append(updates, s) })

	if got, ok := v.Latest(); !ok || got.ViolenceScore != 0.3 {
		t.Errorf("view not seeded from cache: %+v, %v", got, ok)
	}
	if v.StreamID() != "cam1" {
		t.Errorf("StreamID() = %q", v.StreamID())
	}

	c.dispatch(nil, []byte(`{"type":"inference_score","data":{"stream_id":"cam2","violence_score":0.99}}`))
	c.dispatch(nil, []byte(`{"type":"inference_score","data":{"stream_id":"cam1","violence_score":0.8}}`))

	if len(updates) != 1 || updates[0].ViolenceScore != 0.8 {
		t.Errorf("updates = %+v, want only the cam1 score", updates)
	}
	if got, _ := v.Latest(); got.ViolenceScore != 0.8 {
		t.Errorf("Latest() = %+v", got)
	}

	v.Close()
	c.dispatch(nil, []byte(`{"type":"inference_score","data":{"stream_id":"cam1","violence_score":0.1}}`))
	if got, _ := v.Latest(); got.ViolenceScore != 0.8 {
		t.Error("closed view still updated")
	}
	if s, _ := c.StreamScore("cam1"); s.ViolenceScore != 0.1 {
		t.Error("client cache should keep updating after the view closes")
	}
}

func TestStreamScoreView_CloseFromCallback(t *testing.T) {
	c := newOfflineClient(t, &recorder{})

	var calls atomic.Int32
	var v *StreamScoreView
	v = NewStreamScoreView(c, "cam1", func(ScoreMessage) {
		calls.Add(1)
		v.Close()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.dispatch(nil, []byte(`{"type":"inference_score","data":{"stream_id":"cam1","violence_score":0.6}}`))
		c.dispatch(nil, []byte(`{"type":"inference_score","data":{"stream_id":"cam1","violence_score":0.7}}`))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked when a view closed itself from its callback")
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}
	if got, _ := v.Latest(); got.ViolenceScore != 0.6 {
		t.Errorf("Latest() = %v, want 0.6", got.ViolenceScore)
	}
}

func TestAlertListener_RemoveFromCallback(t *testing.T) {
	c := newOfflineClient(t, &recorder{})
	other := NewAlertLog(c)
	defer other.Close()

	var calls atomic.Int32
	var remove func()
	remove = c.AddAlertListener(func(AlertMessage) {
		calls.Add(1)
		remove()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.dispatch(nil, []byte(`{"type":"event_start","data":{"event_id":"e1","stream_id":"cam1"}}`))
		c.dispatch(nil, []byte(`{"type":"event_end","data":{"event_id":"e1","stream_id":"cam1"}}`))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked when a listener removed itself")
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("listener ran %d times, want 1", got)
	}
	if other.Len() != 2 {
		t.Errorf("remaining log has %d alerts, want 2", other.Len())
	}
	c.Close()
}

func TestStreamScoreView_UnknownStream(t *testing.T) {
	c := newOfflineClient(t, &recorder{})
	v := NewStreamScoreView(c, "nope", nil)
	defer v.Close()

	if _, ok := v.Latest(); ok {
		t.Error("Latest() reported a score for an unseen stream")
	}
	c.dispatch(nil, []byte(`{"type":"inference_score","data":{"stream_id":"nope","violence_score":0.4}}`))
	if _, ok := v.Latest(); !ok {
		t.Error("view with nil callback did not record the score")
	}
}

func TestViews_ShareOneConnection(t *testing.T) {
	srv := newWSTestServer(t)
	c := newTestClient(t, Options{URL: srv.wsURL()})

	var cam1, cam2 atomic.Int32
	v1 := NewStreamScoreView(c, "cam1", func(ScoreMessage) { cam1.Add(1) })
	v2 := NewStreamScoreView(c, "cam2", func(ScoreMessage) { cam2.Add(1) })
	alertLog := NewAlertLog(c)
	defer v1.Close()
	defer v2.Close()
	defer alertLog.Close()

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)
	srv.expectNoConn(t, 100*time.Millisecond)

	for _, f := range []string{
		`{"type":"inference_score","data":{"stream_id":"cam1","violence_score":0.2}}`,
		`{"type":"inference_score","data":{"stream_id":"cam2","violence_score":0.9}}`,
		`{"type":"violence_alert","data":{"event_id":"e1","stream_id":"cam2","max_score":0.9}}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}

	waitFor(t, "view updates", func() bool {
		return cam1.Load() == 1 && cam2.Load() == 1 && alertLog.Len() == 1
	})
}
