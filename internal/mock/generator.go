package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/violencesense/vsense/internal/api"
	"github.com/violencesense/vsense/internal/realtime"
)

// Sink receives generated frames. *ws.Broadcaster satisfies it.
type Sink interface {
	BroadcastScore(realtime.ScoreMessage)
	BroadcastAlert(realtime.AlertMessage)
}

// Generator advances the fleet on a ticker and publishes what the cameras
// "see": a score per running camera per tick, plus event_start and
// event_end frames as scores cross the model threshold.
type Generator struct {
	fleet    *Fleet
	sink     Sink
	rng      *rand.Rand
	interval time.Duration
	logger   *zap.Logger
}

// NewGenerator creates a generator. rng may be nil for a time-seeded source.
func NewGenerator(fleet *Fleet, sink Sink, interval time.Duration, rng *rand.Rand, logger *zap.Logger) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		fleet:    fleet,
		sink:     sink,
		rng:      rng,
		interval: interval,
		logger:   logger.Named("mock"),
	}
}

// Start runs the generator until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// frame is one outbound message, published after the fleet lock is released.
type frame struct {
	score *realtime.ScoreMessage
	alert *realtime.AlertMessage
}

// Step advances every camera by one tick and publishes the frames in
// camera order.
func (g *Generator) Step() {
	f := g.fleet
	now := f.now()

	var out []frame
	f.mu.Lock()
	threshold := f.model.config.Threshold
	for _, id := range f.order {
		c := f.cameras[id]
		if !c.running {
			if c.openEvent != "" {
				if a, ok := g.closeEvent(c, now); ok {
					out = append(out, frame{alert: &a})
				}
			}
			continue
		}

		score := g.nextScore(c)
		c.frames++
		c.lastScore = score
		c.lastFrame = now
		f.model.inferences++
		f.model.totalMS += 20 + g.rng.Float64()*30

		s := realtime.ScoreMessage{
			StreamID:         c.cam.ID,
			StreamName:       c.cam.Name,
			ViolenceScore:    score,
			NonViolenceScore: 1 - score,
			IsViolent:        score >= threshold,
			Timestamp:        now.UTC().Format(time.RFC3339Nano),
			FPS:              float64(c.cam.FPS),
		}
		out = append(out, frame{score: &s})

		switch {
		case s.IsViolent && c.openEvent == "":
			a := g.openEvent(c, score, now)
			out = append(out, frame{alert: &a})
		case s.IsViolent:
			f.events.Observe(c.openEvent, score)
		case c.openEvent != "":
			if a, ok := g.closeEvent(c, now); ok {
				out = append(out, frame{alert: &a})
			}
		}
	}
	f.mu.Unlock()

	for _, fr := range out {
		if fr.score != nil {
			g.sink.BroadcastScore(*fr.score)
		} else {
			g.sink.BroadcastAlert(*fr.alert)
		}
	}
}

// nextScore moves the camera toward its baseline, or toward the incident
// peak while an incident lasts.
func (g *Generator) nextScore(c *camera) float64 {
	if c.incidentLeft == 0 && g.rng.Float64() < c.cam.ViolenceRate {
		c.incidentLeft = max(1, c.cam.IncidentTicks/2+g.rng.Intn(c.cam.IncidentTicks+1))
		c.peak = 0.8 + g.rng.Float64()*0.19
	}

	target := c.cam.Baseline
	if c.incidentLeft > 0 {
		target = c.peak
		c.incidentLeft--
	}
	noise := (g.rng.Float64() - 0.5) * 0.1
	return clamp(c.lastScore*0.3+target*0.7+noise, 0, 1)
}

// openEvent must be called with the fleet lock held.
func (g *Generator) openEvent(c *camera, score float64, now time.Time) realtime.AlertMessage {
	id := uuid.NewString()
	sev := realtime.SeverityForScore(score)
	c.openEvent = id

	g.fleet.events.Open(api.ViolenceEvent{
		ID:         id,
		StreamID:   c.cam.ID,
		StreamName: c.cam.Name,
		StartTime:  now,
		MaxScore:   score,
		AvgScore:   score,
		Severity:   sev,
		Status:     api.EventNew,
	})
	g.logger.Info("event started",
		zap.String("event_id", id),
		zap.String("stream_id", c.cam.ID),
		zap.Float64("score", score),
	)

	conf := score
	ts := now.UTC().Format(time.RFC3339Nano)
	return realtime.AlertMessage{
		Type:       realtime.MsgEventStart,
		EventID:    id,
		StreamID:   c.cam.ID,
		StreamName: c.cam.Name,
		StartTime:  ts,
		Timestamp:  ts,
		Confidence: &conf,
		MaxScore:   score,
		Severity:   sev,
		Message:    fmt.Sprintf("Violence detected on %s", c.cam.Name),
	}
}

// closeEvent must be called with the fleet lock held.
func (g *Generator) closeEvent(c *camera, now time.Time) (realtime.AlertMessage, bool) {
	id := c.openEvent
	c.openEvent = ""

	clip := fmt.Sprintf("clips/%s/%s.mp4", c.cam.ID, id)
	ev, ok := g.fleet.events.Close(id, now, clip)
	if !ok {
		return realtime.AlertMessage{}, false
	}
	g.logger.Info("event ended",
		zap.String("event_id", id),
		zap.String("stream_id", c.cam.ID),
		zap.Float64("max_score", ev.MaxScore),
		zap.Float64("duration", *ev.Duration),
	)

	dur := *ev.Duration
	return realtime.AlertMessage{
		Type:          realtime.MsgEventEnd,
		EventID:       id,
		StreamID:      c.cam.ID,
		StreamName:    c.cam.Name,
		StartTime:     ev.StartTime.UTC().Format(time.RFC3339Nano),
		Timestamp:     now.UTC().Format(time.RFC3339Nano),
		MaxScore:      ev.MaxScore,
		Severity:      ev.Severity,
		Message:       fmt.Sprintf("Incident on %s ended after %.1fs", c.cam.Name, dur),
		ClipPath:      clip,
		ThumbnailPath: fmt.Sprintf("thumbnails/%s/%s.jpg", c.cam.ID, id),
		ClipDuration:  &dur,
		Duration:      &dur,
	}, true
}
