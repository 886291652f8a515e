package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/violencesense/vsense/internal/api"
	"github.com/violencesense/vsense/internal/realtime"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respond[T any](w http.ResponseWriter, status int, data T) {
	writeJSON(w, status, api.Response[T]{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.Response[any]{Error: msg})
}

// respondErr maps backend sentinel errors to status codes.
func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(ErrInvalid, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"clients":        s.broadcaster.ClientCount(),
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.backend.Videos())
}

func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.backend.Streams())
}

func (s *Server) getStream(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.Stream(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, st)
}

func (s *Server) createStream(w http.ResponseWriter, r *http.Request) {
	var in api.StreamInput
	if err := decodeBody(r, &in); err != nil {
		respondErr(w, err)
		return
	}
	st, err := s.backend.CreateStream(in)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, st)
}

func (s *Server) deleteStream(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteStream(chi.URLParam(r, "id")); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startStream(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.StartStream(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, st)
}

func (s *Server) stopStream(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.StopStream(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, st)
}

func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.StreamState(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, st)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := api.EventFilter{
		StreamID: q.Get("stream_id"),
		Status:   api.EventStatus(q.Get("status")),
		Severity: realtime.Severity(q.Get("severity")),
		Page:     queryInt(r, "page", 1),
		Limit:    min(queryInt(r, "limit", defaultPageSize), maxPageSize),
	}
	events, total := s.backend.Events(f)
	writeJSON(w, http.StatusOK, api.Response[[]api.ViolenceEvent]{
		Success: true,
		Data:    events,
		Pagination: &api.Pagination{
			Page:       f.Page,
			Limit:      f.Limit,
			Total:      total,
			TotalPages: (total + f.Limit - 1) / f.Limit,
		},
	})
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.backend.Event(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, ev)
}

func (s *Server) updateEventStatus(w http.ResponseWriter, r *http.Request) {
	var u api.StatusUpdate
	if err := decodeBody(r, &u); err != nil {
		respondErr(w, err)
		return
	}
	if !u.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid event status "+strconv.Quote(string(u.Status)))
		return
	}
	ev, err := s.backend.UpdateEventStatus(chi.URLParam(r, "id"), u)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, ev)
}

func (s *Server) eventStats(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.backend.EventStats())
}

func (s *Server) getModelConfig(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.backend.ModelConfig())
}

func (s *Server) updateModelConfig(w http.ResponseWriter, r *http.Request) {
	var cfg api.ModelConfig
	if err := decodeBody(r, &cfg); err != nil {
		respondErr(w, err)
		return
	}
	out, err := s.backend.UpdateModelConfig(cfg)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) loadModel(w http.ResponseWriter, r *http.Request) {
	var req api.LoadModelRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	st, err := s.backend.LoadModel(req)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, st)
}

func (s *Server) modelStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.backend.ModelStatus())
}

// modelMetrics reports the simulated inference figures next to real host
// CPU and memory usage.
func (s *Server) modelMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.backend.ModelMetrics()
	s.fillHostStats(r.Context(), &m)
	respond(w, http.StatusOK, m)
}

func (s *Server) fillHostStats(ctx context.Context, m *api.ModelMetrics) {
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	} else if err != nil {
		s.logger.Debug("cpu stats unavailable", zap.Error(err))
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemoryPercent = vm.UsedPercent
		m.MemoryUsedMB = float64(vm.Used) / (1 << 20)
	} else {
		s.logger.Debug("memory stats unavailable", zap.Error(err))
	}
	m.UptimeSeconds = time.Since(s.started).Seconds()
}
