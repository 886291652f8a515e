package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves the realtime socket at /ws and the REST surface of the
// backend under /api.
type Server struct {
	broadcaster *Broadcaster
	backend     Backend
	authToken   string
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
	router      *chi.Mux
	started     time.Time
}

// NewServer wires the router. gatherer backs /metrics and may be nil.
func NewServer(broadcaster *Broadcaster, backend Backend, authToken string, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		broadcaster: broadcaster,
		backend:     backend,
		authToken:   authToken,
		gatherer:    gatherer,
		logger:      logger.Named("server"),
		router:      chi.NewRouter(),
		started:     time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/ws", s.handleWS)

		r.Get("/api/videos", s.listVideos)

		r.Route("/api/streams", func(r chi.Router) {
			r.Get("/", s.listStreams)
			r.Post("/", s.createStream)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getStream)
				r.Delete("/", s.deleteStream)
				r.Post("/start", s.startStream)
				r.Post("/stop", s.stopStream)
				r.Get("/status", s.streamStatus)
			})
		})

		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", s.listEvents)
			r.Get("/stats", s.eventStats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getEvent)
				r.Patch("/status", s.updateEventStatus)
			})
		})

		r.Route("/api/model", func(r chi.Router) {
			r.Get("/config", s.getModelConfig)
			r.Put("/config", s.updateModelConfig)
			r.Post("/load", s.loadModel)
			r.Get("/status", s.modelStatus)
			r.Get("/metrics", s.modelMetrics)
		})
	})
}

// ServeHTTP lets Server act as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade error", zap.Error(err))
		return
	}

	c, err := s.broadcaster.addClient(conn)
	if err != nil {
		s.logger.Warn("rejecting websocket client", zap.String("remote", r.RemoteAddr), zap.Error(err))
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.logger.Info("websocket client connected", zap.String("remote", r.RemoteAddr))
	go func() {
		s.broadcaster.readPump(c)
		s.logger.Info("websocket client disconnected", zap.String("remote", r.RemoteAddr))
	}()
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-VSense-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

// checkOrigin admits non-browser clients, same-host pages and loopback
// origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
