package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/violencesense/vsense/internal/api"
	"github.com/violencesense/vsense/internal/app"
	"github.com/violencesense/vsense/internal/config"
	"github.com/violencesense/vsense/internal/logging"
	"github.com/violencesense/vsense/internal/realtime"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: vsense.yaml in . or ./configs)")
	wsURL := flag.String("url", "", "Override realtime.url")
	token := flag.String("token", "", "Override api.token")
	logFile := flag.String("log", "vsense-tui.log", "Log file used when logger.file is unset")
	style := flag.String("style", "dark", "Glamour style for alert detail (dark, light, notty)")
	flag.Parse()

	if err := run(*configPath, *wsURL, *token, *logFile, *style); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, wsURL, token, logFile, style string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if wsURL != "" {
		cfg.Realtime.URL = wsURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if token != "" {
		cfg.API.Token = token
	}
	// The terminal belongs to the dashboard.
	if cfg.Logger.File == "" {
		cfg.Logger.File = logFile
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr, reg, logger)
	}

	header := http.Header{}
	if cfg.API.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.API.Token)
	}
	rt := realtime.New(realtime.Options{
		URL:                  cfg.Realtime.URL,
		Header:               header,
		ReconnectInterval:    cfg.Realtime.ReconnectInterval,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		DisableAutoReconnect: !cfg.Realtime.AutoReconnect,
		Logger:               logger,
		Registerer:           reg,
	})
	defer rt.Close()

	log := realtime.NewAlertLog(rt)
	defer log.Close()

	logger.Info("dashboard starting",
		zap.String("realtime_url", cfg.Realtime.URL),
		zap.String("rtsp_url", cfg.API.RTSPURL))

	m := app.New(app.Options{
		Realtime:     rt,
		Alerts:       log,
		Services:     api.NewServices(cfg.API, logger),
		Logger:       logger,
		GlamourStyle: style,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
