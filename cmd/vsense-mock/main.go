package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/violencesense/vsense/internal/config"
	"github.com/violencesense/vsense/internal/logging"
	"github.com/violencesense/vsense/internal/mock"
	"github.com/violencesense/vsense/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: vsense.yaml in . or ./configs)")
	scenarioPath := flag.String("scenario", "", "Override mock.scenario")
	port := flag.Int("port", 0, "Override mock.port")
	token := flag.String("token", "", "Require this token on /ws and /api (default: api.token)")
	maxConns := flag.Int("max-conns", 64, "Maximum concurrent WebSocket clients (0 = unlimited)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *scenarioPath != "" {
		cfg.Mock.Scenario = *scenarioPath
	}
	if *port > 0 {
		cfg.Mock.Port = *port
	}
	if *token == "" {
		*token = cfg.API.Token
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *token, *maxConns, logger); err != nil {
		logger.Error("mock server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, token string, maxConns int, logger *zap.Logger) error {
	sc := mock.DefaultScenario()
	if cfg.Mock.Scenario != "" {
		loaded, err := mock.LoadScenario(cfg.Mock.Scenario)
		if err != nil {
			return err
		}
		sc = loaded
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fleet := mock.NewFleet(sc)
	broadcaster := ws.NewBroadcaster(maxConns, logger, reg)
	defer broadcaster.Stop()
	broadcaster.StartPing(cfg.Mock.PingInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mock.NewGenerator(fleet, broadcaster, sc.Interval, nil, logger).Start(ctx)

	logger.Info("mock fleet ready",
		zap.Int("cameras", len(sc.Cameras)),
		zap.Duration("interval", sc.Interval),
		zap.Float64("threshold", sc.Threshold),
		zap.Bool("auth", token != ""))

	addr := net.JoinHostPort(cfg.Mock.Host, strconv.Itoa(cfg.Mock.Port))
	server := ws.NewServer(broadcaster, fleet, token, reg, logger)
	return ws.ListenAndServe(ctx, addr, server, logger)
}
