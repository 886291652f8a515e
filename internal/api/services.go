package api

import (
	"go.uber.org/zap"

	"github.com/violencesense/vsense/internal/config"
)

// Services bundles one client per collaborator. Build it once at startup
// and pass it to consumers.
type Services struct {
	Main  *Client // videos, predictions
	Model *Client // model config, load, status, metrics
	RTSP  *Client // streams, events
}

// NewServices builds the collaborator clients from configuration. Each
// service gets its own breaker and limiter.
func NewServices(cfg config.APIConfig, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	build := func(name, baseURL string) *Client {
		return NewClient(baseURL, cfg.Token,
			WithTimeout(cfg.Timeout),
			WithRetry(uint(max(cfg.Retries, 1))),
			WithRateLimit(cfg.RateLimit, int(max(cfg.RateLimit, 1))),
			WithLogger(logger.Named("api").With(zap.String("service", name))),
			WithCircuitBreaker(name),
		)
	}
	return &Services{
		Main:  build("main-api", cfg.URL),
		Model: build("model-service", cfg.ModelURL),
		RTSP:  build("rtsp-service", cfg.RTSPURL),
	}
}
