package api

import (
	"context"
	"net/http"
)

// GetModelConfig fetches GET /api/model/config.
func (c *Client) GetModelConfig(ctx context.Context) Response[ModelConfig] {
	return getJSON[ModelConfig](ctx, c, "/api/model/config", nil)
}

// UpdateModelConfig sends PUT /api/model/config.
func (c *Client) UpdateModelConfig(ctx context.Context, cfg ModelConfig) Response[ModelConfig] {
	return sendJSON[ModelConfig](ctx, c, http.MethodPut, "/api/model/config", cfg)
}

// LoadModel sends POST /api/model/load.
func (c *Client) LoadModel(ctx context.Context, req LoadModelRequest) Response[ModelStatus] {
	return sendJSON[ModelStatus](ctx, c, http.MethodPost, "/api/model/load", req)
}

// ModelStatus fetches GET /api/model/status.
func (c *Client) ModelStatus(ctx context.Context) Response[ModelStatus] {
	return getJSON[ModelStatus](ctx, c, "/api/model/status", nil)
}

// ModelMetrics fetches GET /api/model/metrics.
func (c *Client) ModelMetrics(ctx context.Context) Response[ModelMetrics] {
	return getJSON[ModelMetrics](ctx, c, "/api/model/metrics", nil)
}
