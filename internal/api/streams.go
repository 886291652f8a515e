package api

import (
	"context"
	"net/http"
	"net/url"
)

func streamPath(id string) string {
	return "/api/streams/" + url.PathEscape(id)
}

// ListStreams fetches GET /api/streams.
func (c *Client) ListStreams(ctx context.Context) Response[[]Stream] {
	return getJSON[[]Stream](ctx, c, "/api/streams", nil)
}

// GetStream fetches GET /api/streams/{id}.
func (c *Client) GetStream(ctx context.Context, id string) Response[Stream] {
	return getJSON[Stream](ctx, c, streamPath(id), nil)
}

// CreateStream sends POST /api/streams.
func (c *Client) CreateStream(ctx context.Context, in StreamInput) Response[Stream] {
	return sendJSON[Stream](ctx, c, http.MethodPost, "/api/streams", in)
}

// DeleteStream sends DELETE /api/streams/{id}.
func (c *Client) DeleteStream(ctx context.Context, id string) Response[struct{}] {
	return sendJSON[struct{}](ctx, c, http.MethodDelete, streamPath(id), nil)
}

// StartStream sends POST /api/streams/{id}/start.
func (c *Client) StartStream(ctx context.Context, id string) Response[StreamState] {
	return sendJSON[StreamState](ctx, c, http.MethodPost, streamPath(id)+"/start", nil)
}

// StopStream sends POST /api/streams/{id}/stop.
func (c *Client) StopStream(ctx context.Context, id string) Response[StreamState] {
	return sendJSON[StreamState](ctx, c, http.MethodPost, streamPath(id)+"/stop", nil)
}

// StreamStatus fetches GET /api/streams/{id}/status.
func (c *Client) StreamStatus(ctx context.Context, id string) Response[StreamState] {
	return getJSON[StreamState](ctx, c, streamPath(id)+"/status", nil)
}
