package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListEvents fetches GET /api/events, newest first.
func (c *Client) ListEvents(ctx context.Context, f EventFilter) Response[[]ViolenceEvent] {
	q := pageQuery(f.Page, f.Limit)
	if f.StreamID != "" {
		q.Set("stream_id", f.StreamID)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Severity != "" {
		q.Set("severity", string(f.Severity))
	}
	return getJSON[[]ViolenceEvent](ctx, c, "/api/events", q)
}

// GetEvent fetches GET /api/events/{id}.
func (c *Client) GetEvent(ctx context.Context, id string) Response[ViolenceEvent] {
	return getJSON[ViolenceEvent](ctx, c, "/api/events/"+url.PathEscape(id), nil)
}

// UpdateEventStatus sends PATCH /api/events/{id}/status. Unknown statuses
// are rejected without a request.
func (c *Client) UpdateEventStatus(ctx context.Context, id string, status EventStatus, notes string) Response[ViolenceEvent] {
	if !status.Valid() {
		return failure[ViolenceEvent](fmt.Errorf("invalid event status %q", status))
	}
	body := StatusUpdate{Status: status, Notes: notes}
	return sendJSON[ViolenceEvent](ctx, c, http.MethodPatch, "/api/events/"+url.PathEscape(id)+"/status", body)
}

// EventStats fetches GET /api/events/stats.
func (c *Client) EventStats(ctx context.Context) Response[EventStats] {
	return getJSON[EventStats](ctx, c, "/api/events/stats", nil)
}
