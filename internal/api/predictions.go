package api

import (
	"context"
	"net/http"
	"net/url"
)

// CreatePrediction sends POST /api/predictions for a stored video.
func (c *Client) CreatePrediction(ctx context.Context, videoID string) Response[Prediction] {
	body := map[string]string{"video_id": videoID}
	return sendJSON[Prediction](ctx, c, http.MethodPost, "/api/predictions", body)
}

// GetPrediction fetches GET /api/predictions/{id}.
func (c *Client) GetPrediction(ctx context.Context, id string) Response[Prediction] {
	return getJSON[Prediction](ctx, c, "/api/predictions/"+url.PathEscape(id), nil)
}

// ListPredictions fetches GET /api/predictions.
func (c *Client) ListPredictions(ctx context.Context, opts ListOptions) Response[[]Prediction] {
	return getJSON[[]Prediction](ctx, c, "/api/predictions", pageQuery(opts.Page, opts.Limit))
}

// PredictionsForVideo fetches GET /api/predictions/video/{videoID}.
func (c *Client) PredictionsForVideo(ctx context.Context, videoID string) Response[[]Prediction] {
	return getJSON[[]Prediction](ctx, c, "/api/predictions/video/"+url.PathEscape(videoID), nil)
}
