package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// ListVideos fetches GET /api/videos.
func (c *Client) ListVideos(ctx context.Context, opts ListOptions) Response[[]Video] {
	return getJSON[[]Video](ctx, c, "/api/videos", pageQuery(opts.Page, opts.Limit))
}

// GetVideo fetches GET /api/videos/{id}.
func (c *Client) GetVideo(ctx context.Context, id string) Response[Video] {
	return getJSON[Video](ctx, c, "/api/videos/"+url.PathEscape(id), nil)
}

// DeleteVideo sends DELETE /api/videos/{id}.
func (c *Client) DeleteVideo(ctx context.Context, id string) Response[struct{}] {
	return sendJSON[struct{}](ctx, c, http.MethodDelete, "/api/videos/"+url.PathEscape(id), nil)
}

// UploadVideo streams r as the multipart "video" field of
// POST /api/videos/upload. Uploads are never retried.
func (c *Client) UploadVideo(ctx context.Context, filename string, r io.Reader) Response[Video] {
	build := func(ctx context.Context) (*http.Request, error) {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			part, err := mw.CreateFormFile("video", filename)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, r); err != nil {
				pw.CloseWithError(fmt.Errorf("copy video: %w", err))
				return
			}
			pw.CloseWithError(mw.Close())
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/videos/upload", pr)
		if err != nil {
			pr.Close()
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Accept", "application/json")
		c.setAuth(req)
		return req, nil
	}
	return exchange[Video](ctx, c, false, build)
}
