package blobstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mediavault/link-engine/internal/models"
	"github.com/mediavault/link-engine/internal/services"
)

// Client fetches file bytes from the blob store over HTTP. The engine
// never touches blob bytes except to proxy them to an authorized
// client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a blob store client
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// OpenStream opens the blob identified by blobRef. A non-empty Range
// header is forwarded unchanged so the blob store serves the partial
// content itself. The caller owns the returned body.
func (c *Client) OpenStream(ctx context.Context, blobRef, rangeHeader string) (*services.BlobStream, error) {
	u := fmt.Sprintf("%s/blobs/%s", c.baseURL, url.PathEscape(blobRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob store request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, models.ErrNotFound
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		return nil, fmt.Errorf("blob store rejected range %q", rangeHeader)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("blob store returned status %d", resp.StatusCode)
	}

	length := int64(-1)
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			length = n
		}
	}
	return &services.BlobStream{
		Body:          resp.Body,
		Status:        resp.StatusCode,
		ContentLength: length,
		ContentRange:  resp.Header.Get("Content-Range"),
	}, nil
}
