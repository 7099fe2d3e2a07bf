package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const mb = 1024 * 1024

func tooLarge(size, limit int64) error {
	return fmt.Errorf("%w: %.1f MB exceeds %d MB limit", ErrTooLarge, float64(size)/mb, limit/mb)
}

// download fetches rawURL fully into memory. The ceiling is checked against
// the HEAD Content-Length first so doomed transfers never start.
func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	if size, ok := c.probeSize(ctx, rawURL); ok && size > c.maxBytes {
		return nil, tooLarge(size, c.maxBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download %s: HTTP %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > c.maxBytes {
		return nil, tooLarge(resp.ContentLength, c.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, tooLarge(int64(len(data)), c.maxBytes)
	}
	return data, nil
}

// probeSize returns the advertised size; servers without HEAD support are not an error.
func (c *Client) probeSize(ctx context.Context, rawURL string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.ContentLength < 0 {
		return 0, false
	}
	return resp.ContentLength, true
}
