// Package provider delivers media items to a chat through the Telegram Bot API,
// escalating delivery strategy when the provider rejects a request.
//
// The cascade for one item is: send by URL, then download-and-upload for
// URL-fetch rejections, then document escalation for size/format rejections.
// Rate-limited requests are retried once after the provider's cooldown.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/unclebandit/broadcast-dispatcher/internal/media"
	"github.com/unclebandit/broadcast-dispatcher/internal/metrics"
)

// Upload is a downloaded file ready for multipart re-upload.
type Upload struct {
	Name string
	MIME string
	Data []byte
}

// API is the provider's send surface.
type API interface {
	SendURL(ctx context.Context, token, chatID string, kind media.Kind, url, caption string) error
	SendUpload(ctx context.Context, token, chatID string, kind media.Kind, up Upload, caption string) error
}

type Options struct {
	HTTPClient        *http.Client
	RatePerSec        int
	MaxBytes          int64
	DocumentThreshold int64
	Metrics           *metrics.Metrics
	Logger            zerolog.Logger
}

type Client struct {
	api          API
	http         *http.Client
	limiter      *rate.Limiter
	maxBytes     int64
	docThreshold int64
	metrics      *metrics.Metrics
	log          zerolog.Logger

	// sleep waits out provider cooldowns; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(api API, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Minute}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 45 * mb
	}
	docThreshold := opts.DocumentThreshold
	if docThreshold <= 0 {
		docThreshold = 10 * mb
	}
	return &Client{
		api:          api,
		http:         hc,
		limiter:      limiter,
		maxBytes:     maxBytes,
		docThreshold: docThreshold,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		sleep:        sleepCtx,
	}
}

// Send delivers one item. caption must be empty for every item but the
// campaign's first.
func (c *Client) Send(ctx context.Context, token, chatID string, item media.Item, caption string) error {
	if item.Kind == media.KindDocument {
		return c.sendDocument(ctx, token, chatID, item, caption)
	}

	err := c.call(ctx, func() error {
		return c.api.SendURL(ctx, token, chatID, item.Kind, item.URL, caption)
	})
	if err == nil {
		return nil
	}

	switch Classify(err) {
	case ClassFetch:
		c.log.Debug().Err(err).Int("offset", item.Offset).Msg("direct url rejected, uploading")
		c.metrics.Fallback("upload")
		return c.downloadAndUpload(ctx, token, chatID, item, caption)
	case ClassSize:
		c.log.Debug().Err(err).Int("offset", item.Offset).Msg("media rejected for size, sending as document")
		c.metrics.Fallback("document")
		return c.sendDocument(ctx, token, chatID, item, caption)
	default:
		return err
	}
}

func (c *Client) downloadAndUpload(ctx context.Context, token, chatID string, item media.Item, caption string) error {
	data, err := c.download(ctx, item.URL)
	if err != nil {
		return err
	}

	kind := item.Kind
	if kind != media.KindDocument && int64(len(data)) > c.docThreshold {
		c.metrics.Fallback("document")
		kind = media.KindDocument
	}
	up := Upload{Name: media.FileName(item.URL), MIME: media.MIMEType(item.URL), Data: data}
	return c.call(ctx, func() error {
		return c.api.SendUpload(ctx, token, chatID, kind, up, caption)
	})
}

// sendDocument tries the document channel by URL, then by upload.
func (c *Client) sendDocument(ctx context.Context, token, chatID string, item media.Item, caption string) error {
	err := c.call(ctx, func() error {
		return c.api.SendURL(ctx, token, chatID, media.KindDocument, item.URL, caption)
	})
	if err == nil {
		return nil
	}
	if isHard(err) || ctx.Err() != nil {
		return err
	}

	c.metrics.Fallback("upload")
	doc := item
	doc.Kind = media.KindDocument
	return c.downloadAndUpload(ctx, token, chatID, doc, caption)
}

// call runs one provider request, retrying it exactly once after a rate-limit
// cooldown. A failed retry is final for the item.
func (c *Client) call(ctx context.Context, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	if err == nil || Classify(err) != ClassRateLimit {
		return err
	}

	c.metrics.RateLimit()
	delay := retryDelay(err)
	c.log.Warn().Dur("retry_after", delay).Msg("rate limited by provider")
	if err := c.sleep(ctx, delay); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return &hardError{err: err}
	}
	return nil
}

func isHard(err error) bool {
	var h *hardError
	return errors.As(err, &h)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
