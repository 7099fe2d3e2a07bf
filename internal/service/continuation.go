package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/broadcast-dispatcher/internal/model"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
)

const (
	minContinueDelay = time.Millisecond
	maxContinueDelay = 2 * time.Second
)

// Continuation schedules the next chunk of an unfinished campaign by
// publishing a ContinueMessage after the campaign's pacing delay.
type Continuation struct {
	Queue    queue.Queue
	Attempts int
	Backoff  time.Duration
	Log      zerolog.Logger

	// sleep and now are replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// PacingDelay converts delay_seconds to the wait before continuing, clamped to [1ms, 2s].
func PacingDelay(delaySeconds float64) time.Duration {
	d := time.Duration(delaySeconds * float64(time.Second))
	if d < minContinueDelay {
		return minContinueDelay
	}
	if d > maxContinueDelay {
		return maxContinueDelay
	}
	return d
}

// MaybeContinue does nothing for a completed campaign. Otherwise it waits the
// pacing delay and publishes the continuation, retrying with linear backoff.
// A final error leaves the campaign for the stalled-campaign sweep.
func (c *Continuation) MaybeContinue(ctx context.Context, campaign *model.Campaign) error {
	if campaign.Status.Terminal() || campaign.Exhausted() {
		return nil
	}

	sleep := c.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	now := c.now
	if now == nil {
		now = time.Now
	}

	if err := sleep(ctx, PacingDelay(campaign.DelaySeconds)); err != nil {
		return err
	}

	body, err := queue.ContinueMessage{
		CampaignID: campaign.ID,
		Offset:     campaign.SentCount,
		IssuedAt:   now().UTC(),
	}.Encode()
	if err != nil {
		return err
	}

	attempts := max(c.Attempts, 1)
	for attempt := 1; ; attempt++ {
		err = c.Queue.Publish(ctx, queue.ContinueTopic, body)
		if err == nil {
			c.Log.Debug().Str("campaign_id", campaign.ID).Int("offset", campaign.SentCount).Msg("continuation queued")
			return nil
		}
		if errors.Is(err, queue.ErrClosed) {
			c.Log.Info().Str("campaign_id", campaign.ID).Int("offset", campaign.SentCount).Msg("queue closed, leaving campaign to the sweeper")
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("publish continuation for campaign %s after %d attempts: %w", campaign.ID, attempt, err)
		}
		c.Log.Warn().Err(err).Str("campaign_id", campaign.ID).Int("attempt", attempt).Msg("continuation publish failed, retrying")
		if err := sleep(ctx, time.Duration(attempt)*c.Backoff); err != nil {
			return err
		}
	}
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
