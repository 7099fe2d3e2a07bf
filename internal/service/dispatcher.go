package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/media"
	"github.com/unclebandit/broadcast-dispatcher/internal/metrics"
	"github.com/unclebandit/broadcast-dispatcher/internal/model"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
)

// Sender delivers one item to a chat.
type Sender interface {
	Send(ctx context.Context, token, chatID string, item media.Item, caption string) error
}

// MediaResolver produces the items of a campaign's window.
type MediaResolver interface {
	Resolve(ctx context.Context, c *model.Campaign, start, end int) ([]media.Item, error)
}

type OutcomeKind string

const (
	OutcomeIdle       OutcomeKind = "idle"
	OutcomeDispatched OutcomeKind = "dispatched"
	OutcomeFinalized  OutcomeKind = "finalized"
	OutcomeExhausted  OutcomeKind = "exhausted"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomeStale      OutcomeKind = "stale"
)

// Report is the trigger's success body.
type Report struct {
	CampaignID     string `json:"campaignId"`
	Progress       int    `json:"progress"`
	SentCount      int    `json:"sentCount"`
	SuccessCount   int    `json:"successCount"`
	ErrorCount     int    `json:"errorCount"`
	TotalCount     int    `json:"totalCount"`
	IsComplete     bool   `json:"isComplete"`
	AvgTimePerItem int    `json:"avgTimePerItem"`
}

func reportOf(c *model.Campaign) *Report {
	return &Report{
		CampaignID:     c.ID,
		Progress:       c.Progress,
		SentCount:      c.SentCount,
		SuccessCount:   c.SuccessCount,
		ErrorCount:     c.ErrorCount,
		TotalCount:     c.TotalCount,
		IsComplete:     c.Status == model.StatusCompleted,
		AvgTimePerItem: c.AvgSendTimeMs,
	}
}

// Outcome describes what one dispatch cycle did.
type Outcome struct {
	Kind    OutcomeKind
	Report  *Report
	Message string
}

// Dispatcher runs one cycle: reserve, resolve, execute, commit, continue.
type Dispatcher struct {
	Scheduler    *Scheduler
	Resolver     MediaResolver
	Executor     *Executor
	Sender       Sender
	Ledger       *Ledger
	Continuation *Continuation
	Metrics      *metrics.Metrics
	Log          zerolog.Logger
}

// RunOnce advances the oldest running campaign by one chunk.
func (d *Dispatcher) RunOnce(ctx context.Context) (Outcome, error) {
	c, err := d.Scheduler.SelectAndReserve(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if c == nil {
		return Outcome{Kind: OutcomeIdle, Message: "No running campaigns to process"}, nil
	}
	return d.advance(ctx, c)
}

// Continue advances the campaign named by a continuation message. Stale
// messages are acknowledged without doing anything.
func (d *Dispatcher) Continue(ctx context.Context, msg queue.ContinueMessage) (Outcome, error) {
	c, err := d.Scheduler.ReserveContinuation(ctx, msg)
	var notFound *appErrors.ErrCampaignNotFound
	switch {
	case errors.Is(err, appErrors.ErrStaleContinuation), errors.As(err, &notFound):
		d.Log.Debug().Err(err).Str("campaign_id", msg.CampaignID).Int("offset", msg.Offset).Msg("dropping continuation")
		return Outcome{Kind: OutcomeStale, Message: err.Error()}, nil
	case err != nil:
		return Outcome{}, fmt.Errorf("reserve campaign %s: %w", msg.CampaignID, err)
	case c == nil:
		return Outcome{Kind: OutcomeStale, Message: "campaign not eligible"}, nil
	}
	return d.advance(ctx, c)
}

// Sweep advances one running campaign whose chain of continuations broke.
func (d *Dispatcher) Sweep(ctx context.Context) (Outcome, error) {
	c, err := d.Scheduler.ReserveStalled(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if c == nil {
		return Outcome{Kind: OutcomeIdle, Message: "No stalled campaigns"}, nil
	}
	d.Log.Info().Str("campaign_id", c.ID).Int("sent_count", c.SentCount).Msg("recovering stalled campaign")
	return d.advance(ctx, c)
}

func (d *Dispatcher) advance(ctx context.Context, c *model.Campaign) (Outcome, error) {
	log := d.Log.With().Str("campaign_id", c.ID).Logger()
	campaigns := d.Scheduler.Campaigns

	if c.Exhausted() {
		if err := campaigns.MarkCompleted(ctx, c.ID, 100); err != nil {
			return Outcome{}, fmt.Errorf("finalize campaign %s: %w", c.ID, err)
		}
		d.Metrics.Finished(string(model.StatusCompleted))
		c.Status, c.Progress = model.StatusCompleted, 100
		log.Info().Int("sent_count", c.SentCount).Msg("campaign already complete, finalized")
		return Outcome{Kind: OutcomeFinalized, Report: reportOf(c)}, nil
	}

	target, err := d.Scheduler.ResolveTarget(ctx, c)
	if err != nil {
		return d.abort(ctx, c, err)
	}

	start, end := d.Scheduler.Window(c)
	items, err := d.Resolver.Resolve(ctx, c, start, end)
	if err != nil {
		return d.abort(ctx, c, err)
	}
	if len(items) == 0 {
		// The source ran dry before total_count; finish rather than retry forever.
		if err := campaigns.MarkCompleted(ctx, c.ID, c.Progress); err != nil {
			return Outcome{}, fmt.Errorf("complete exhausted campaign %s: %w", c.ID, err)
		}
		d.Metrics.Finished(string(model.StatusCompleted))
		c.Status = model.StatusCompleted
		log.Info().Int("sent_count", c.SentCount).Int("total_count", c.TotalCount).Msg("media source exhausted, campaign completed")
		return Outcome{Kind: OutcomeExhausted, Report: reportOf(c)}, nil
	}

	log.Info().Int("start", start).Int("end", end).Int("items", len(items)).Msg("dispatching chunk")
	caption := c.CaptionText()
	res := d.Executor.RunChunk(ctx, items, func(ctx context.Context, item media.Item) error {
		text := ""
		if item.Offset == 0 {
			text = caption
		}
		return d.Sender.Send(ctx, target.Token, target.ChatID, item, text)
	})

	updated, err := d.Ledger.Commit(ctx, c, res)
	if err != nil {
		return Outcome{}, err
	}
	log.Info().
		Int("sent_count", updated.SentCount).
		Int("success", res.Successes).
		Int("failed", len(res.Failures)).
		Dur("elapsed", res.Elapsed).
		Msg("chunk committed")

	if err := d.Continuation.MaybeContinue(ctx, updated); err != nil {
		log.Error().Err(err).Msg("failed to schedule continuation")
	}
	return Outcome{Kind: OutcomeDispatched, Report: reportOf(updated)}, nil
}

// abort fails the campaign for fatal errors and releases the lease for the rest.
func (d *Dispatcher) abort(ctx context.Context, c *model.Campaign, cause error) (Outcome, error) {
	campaigns := d.Scheduler.Campaigns
	if appErrors.IsFatal(cause) {
		if err := campaigns.MarkFailed(ctx, c.ID, cause.Error()); err != nil {
			return Outcome{}, fmt.Errorf("mark campaign %s failed: %w", c.ID, err)
		}
		d.Metrics.Finished(string(model.StatusFailed))
		d.Log.Error().Err(cause).Str("campaign_id", c.ID).Msg("campaign failed")
		return Outcome{Kind: OutcomeFailed, Message: cause.Error()}, cause
	}

	if err := campaigns.Release(ctx, c.ID); err != nil {
		d.Log.Warn().Err(err).Str("campaign_id", c.ID).Msg("failed to release lease")
	}
	return Outcome{}, cause
}
