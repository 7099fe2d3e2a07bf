package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
)

// ContinueProcessor is the part of Dispatcher the worker needs.
type ContinueProcessor interface {
	Continue(ctx context.Context, msg queue.ContinueMessage) (Outcome, error)
}

// Worker consumes continuation messages and advances their campaigns.
type Worker struct {
	Queue      queue.Queue
	Dispatcher ContinueProcessor
	Log        zerolog.Logger
}

// Constructor
func NewWorker(q queue.Queue, d ContinueProcessor, log zerolog.Logger) *Worker {
	return &Worker{
		Queue:      q,
		Dispatcher: d,
		Log:        log,
	}
}

// Start subscribes to the continuation topic.
func (w *Worker) Start() error {
	return w.Queue.Subscribe(queue.ContinueTopic, w.Handle)
}

// Handle processes one continuation message. Malformed messages and campaigns
// that failed for good are acknowledged; other errors ask the queue to retry.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	msg, err := queue.DecodeContinue(body)
	if err != nil {
		w.Log.Warn().Err(err).Msg("invalid continuation message")
		return nil
	}

	outcome, err := w.Dispatcher.Continue(ctx, msg)
	if err != nil {
		if appErrors.IsFatal(err) {
			return nil
		}
		if errors.Is(err, appErrors.ErrLedgerConflict) {
			w.Log.Warn().Str("campaign_id", msg.CampaignID).Msg("campaign advanced concurrently, dropping continuation")
			return nil
		}
		w.Log.Error().Err(err).Str("campaign_id", msg.CampaignID).Int("offset", msg.Offset).Msg("continuation failed")
		return err
	}

	ev := w.Log.Debug().Str("campaign_id", msg.CampaignID).Str("outcome", string(outcome.Kind))
	if outcome.Report != nil {
		ev = ev.Int("sent_count", outcome.Report.SentCount).Bool("complete", outcome.Report.IsComplete)
	}
	ev.Msg("continuation processed")
	return nil
}
