package service

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/metrics"
	"github.com/unclebandit/broadcast-dispatcher/internal/model"
	"github.com/unclebandit/broadcast-dispatcher/internal/repository"
)

// Ledger is the only writer of campaign progress.
type Ledger struct {
	Campaigns repository.CampaignRepositoryInterface
	Usage     repository.UsageRepositoryInterface
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// ApplyChunk returns c advanced by one chunk's outcome. c is not modified.
func ApplyChunk(c model.Campaign, res ChunkResult) model.Campaign {
	processed := res.Processed()

	c.SentCount += processed
	c.SuccessCount += res.Successes
	c.ErrorCount += len(res.Failures)

	if len(res.Failures) > 0 {
		entries := make([]model.ErrorEntry, 0, len(res.Failures))
		for _, f := range res.Failures {
			entries = append(entries, model.ErrorEntry{Offset: f.Offset, URL: f.URL, Error: f.Message, At: f.At})
		}
		c.ErrorsLog = c.ErrorsLog.Append(entries...)
	}

	c.Progress = progress(c.SentCount, c.TotalCount)
	if processed > 0 {
		c.AvgSendTimeMs = int(res.Elapsed.Milliseconds() / int64(processed))
	}
	if c.SentCount >= c.TotalCount {
		c.Status = model.StatusCompleted
	}
	return c
}

func progress(sent, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(sent) / float64(total)))
}

// Commit persists the chunk outcome. It fails with ErrLedgerConflict when the
// stored sent_count moved since c was reserved; nothing is written then.
func (l *Ledger) Commit(ctx context.Context, c *model.Campaign, res ChunkResult) (*model.Campaign, error) {
	next := ApplyChunk(*c, res)

	ok, err := l.Campaigns.CommitChunk(ctx, &next, c.SentCount)
	if err != nil {
		return nil, fmt.Errorf("commit chunk for campaign %s: %w", c.ID, err)
	}
	if !ok {
		return nil, appErrors.ErrLedgerConflict
	}

	if next.Status == model.StatusCompleted {
		l.Metrics.Finished(string(model.StatusCompleted))
		if l.Usage != nil {
			if err := l.Usage.IncrementLifetime(ctx, next.UserID, next.SuccessCount); err != nil {
				l.Log.Warn().Err(err).Str("campaign_id", next.ID).Msg("failed to update lifetime usage")
			}
		}
	}
	return &next, nil
}
