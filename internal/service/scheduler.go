package service

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/model"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
	"github.com/unclebandit/broadcast-dispatcher/internal/repository"
)

// Target is where a reserved campaign's chunk goes.
type Target struct {
	ChatID string
	Token  string
}

// Scheduler picks the campaign to advance and leases it. A lease lasts until
// the ledger commits the chunk or LeaseTTL passes.
type Scheduler struct {
	Campaigns    repository.CampaignRepositoryInterface
	Destinations repository.DestinationRepositoryInterface
	Credentials  repository.CredentialRepositoryInterface

	ChunkSize  int
	LeaseTTL   time.Duration
	StaleAfter time.Duration
}

// SelectAndReserve leases the oldest running campaign, or returns nil when there is none.
func (s *Scheduler) SelectAndReserve(ctx context.Context) (*model.Campaign, error) {
	c, err := s.Campaigns.SelectAndReserve(ctx, s.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("reserve campaign: %w", err)
	}
	return c, nil
}

// ReserveContinuation leases the campaign named by msg. Messages whose offset
// no longer matches the ledger come back as ErrStaleContinuation.
func (s *Scheduler) ReserveContinuation(ctx context.Context, msg queue.ContinueMessage) (*model.Campaign, error) {
	return s.Campaigns.ReserveByID(ctx, msg.CampaignID, msg.Offset, s.LeaseTTL)
}

// ReserveStalled leases a running campaign nobody advanced for StaleAfter.
func (s *Scheduler) ReserveStalled(ctx context.Context) (*model.Campaign, error) {
	c, err := s.Campaigns.ReserveStalled(ctx, s.StaleAfter, s.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("reserve stalled campaign: %w", err)
	}
	return c, nil
}

// Window is the next chunk's offset range [start, end).
func (s *Scheduler) Window(c *model.Campaign) (int, int) {
	start := c.SentCount
	return start, start + min(s.ChunkSize, c.Remaining())
}

// ResolveTarget finds the chat and bot token for c. A missing destination or
// credential is reported as a fatal appErrors value.
func (s *Scheduler) ResolveTarget(ctx context.Context, c *model.Campaign) (Target, error) {
	dest, err := s.Destinations.GetByID(ctx, c.DestinationID)
	if err != nil {
		return Target{}, fmt.Errorf("load destination %s: %w", c.DestinationID, err)
	}
	if dest == nil {
		return Target{}, appErrors.NewDestinationNotFound(c.DestinationID)
	}

	var cred *model.Integration
	if dest.IntegrationID != nil && *dest.IntegrationID != "" {
		cred, err = s.Credentials.GetConnected(ctx, *dest.IntegrationID)
		if err != nil {
			return Target{}, fmt.Errorf("load integration %s: %w", *dest.IntegrationID, err)
		}
	}
	if cred == nil {
		cred, err = s.Credentials.LatestConnected(ctx, c.UserID)
		if err != nil {
			return Target{}, fmt.Errorf("load integrations of user %s: %w", c.UserID, err)
		}
	}
	if cred == nil || cred.BotToken == "" {
		return Target{}, appErrors.NewNoCredential(c.UserID)
	}
	return Target{ChatID: dest.ChatID, Token: cred.BotToken}, nil
}
