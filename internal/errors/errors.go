// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a campaign row does not exist
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrDestinationNotFound is fatal for the campaign that references it
type ErrDestinationNotFound struct {
	DestinationID string
}

func (e *ErrDestinationNotFound) Error() string {
	return fmt.Sprintf("destination %s not found", e.DestinationID)
}

func NewDestinationNotFound(id string) error {
	return &ErrDestinationNotFound{DestinationID: id}
}

// ErrNoCredential means neither the destination nor its owner has a connected bot.
type ErrNoCredential struct {
	UserID string
}

func (e *ErrNoCredential) Error() string {
	return fmt.Sprintf("no connected bot integration for user %s", e.UserID)
}

func NewNoCredential(userID string) error {
	return &ErrNoCredential{UserID: userID}
}

// ErrNoMediaSource means the campaign names neither a media pack nor private storage.
type ErrNoMediaSource struct {
	CampaignID string
}

func (e *ErrNoMediaSource) Error() string {
	return fmt.Sprintf("campaign %s has no media source", e.CampaignID)
}

func NewNoMediaSource(campaignID string) error {
	return &ErrNoMediaSource{CampaignID: campaignID}
}

// ErrStaleContinuation marks a continuation whose offset no longer matches the ledger.
var ErrStaleContinuation = errors.New("stale continuation")

// ErrLedgerConflict means another writer advanced the campaign before this chunk committed.
var ErrLedgerConflict = errors.New("campaign progress advanced concurrently")

// IsFatal reports whether err terminates a campaign as failed.
func IsFatal(err error) bool {
	var dest *ErrDestinationNotFound
	var cred *ErrNoCredential
	var src *ErrNoMediaSource
	return errors.As(err, &dest) || errors.As(err, &cred) || errors.As(err, &src)
}
