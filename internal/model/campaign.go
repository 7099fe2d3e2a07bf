// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	StatusPending   CampaignStatus = "pending"
	StatusRunning   CampaignStatus = "running"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
)

// Terminal reports whether no further dispatch may happen for the status.
func (s CampaignStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Campaign struct {
	ID                string         `db:"id" json:"id"`
	UserID            string         `db:"user_id" json:"user_id"`
	DestinationID     string         `db:"destination_id" json:"destination_id"`
	MediaPackID       *string        `db:"media_pack_id" json:"media_pack_id,omitempty"`
	UsePrivateStorage bool           `db:"use_private_storage" json:"use_private_storage"`
	Caption           *string        `db:"caption" json:"caption,omitempty"`
	TotalCount        int            `db:"total_count" json:"total_count"`
	SentCount         int            `db:"sent_count" json:"sent_count"`
	SuccessCount      int            `db:"success_count" json:"success_count"`
	ErrorCount        int            `db:"error_count" json:"error_count"`
	Progress          int            `db:"progress" json:"progress"`
	AvgSendTimeMs     int            `db:"avg_send_time_ms" json:"avg_send_time_ms"`
	Status            CampaignStatus `db:"status" json:"status"`
	DelaySeconds      float64        `db:"delay_seconds" json:"delay_seconds"`
	ErrorsLog         ErrorLog       `db:"errors_log" json:"errors_log"`
	ErrorMessage      *string        `db:"error_message" json:"error_message,omitempty"`
	LeasedUntil       *time.Time     `db:"leased_until" json:"leased_until,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// CaptionText returns the caption or "" when none is configured.
func (c *Campaign) CaptionText() string {
	if c.Caption == nil {
		return ""
	}
	return *c.Caption
}

// Remaining is the number of items not yet accounted for by the ledger.
func (c *Campaign) Remaining() int {
	if c.SentCount >= c.TotalCount {
		return 0
	}
	return c.TotalCount - c.SentCount
}

// Exhausted reports whether the ledger already covers the whole campaign.
func (c *Campaign) Exhausted() bool {
	return c.SentCount >= c.TotalCount
}
