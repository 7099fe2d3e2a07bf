// internal/model/destination.go
package model

import "time"

type Destination struct {
	ID            string  `db:"id" json:"id"`
	UserID        string  `db:"user_id" json:"user_id"`
	ChatID        string  `db:"chat_id" json:"chat_id"`
	IntegrationID *string `db:"integration_id" json:"integration_id,omitempty"`
}

// Integration is a connected bot credential.
type Integration struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	BotToken    string    `db:"bot_token" json:"-"`
	IsConnected bool      `db:"is_connected" json:"is_connected"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
