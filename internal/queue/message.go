package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ContinueTopic carries requests to process a campaign's next chunk.
const ContinueTopic = "campaign_continue"

// ContinueMessage asks for the chunk starting at Offset. It is only honoured
// while the campaign's sent_count still equals Offset.
type ContinueMessage struct {
	CampaignID string    `json:"campaign_id"`
	Offset     int       `json:"offset"`
	IssuedAt   time.Time `json:"issued_at"`
}

func (m ContinueMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeContinue(body []byte) (ContinueMessage, error) {
	var m ContinueMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("decode continue message: %w", err)
	}
	if m.CampaignID == "" {
		return m, errors.New("continue message has no campaign_id")
	}
	if m.Offset < 0 {
		return m, fmt.Errorf("continue message has negative offset %d", m.Offset)
	}
	return m, nil
}
