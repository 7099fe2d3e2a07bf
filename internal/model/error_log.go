package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MaxErrorLogEntries bounds the per-campaign error ring.
const MaxErrorLogEntries = 50

type ErrorEntry struct {
	Offset int       `json:"offset"`
	URL    string    `json:"url"`
	Error  string    `json:"error"`
	At     time.Time `json:"timestamp"`
}

// ErrorLog is stored as a JSONB array, oldest entry first.
type ErrorLog []ErrorEntry

// Append adds entries and keeps only the most recent MaxErrorLogEntries.
func (l ErrorLog) Append(entries ...ErrorEntry) ErrorLog {
	out := make(ErrorLog, 0, len(l)+len(entries))
	out = append(out, l...)
	out = append(out, entries...)
	if len(out) > MaxErrorLogEntries {
		out = append(ErrorLog(nil), out[len(out)-MaxErrorLogEntries:]...)
	}
	return out
}

func (l ErrorLog) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *ErrorLog) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = ErrorLog{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("errors_log: unsupported type %T", src)
	}
	if len(data) == 0 {
		*l = ErrorLog{}
		return nil
	}
	var out ErrorLog
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("errors_log: %w", err)
	}
	*l = out
	return nil
}
