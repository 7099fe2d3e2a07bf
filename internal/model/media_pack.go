// internal/model/media_pack.go
package model

import (
	"encoding/json"
	"strings"
)

type MediaPack struct {
	ID    string          `db:"id" json:"id"`
	Name  string          `db:"name" json:"name"`
	Files json.RawMessage `db:"files" json:"files"`
}

// URLs decodes the stored file list. Entries are either bare URL strings or
// objects carrying a "url" field; anything else is skipped.
func (p *MediaPack) URLs() ([]string, error) {
	if len(p.Files) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(p.Files, &raw); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(raw))
	for _, entry := range raw {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				urls = append(urls, s)
			}
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil {
			if u := strings.TrimSpace(obj.URL); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls, nil
}
