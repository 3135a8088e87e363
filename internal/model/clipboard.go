package model

import "time"

// Clipboard is the single shared text value of the clipboard endpoint
type Clipboard struct {
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}
