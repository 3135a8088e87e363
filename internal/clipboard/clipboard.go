// Package clipboard stores the single shared text value served on /clipboard.
package clipboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ytget/yt-download-proxy/internal/model"
)

// DefaultMaxBytes bounds the stored text
const DefaultMaxBytes = 100000

// Store holds the clipboard value.
type Store interface {
	Get(ctx context.Context) (model.Clipboard, error)
	Set(ctx context.Context, text string) (model.Clipboard, error)
}

// ParseText extracts the text field from a POST body. A missing or null
// field is the empty string; any other non-string value is rejected.
func ParseText(body []byte, maxBytes int) (string, error) {
	var req struct {
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return "", fmt.Errorf("%w: body must be a JSON object", model.ErrInvalidInput)
	}

	raw := bytes.TrimSpace(req.Text)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("%w: text must be a string", model.ErrInvalidInput)
	}
	if maxBytes > 0 && len(text) > maxBytes {
		return "", fmt.Errorf("%w: text exceeds %d bytes", model.ErrInvalidInput, maxBytes)
	}
	return text, nil
}

// next returns the value replacing prev. UpdatedAt never goes backwards.
func next(prev model.Clipboard, text string, now time.Time) model.Clipboard {
	now = now.UTC()
	if now.Before(prev.UpdatedAt) {
		now = prev.UpdatedAt
	}
	return model.Clipboard{Text: text, UpdatedAt: now}
}

// MemoryStore keeps the clipboard in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	value model.Clipboard
	now   func() time.Time
}

// NewMemoryStore creates an empty clipboard
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Get(context.Context) (model.Clipboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, nil
}

func (s *MemoryStore) Set(_ context.Context, text string) (model.Clipboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = next(s.value, text, s.now())
	return s.value, nil
}
