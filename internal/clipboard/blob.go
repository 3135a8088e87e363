package clipboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/ytget/yt-download-proxy/internal/model"
)

// DefaultKey is the object holding the clipboard document
const DefaultKey = "clipboard.json"

// BlobStore persists the clipboard as a JSON document in a bucket and serves
// reads from memory.
type BlobStore struct {
	bucket *blob.Bucket
	key    string

	mu    sync.RWMutex
	value model.Clipboard
	now   func() time.Time
}

// OpenBlobStore opens the bucket at url (file://, mem://, ...) and loads the
// stored document if any.
func OpenBlobStore(ctx context.Context, url string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open clipboard bucket: %w", err)
	}
	s, err := NewBlobStore(ctx, bucket, DefaultKey)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return s, nil
}

// NewBlobStore wraps an open bucket
func NewBlobStore(ctx context.Context, bucket *blob.Bucket, key string) (*BlobStore, error) {
	s := &BlobStore{bucket: bucket, key: key, now: time.Now}

	data, err := bucket.ReadAll(ctx, key)
	switch {
	case gcerrors.Code(err) == gcerrors.NotFound:
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read clipboard: %w", err)
	}

	if err := json.Unmarshal(data, &s.value); err != nil {
		return nil, fmt.Errorf("decode clipboard: %w", err)
	}
	return s, nil
}

func (s *BlobStore) Get(context.Context) (model.Clipboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, nil
}

// Set writes the new value to the bucket first; the in-memory value only
// changes when the write succeeded.
func (s *BlobStore) Set(ctx context.Context, text string) (model.Clipboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := next(s.value, text, s.now())
	data, err := json.Marshal(value)
	if err != nil {
		return model.Clipboard{}, fmt.Errorf("%w: encode clipboard: %v", model.ErrInternal, err)
	}
	if err := s.bucket.WriteAll(ctx, s.key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return model.Clipboard{}, fmt.Errorf("%w: write clipboard: %v", model.ErrInternal, err)
	}

	s.value = value
	return value, nil
}

// Close closes the bucket
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}
