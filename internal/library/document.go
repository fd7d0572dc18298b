package library

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/storage"
)

// DefaultDocumentKey is where the library document lives in a blob store.
const DefaultDocumentKey = "library/tracked_manga.json"

// DocumentStore keeps the library as one JSON array in a blob store.
// Writes replace the whole document.
type DocumentStore struct {
	blobs storage.BlobStore
	key   string
}

// NewDocumentStore stores the document under key, or DefaultDocumentKey.
func NewDocumentStore(blobs storage.BlobStore, key string) (*DocumentStore, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if key == "" {
		key = DefaultDocumentKey
	}
	return &DocumentStore{blobs: blobs, key: key}, nil
}

// Load reads the document. A missing document is an empty library.
func (d *DocumentStore) Load(ctx context.Context) ([]manga.Tracked, error) {
	obj, err := d.blobs.GetObject(ctx, d.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []manga.Tracked{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read library document: %w", err)
	}
	if len(bytes.TrimSpace(obj.Data)) == 0 {
		return []manga.Tracked{}, nil
	}
	var entries []manga.Tracked
	if err := json.Unmarshal(obj.Data, &entries); err != nil {
		return nil, fmt.Errorf("decode library document: %w", err)
	}
	return entries, nil
}

// Save replaces the document.
func (d *DocumentStore) Save(ctx context.Context, entries []manga.Tracked) error {
	if entries == nil {
		entries = []manga.Tracked{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode library document: %w", err)
	}
	if _, err := d.blobs.PutObject(ctx, d.key, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write library document: %w", err)
	}
	return nil
}
