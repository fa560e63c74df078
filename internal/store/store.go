package store

import (
	"context"
	"errors"
	"fmt"
	"path"
)

// ErrNotFound is returned by Stat and Read when the key does not exist.
var ErrNotFound = errors.New("object not found")

// DocumentRef locates one filing's artifacts inside the output tree.
type DocumentRef struct {
	Ticker        string
	FinancialYear string
}

// DocumentPath returns the key for the document itself.
func (r DocumentRef) DocumentPath() string {
	return path.Join(r.Ticker, r.FinancialYear, "document.pdf")
}

// MetadataPath returns the key for the sibling metadata file.
func (r DocumentRef) MetadataPath() string {
	return path.Join(r.Ticker, r.FinancialYear, "document_meta.json")
}

// DocumentStore is the backend holding the harvested output tree.
// Keys are slash-separated paths relative to the tree root.
type DocumentStore interface {
	// Write stores data under key, replacing any existing object.
	// Writes are atomic: a reader never observes a partial object.
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the full object, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Stat returns the object's size in bytes, or ErrNotFound.
	Stat(ctx context.Context, key string) (int64, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Backend   string `yaml:"backend"`    // "local" | "blob"
	LocalDir  string `yaml:"local_dir"`  // root of the local output tree
	BucketURL string `yaml:"bucket_url"` // e.g. "s3://bucket?region=..." or "gs://bucket"
	Prefix    string `yaml:"prefix"`     // key prefix inside the bucket
}

// New creates a document store from configuration.
func New(cfg Config) (DocumentStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "blob":
		return NewBlobStore(cfg.BucketURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
