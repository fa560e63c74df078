package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes the output tree to the local filesystem.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a local filesystem store rooted at baseDir.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Write stores data atomically using a temp file + rename, so a bad retry
// can never clobber a previously valid document with partial content.
func (s *LocalStore) Write(ctx context.Context, key string, data []byte) error {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return nil
}

func (s *LocalStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *LocalStore) Stat(ctx context.Context, key string) (int64, error) {
	info, err := os.Stat(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) Close() error { return nil }
