package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects as files under a base directory. Good enough for
// single-node deployments and tests; production setups point at S3 instead.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage dir %q: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (store *LocalStore) path(key string) (string, error) {
	cleaned := filepath.Clean(key)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(store.baseDir, cleaned), nil
}

func (store *LocalStore) PutObject(_ context.Context, key string, data io.Reader) error {
	dest, err := store.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating object dir: %w", err)
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating object file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("writing object %q: %w", key, err)
	}
	return nil
}

func (store *LocalStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	src, err := store.path(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(src)
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("opening object %q: %w", key, err)
	}
	return file, nil
}

func (store *LocalStore) DeleteObject(_ context.Context, key string) error {
	target, err := store.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object %q: %w", key, err)
	}
	return nil
}
