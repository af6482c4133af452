// Package storage holds the raw bytes of uploaded attachments. Only the
// extracted text lives in the database; the original file is kept here keyed
// by attachment id so it can be re-extracted or served back later.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error

	// GetObject returns the object's contents; the caller closes the reader.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	DeleteObject(ctx context.Context, key string) error
}
