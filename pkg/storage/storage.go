package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/noah-isme/docshare-api/pkg/config"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// Object is a stored blob opened for reading. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// PresignOptions shapes a time-limited GET link.
type PresignOptions struct {
	Filename    string
	ContentType string
	TTL         time.Duration
	Attachment  bool
}

// PresignedURL is a link that stops working at ExpiresAt.
type PresignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// ObjectStore persists document blobs and hands out time-limited read links.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, opts PresignOptions) (*PresignedURL, error)
}

// New builds the object store selected by cfg.Driver. The signer and
// publicBase are only used by the local driver, whose links are served by
// this API under publicBase.
func New(ctx context.Context, cfg config.StorageConfig, signer *SignedURLSigner, publicBase string) (ObjectStore, error) {
	switch cfg.Driver {
	case "", config.StorageDriverLocal:
		return NewLocalStorage(cfg.LocalDir, signer, publicBase)
	case config.StorageDriverMinIO:
		store, err := NewMinIOStorage(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
