package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage persists blobs on disk under a base directory. Read links are
// signed tokens served back by this API at <publicBase>/<token>.
type LocalStorage struct {
	baseDir    string
	signer     *SignedURLSigner
	publicBase string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string, signer *SignedURLSigner, publicBase string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./data/documents"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: abs, signer: signer, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Put copies from r into the file addressed by key.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	written, err := io.Copy(tmp, readerWithContext(ctx, r))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("write object %s: short write %d of %d bytes", key, written, size)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit object %s: %w", key, err)
	}
	return nil
}

// Get opens the stored file for reading.
func (s *LocalStorage) Get(ctx context.Context, key string) (*Object, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return &Object{Body: file, Size: info.Size(), ContentType: contentTypeFor(key)}, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a signed link to the blob served by this API.
func (s *LocalStorage) PresignGet(ctx context.Context, key string, opts PresignOptions) (*PresignedURL, error) {
	if s.signer == nil {
		return nil, fmt.Errorf("local storage has no signer configured")
	}
	if _, err := s.resolve(key); err != nil {
		return nil, err
	}
	subject := opts.Filename
	if subject == "" {
		subject = filepath.Base(key)
	}
	token, expiresAt, err := s.signer.Generate(subject, key, opts.TTL)
	if err != nil {
		return nil, fmt.Errorf("sign object %s: %w", key, err)
	}
	link := s.publicBase + "/" + token
	if opts.Attachment {
		link += "?" + url.Values{"download": {"1"}}.Encode()
	}
	return &PresignedURL{URL: link, ExpiresAt: expiresAt}, nil
}

// OpenSigned validates a token produced by PresignGet and opens the blob it references.
func (s *LocalStorage) OpenSigned(ctx context.Context, token string) (*Object, string, error) {
	if s.signer == nil {
		return nil, "", fmt.Errorf("local storage has no signer configured")
	}
	filename, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", err
	}
	obj, err := s.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if ct := contentTypeFor(filename); ct != "application/octet-stream" {
		obj.ContentType = ct
	}
	return obj, filename, nil
}

// resolve maps a key onto the base directory, rejecting keys that escape it.
func (s *LocalStorage) resolve(key string) (string, error) {
	if key == "" || filepath.IsAbs(key) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return path, nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil {
		return r
	}
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
