package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	errx "github.com/lessonforge/server/internal/core/error"
)

// LocalStore keeps assets on disk below root. Without a public base URL the
// reference of an asset is its absolute path, which ffmpeg reads directly.
type LocalStore struct {
	root          string
	publicBaseURL string
}

func NewLocalStore(root, publicBaseURL string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("local store root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve local store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errx.WrapStorage(fmt.Errorf("create local store root: %w", err))
	}
	return &LocalStore{root: abs, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Path is the file backing key.
func (s *LocalStore) Path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(cleanKey(key)))
	if p != s.root && !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("key %q escapes store root", key)
	}
	return p, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	p, err := s.Path(key)
	if err != nil {
		return "", errx.WrapStorage(err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errx.WrapStorage(fmt.Errorf("mkdir: %w", err))
	}
	// write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return "", errx.WrapStorage(err)
	}
	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", errx.WrapStorage(fmt.Errorf("write %s: %w", key, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errx.WrapStorage(err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errx.WrapStorage(err)
	}
	return s.URL(key), nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, errx.WrapStorage(err)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, errx.WrapStorage(err)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.Path(key)
	if err != nil {
		return errx.WrapStorage(err)
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errx.WrapStorage(err)
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + cleanKey(key)
	}
	p, err := s.Path(key)
	if err != nil {
		return ""
	}
	return p
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

var _ AssetStore = (*LocalStore)(nil)
