// Package blob stores large raw payloads on the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/user/legalcode-service/internal/repository"
)

var _ repository.BlobStore = (*FSStore)(nil)

// FSStore keeps each payload in its own file, named by a random UUID and
// sharded by the first two characters.
type FSStore struct {
	dir string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Put writes r to a temporary file and renames it into place once complete,
// so a reader never sees a partial payload.
func (s *FSStore) Put(ctx context.Context, r io.Reader) (string, error) {
	ref := uuid.NewString()
	path := s.path(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return ref, nil
}

func (s *FSStore) Get(_ context.Context, ref string) (io.ReadCloser, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, fmt.Errorf("blob %q: %w", ref, repository.ErrNotFound)
	}
	f, err := os.Open(s.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", ref, repository.ErrNotFound)
	}
	return f, err
}

func (s *FSStore) Delete(_ context.Context, ref string) error {
	if _, err := uuid.Parse(ref); err != nil {
		return nil
	}
	err := os.Remove(s.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FSStore) path(ref string) string {
	return filepath.Join(s.dir, ref[:2], ref)
}

// contextReader stops a long copy once ctx ends.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
