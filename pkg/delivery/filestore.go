package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore persists result files and hands back an opaque reference that
// is stored on the result record.
type FileStore interface {
	Save(ctx context.Context, name string, content io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// LocalFileStore keeps result files on the local disk under a single root
// directory. References are paths relative to the root.
type LocalFileStore struct {
	root string
}

func NewLocalFileStore(root string) (*LocalFileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create file store root: %w", err)
	}
	return &LocalFileStore{root: root}, nil
}

func (s *LocalFileStore) Save(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := strings.ReplaceAll(filepath.Base(name), " ", "_")
	if clean == "" || clean == "." {
		clean = "result"
	}
	ref := uuid.New().String() + "_" + clean

	file, err := os.Create(filepath.Join(s.root, ref))
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("write result file: %w", err)
	}
	return ref, nil
}

func (s *LocalFileStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filepath.Base(ref) != ref {
		return nil, fmt.Errorf("invalid file reference %q", ref)
	}
	return os.Open(filepath.Join(s.root, ref))
}

func (s *LocalFileStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filepath.Base(ref) != ref {
		return fmt.Errorf("invalid file reference %q", ref)
	}
	return os.Remove(filepath.Join(s.root, ref))
}
