package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirSink writes documents below a local directory. It backs local
// development when no bucket is configured.
type DirSink struct {
	root string
}

func NewDirSink(root string) (*DirSink, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("documents: directory must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("documents: create %q: %w", root, err)
	}
	return &DirSink{root: root}, nil
}

// Put writes body to root/key and returns the file path. An existing file
// with the same key is replaced.
func (d *DirSink) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("documents: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("documents: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("documents: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("documents: close %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("documents: move %q into place: %w", key, err)
	}
	return path, nil
}
