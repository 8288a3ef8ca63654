// Package storage reads uploaded evidence bytes by storage key. The bytes
// are written by the upload path outside this service; only reads happen here.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"bgv/pkg/platform/sentinel"
)

// Directory serves keys as paths relative to a root directory.
type Directory struct {
	root *os.Root
}

// NewDirectory opens root for reading. Keys cannot escape it.
func NewDirectory(root string) (*Directory, error) {
	r, err := os.OpenRoot(root)
	if err != nil {
		return nil, fmt.Errorf("open evidence root: %w", err)
	}
	return &Directory{root: r}, nil
}

func (d *Directory) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := d.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("evidence %q: %w", key, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("open evidence %q: %w", key, err)
	}
	return f, nil
}

func (d *Directory) Close() error {
	return d.root.Close()
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("empty storage key: %w", sentinel.ErrNotFound)
	}
	name := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("storage key %q escapes root: %w", key, sentinel.ErrNotFound)
	}
	return name, nil
}
