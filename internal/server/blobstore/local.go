package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dkrasnovs/filedepot/internal/common"
	"github.com/dkrasnovs/filedepot/internal/filex"
)

// Local stores blobs as files under a root directory. Names use forward
// slashes regardless of platform.
type Local struct {
	root     string
	basePath string
}

// NewLocal creates the root directory if needed. basePath is the public
// URL prefix returned by URL.
func NewLocal(root, basePath string) (*Local, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("blobstore root: %w", err)
	}
	return &Local{root: abs, basePath: basePath}, nil
}

// fullPath resolves name under the root and rejects anything that would
// escape it.
func (l *Local) fullPath(name string) (string, error) {
	if name == "" || path.IsAbs(name) || name != path.Clean(name) || strings.HasPrefix(name, "..") {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return filepath.Join(l.root, filepath.FromSlash(name)), nil
}

func (l *Local) Save(ctx context.Context, name string, data []byte) error {
	full, err := l.fullPath(name)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorStorageWrite, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o770); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorStorageWrite, err)
	}
	if err := os.WriteFile(full, data, 0o660); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorStorageWrite, err)
	}
	return nil
}

func (l *Local) Load(ctx context.Context, name string) ([]byte, error) {
	full, err := l.fullPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorageRead, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorStorageRead, err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, name string) error {
	full, err := l.fullPath(name)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("delete %q: %w", name, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, name string) (bool, error) {
	full, err := l.fullPath(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) Path(name string) string {
	return path.Join(filepath.ToSlash(l.root), name)
}

func (l *Local) URL(name string) string {
	return path.Join("/", l.basePath, name)
}
