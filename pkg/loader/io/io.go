package io

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/knowledgebase/netgraph/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// IOFileLoader loads files directly from a directory on the local filesystem
// with caching.
type IOFileLoader struct {
	root string

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewIOFileLoader creates a new filesystem-based file loader rooted at root.
func NewIOFileLoader(root string) *IOFileLoader {
	return &IOFileLoader{
		root:  root,
		cache: make(map[string][]byte),
	}
}

func (l *IOFileLoader) resolve(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

// ReadFile reads the file content from the filesystem. Results are cached;
// concurrent reads of the same file share one syscall.
func (l *IOFileLoader) ReadFile(ctx context.Context, name string) ([]byte, error) {
	l.cacheMu.RLock()
	if cached, ok := l.cache[name]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(name, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[name]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := os.ReadFile(l.resolve(name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", loader.ErrNotFound, name)
			}
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[name] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// WriteFile stores data and refreshes the cache entry.
func (l *IOFileLoader) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := l.resolve(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return err
	}

	l.cacheMu.Lock()
	l.cache[name] = append([]byte(nil), data...)
	l.cacheMu.Unlock()
	return nil
}

func (l *IOFileLoader) Invalidate() {
	l.cacheMu.Lock()
	l.cache = make(map[string][]byte)
	l.cacheMu.Unlock()
}
