package loader

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by loaders when the requested file does not exist.
var ErrNotFound = errors.New("file not found")

// FileLoader reads data files by path. Implementations may load files from
// disk, object storage, or other sources, and may cache the results.
type FileLoader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// FileWriter is implemented by loaders that can also store files.
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Invalidator is implemented by caching loaders. Invalidate drops every
// cached file so the next read goes to the backing store.
type Invalidator interface {
	Invalidate()
}

// Join builds a slash separated key below prefix. It is used for both
// filesystem paths and object keys.
func Join(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
