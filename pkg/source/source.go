// Package source opens the CSV datasets, either from a local directory or
// from a static file host over HTTP.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("source: not found")

type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	String() string
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("source: empty file name")
	}
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))[1:]
	if clean == "" || clean != strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./") {
		return "", fmt.Errorf("source: illegal file name %q", name)
	}
	return clean, nil
}

// Dir reads datasets from a local directory.
type Dir struct {
	Root string
}

func NewDir(root string) Dir {
	return Dir{Root: filepath.Clean(strings.TrimSpace(root))}
}

func (d Dir) String() string { return d.Root }

func (d Dir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.Root, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return nil, err
	}
	return f, nil
}

// List returns the CSV file names directly under the directory.
func (d Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}
