package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrIO marks every failure of the underlying file store.
var ErrIO = errors.New("storage I/O failure")

// File is an open file handle. Files opened for writing also support seeking
// so headers can be patched after the payload is known.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Store is the file store collaborator.
type Store interface {
	Exists(path string) (bool, error)
	Remove(path string) error
	// Create opens path for writing, truncating any existing content.
	Create(path string) (File, error)
	// Open opens path read-only.
	Open(path string) (File, error)
	// Append opens path for writing at its end, creating it if needed.
	Append(path string) (File, error)
	Size(path string) (int64, error)
	WriteFile(path string, data []byte) error
}

// Dir is a Store rooted at a local directory.
type Dir struct {
	root string
}

// NewDir returns a store rooted at root, creating the directory if needed
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: root directory cannot be empty", ErrIO)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create root %s: %v", ErrIO, root, err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory backing the store
func (d *Dir) Root() string {
	return d.root
}

// resolve maps a store path onto the root, refusing to escape it.
func (d *Dir) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid path %q", ErrIO, path)
	}
	return filepath.Join(d.root, strings.TrimPrefix(clean, string(filepath.Separator))), nil
}

// Exists reports whether path is present in the store
func (d *Dir) Exists(path string) (bool, error) {
	full, err := d.resolve(path)
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
	return false, wrap("stat", path, err)
}

// Remove deletes path
func (d *Dir) Remove(path string) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return wrap("remove", path, err)
	}
	return nil
}

// Create opens path for writing, truncating it
func (d *Dir) Create(path string) (File, error) {
	return d.openFile("create", path, os.O_CREATE|os.O_RDWR|os.O_TRUNC)
}

// Open opens path for reading
func (d *Dir) Open(path string) (File, error) {
	return d.openFile("open", path, os.O_RDONLY)
}

// Append opens path for appending
func (d *Dir) Append(path string) (File, error) {
	return d.openFile("append", path, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
}

func (d *Dir) openFile(op, path string, flag int) (File, error) {
	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, wrap(op, path, err)
		}
	}
	f, err := os.OpenFile(full, flag, 0o644)
	if err != nil {
		return nil, wrap(op, path, err)
	}
	return f, nil
}

// Size returns the length of path in bytes
func (d *Dir) Size(path string) (int64, error) {
	full, err := d.resolve(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, wrap("stat", path, err)
	}
	return info.Size(), nil
}

// WriteFile replaces the content of path with data
func (d *Dir) WriteFile(path string, data []byte) error {
	f, err := d.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return wrap("write", path, err)
	}
	if err := f.Close(); err != nil {
		return wrap("close", path, err)
	}
	return nil
}

func wrap(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrIO, op, path, err)
}
