package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// fileBackend stores one JSON file per key under a shared directory.
// Writes are atomic (temp file + fsync + rename) so a reader in another
// process never observes a torn record; visibility to other processes is
// "on next read after flush".
type fileBackend struct {
	dir string
}

// NewFileStore opens a file-backed state store rooted at dir.
func NewFileStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return newStore(&fileBackend{dir: dir}, logger), nil
}

func (f *fileBackend) path(key string) string {
	// Keys are fixed identifiers; the replacement is a guard against
	// separators sneaking into a path.
	safe := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(f.dir, safe+".json")
}

func (f *fileBackend) get(key string) ([]byte, bool) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// set writes atomically: temp file in the same directory, fsync, rename.
func (f *fileBackend) set(key string, value []byte) error {
	path := f.path(key)

	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (f *fileBackend) delete(key string) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// flush syncs the store directory so renames are durable before another
// process is signaled.
func (f *fileBackend) flush() error {
	d, err := os.Open(f.dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
