package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileBackend stores each key as a JSON file under dir. Writes go to a
// temporary file first and are renamed into place.
type FileBackend struct {
	mu              sync.Mutex
	dir             string
	filePermissions os.FileMode
	dirPermissions  os.FileMode
}

// NewFileBackend creates a FileBackend. An empty dir uses the OS temp directory.
func NewFileBackend(dir string) *FileBackend {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "weather-dashboard")
	}
	return &FileBackend{
		dir:             dir,
		filePermissions: 0o644,
		dirPermissions:  0o755,
	}
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, unsafeKeyChars.ReplaceAllString(key, "_")+".json")
}

// Get reads the file for key.
func (b *FileBackend) Get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.path(key)

	// Clean up any stale temp file from a previous crash
	if _, err := os.Stat(p + ".tmp"); err == nil {
		_ = os.Remove(p + ".tmp")
	}

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// Put atomically replaces the file for key.
func (b *FileBackend) Put(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(b.dir, b.dirPermissions); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	p := b.path(key)
	tempPath := p + ".tmp"
	if err := os.WriteFile(tempPath, data, b.filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempPath, p); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Close is a no-op; it lets FileBackend share the closer contract with SQLiteBackend.
func (b *FileBackend) Close() error { return nil }
