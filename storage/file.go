package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/registration-client/interfaces"
)

// FileBackend stores credentials as files below a base directory, one file
// per credentials path. Files are written atomically and are readable by the
// owner only.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string

	// Serializes writers against readers of this process. Other processes
	// only ever observe complete files thanks to the rename.
	mu sync.RWMutex
}

// NewFileBackend creates a credentials store rooted at baseDir, creating the
// directory if it doesn't exist. A directory that cannot be created yet is
// created on the first write.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if baseDir == "" {
		return nil, errors.New("empty credentials directory")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		log.Warn("Credentials directory is not available", slog.String("dir", baseDir), "err", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Read loads the credentials file at path.
// Returns ErrCredentialsNotFound if the file doesn't exist.
func (b *FileBackend) Read(ctx context.Context, path string) (interfaces.Credentials, error) {
	filePath, err := b.filePath(path)
	if err != nil {
		return interfaces.Credentials{}, err
	}

	b.mu.RLock()
	data, err := os.ReadFile(filePath)
	b.mu.RUnlock()

	if errors.Is(err, os.ErrNotExist) {
		return interfaces.Credentials{}, interfaces.ErrCredentialsNotFound
	}
	if err != nil {
		return interfaces.Credentials{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	b.log.Debug("Read credentials from file", slog.String("path", filePath))
	return parseCredentials(data, path)
}

// Write replaces the credentials file at creds.Path. The content goes to a
// temporary file in the same directory which is synced and renamed over the
// target, so a reader never sees a partially written file.
func (b *FileBackend) Write(ctx context.Context, creds interfaces.Credentials) error {
	filePath, err := b.filePath(creds.Path)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := WriteFileAtomic(filePath, formatCredentials(creds), 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}

	b.log.Debug("Stored credentials in file",
		slog.String("path", filePath),
		slog.String("login", creds.Login))
	return nil
}

// Exists reports whether a credentials file is present at path.
func (b *FileBackend) Exists(ctx context.Context, path string) bool {
	filePath, err := b.filePath(path)
	if err != nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, err = os.Stat(filePath)
	return err == nil
}

// LocationURI returns the URI that identifies this store.
func (b *FileBackend) LocationURI() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.locationURI
}

// Dir returns the base directory of the store.
func (b *FileBackend) Dir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.baseDir
}

// Relocate switches the store to dir, creating it if needed. Files already
// stored stay where they are.
func (b *FileBackend) Relocate(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.Info("Relocating credentials store", slog.String("from", b.baseDir), slog.String("to", dir))
	b.baseDir = dir
	b.locationURI = fmt.Sprintf("file://%s", dir)
	return nil
}

func (b *FileBackend) filePath(path string) (string, error) {
	cleaned, err := cleanCredentialsPath(path)
	if err != nil {
		return "", err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return filepath.Join(b.baseDir, cleaned), nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
