package pkgstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ruteri/registration-client/interfaces"
)

const (
	servicesDir = "services.d"
	reposDir    = "repos.d"
	renamesFile = "renames.json"

	credentialsDir = "credentials.d"
)

// FileStore implements interfaces.PackageStore on a directory tree.
type FileStore struct {
	// mu guards root and serializes changes to the tree.
	mu   sync.Mutex
	root string

	creds   interfaces.CredentialsStore
	fetcher interfaces.Fetcher
	log     *slog.Logger

	// insecure disables certificate checks for repository index downloads.
	insecure bool

	// writable is checkWritable, replaceable in tests.
	writable func(dir string) bool
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithInsecureRefresh downloads repository indexes without certificate checks.
func WithInsecureRefresh(insecure bool) Option {
	return func(s *FileStore) {
		s.insecure = insecure
	}
}

// NewFileStore creates a store rooted at root. Service credentials are
// written to creds; repository indexes are downloaded with fetcher.
func NewFileStore(root string, creds interfaces.CredentialsStore, fetcher interfaces.Fetcher, log *slog.Logger, opts ...Option) *FileStore {
	s := &FileStore{
		root:     root,
		creds:    creds,
		fetcher:  fetcher,
		log:      log,
		writable: checkWritable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the current root directory. It changes when
// EnsureWritableConfigDir switched to a writable copy.
func (s *FileStore) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// EnsureWritableConfigDir checks that the root is writable. A read-only
// root is copied into a temporary directory which becomes the new root.
// A local credentials store below the old root, or one that is not
// writable either, moves into the new root too.
func (s *FileStore) EnsureWritableConfigDir(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writable(s.root) {
		return nil
	}

	tmp, err := os.MkdirTemp("", "pkgstore-")
	if err != nil {
		return fmt.Errorf("failed to create writable configuration copy: %w", err)
	}
	if err := copyTree(s.root, tmp); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("failed to copy configuration to %s: %w", tmp, err)
	}

	if err := s.relocateCredentials(s.root, tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	s.log.Warn("Package configuration is not writable, using a copy",
		slog.String("from", s.root),
		slog.String("to", tmp))
	s.root = tmp
	return nil
}

// relocateCredentials moves a local credentials store from below oldRoot to
// the same place below newRoot. A store elsewhere moves to
// newRoot/credentials.d if it is not writable.
func (s *FileStore) relocateCredentials(oldRoot, newRoot string) error {
	store, ok := s.creds.(interfaces.RelocatableStore)
	if !ok {
		return nil
	}
	dir := store.Dir()
	if dir == "" {
		return nil
	}

	var target string
	if rel, err := filepath.Rel(oldRoot, dir); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		// Already copied with the tree.
		target = filepath.Join(newRoot, rel)
	} else if s.writable(dir) {
		return nil
	} else {
		target = filepath.Join(newRoot, credentialsDir)
		if err := copyTree(dir, target); err != nil {
			return fmt.Errorf("failed to copy credentials to %s: %w", target, err)
		}
	}

	if err := store.Relocate(target); err != nil {
		return fmt.Errorf("failed to relocate credentials: %w", err)
	}
	return nil
}

func checkWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(f.Name())
	return true
}

// copyTree copies regular files and directories of src into dst. A missing
// src results in an empty dst.
func copyTree(src, dst string) error {
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		// products.d/baseproduct is usually a symlink; copy what it points to.
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
