package pkgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/ruteri/registration-client/storage"
)

// ApplyRenames records product renames and rewrites the product identifier
// of stored services that still use a former identifier.
func (s *FileStore) ApplyRenames(ctx context.Context, renames interfaces.RenameMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known, err := s.renamesLocked()
	if err != nil {
		return err
	}
	if len(renames) == 0 {
		return nil
	}

	for from, to := range renames {
		known[from] = to
	}
	data, err := json.MarshalIndent(known, "", "  ")
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(filepath.Join(s.root, renamesFile), data, 0644); err != nil {
		return fmt.Errorf("failed to save product renames: %w", err)
	}

	services, err := s.servicesLocked()
	if err != nil {
		return err
	}
	for _, service := range services {
		to, ok := renames[service.Product.Identifier]
		if !ok {
			continue
		}
		s.log.Info("Renaming product of service",
			slog.String("service", service.Name),
			slog.String("from", service.Product.Identifier),
			slog.String("to", to))
		service.Product.Identifier = to
		if err := s.saveServiceLocked(service); err != nil {
			return err
		}
	}
	return nil
}

// Renames returns the recorded product renames.
func (s *FileStore) Renames(ctx context.Context) (interfaces.RenameMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renamesLocked()
}

func (s *FileStore) renamesLocked() (interfaces.RenameMap, error) {
	renames := interfaces.RenameMap{}
	data, err := os.ReadFile(filepath.Join(s.root, renamesFile))
	if errors.Is(err, os.ErrNotExist) {
		return renames, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &renames); err != nil {
		return nil, fmt.Errorf("%w: corrupt %s: %v", interfaces.ErrConfig, renamesFile, err)
	}
	return renames, nil
}
