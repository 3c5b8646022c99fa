package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/registration-client/interfaces"
)

// MultiStore mirrors credentials to several stores. The first store is the
// primary: it decides whether a write succeeded and answers Exists. The
// other stores are mirrors, e.g. a Vault keeping a copy of the system
// credentials of a fleet.
type MultiStore struct {
	stores []interfaces.CredentialsStore
	log    *slog.Logger
}

// NewMultiStore creates a store writing to all stores, primary first.
func NewMultiStore(stores []interfaces.CredentialsStore, logger *slog.Logger) (*MultiStore, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("%w: no credentials stores given", interfaces.ErrInvalidLocationURI)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStore{
		stores: stores,
		log:    logger,
	}, nil
}

// Read returns the credentials of the first store that has them.
func (m *MultiStore) Read(ctx context.Context, path string) (interfaces.Credentials, error) {
	start := time.Now()
	var errs []error

	for _, store := range m.stores {
		creds, err := store.Read(ctx, path)
		if err == nil {
			m.log.Debug("Read credentials",
				slog.String("store", store.LocationURI()),
				slog.String("path", path),
				slog.Duration("duration", time.Since(start)))
			return creds, nil
		}
		if !errors.Is(err, interfaces.ErrCredentialsNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", store.LocationURI(), err))
			m.log.Debug("Failed to read from credentials store",
				slog.String("store", store.LocationURI()),
				"err", err)
		}
	}

	if len(errs) == 0 {
		return interfaces.Credentials{}, interfaces.ErrCredentialsNotFound
	}
	return interfaces.Credentials{}, errors.Join(errs...)
}

// Write stores creds in every store. It fails only when the primary store
// fails; failed mirrors are logged.
func (m *MultiStore) Write(ctx context.Context, creds interfaces.Credentials) error {
	start := time.Now()

	if err := m.stores[0].Write(ctx, creds); err != nil {
		return err
	}

	for _, mirror := range m.stores[1:] {
		if err := mirror.Write(ctx, creds); err != nil {
			m.log.Warn("Failed to mirror credentials",
				slog.String("store", mirror.LocationURI()),
				slog.String("path", creds.Path),
				"err", err)
		}
	}

	m.log.Debug("Stored credentials",
		slog.String("path", creds.Path),
		slog.Int("stores", len(m.stores)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Exists asks the primary store only.
func (m *MultiStore) Exists(ctx context.Context, path string) bool {
	return m.stores[0].Exists(ctx, path)
}

// LocationURI combines the URIs of all stores.
func (m *MultiStore) LocationURI() string {
	var locations []string
	for _, store := range m.stores {
		locations = append(locations, store.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}

// Dir returns the directory of the primary store, or "" when the primary is
// not kept in a local directory.
func (m *MultiStore) Dir() string {
	if primary, ok := m.stores[0].(interfaces.RelocatableStore); ok {
		return primary.Dir()
	}
	return ""
}

// Relocate relocates the primary store. Mirrors stay in place.
func (m *MultiStore) Relocate(dir string) error {
	primary, ok := m.stores[0].(interfaces.RelocatableStore)
	if !ok {
		return fmt.Errorf("primary credentials store %s cannot be relocated", m.stores[0].LocationURI())
	}
	return primary.Relocate(dir)
}
