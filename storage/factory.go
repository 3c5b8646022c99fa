package storage

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ruteri/registration-client/interfaces"
)

// DefaultCredentialsURI is the package manager's credentials directory.
const DefaultCredentialsURI = "file:///etc/zypp/credentials.d"

// CredentialsStoreFactory creates credentials stores from URI strings.
type CredentialsStoreFactory struct {
	log *slog.Logger

	// getenv is os.Getenv, replaceable in tests.
	getenv func(string) string
}

// NewCredentialsStoreFactory creates a factory logging to logger.
func NewCredentialsStoreFactory(logger *slog.Logger) *CredentialsStoreFactory {
	return &CredentialsStoreFactory{
		log:    logger,
		getenv: os.Getenv,
	}
}

// StoreFor creates a credentials store from a location URI.
//
// Supported schemes:
//   - file:///etc/zypp/credentials.d - one file per credentials path
//   - vault://host:port/mount/prefix - Vault KV v2, token from VAULT_TOKEN.
//     Plain HTTP is used with ?tls=false.
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *CredentialsStoreFactory) StoreFor(uri string) (interfaces.CredentialsStore, error) {
	loc, err := interfaces.NewCredentialsLocation(uri)
	if err != nil {
		return nil, err
	}

	switch {
	case loc.IsFile():
		return sf.createFileBackend(loc)
	case loc.IsVault():
		return sf.createVaultBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// createFileBackend handles file:///absolute/path and file://./relative/path.
func (sf *CredentialsStoreFactory) createFileBackend(loc interfaces.CredentialsLocation) (interfaces.CredentialsStore, error) {
	sf.log.Debug("Creating file credentials store", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	return NewFileBackend(path, sf.log)
}

// createVaultBackend handles vault://host:port/mount/prefix/path.
// The first path segment is the KV mount, the rest is the secret prefix.
func (sf *CredentialsStoreFactory) createVaultBackend(loc interfaces.CredentialsLocation) (interfaces.CredentialsStore, error) {
	sf.log.Debug("Creating Vault credentials store", slog.String("uri", loc.String()))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault host: %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	mount, prefix, _ := strings.Cut(strings.Trim(loc.Path, "/"), "/")
	if mount == "" {
		return nil, fmt.Errorf("%w: missing Vault mount: %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	scheme := "https"
	if loc.GetParam("tls") == "false" {
		scheme = "http"
	}

	return NewVaultBackend(scheme+"://"+loc.Host, mount, prefix, sf.getenv("VAULT_TOKEN"), sf.log)
}

// StoresFor creates a store from a comma separated list of URIs. A single
// URI yields that store; more yield a MultiStore with the first as primary.
func (sf *CredentialsStoreFactory) StoresFor(uris string) (interfaces.CredentialsStore, error) {
	parts := strings.Split(uris, ",")
	if len(parts) == 1 {
		return sf.StoreFor(strings.TrimSpace(parts[0]))
	}

	stores := make([]interfaces.CredentialsStore, 0, len(parts))
	for _, uri := range parts {
		store, err := sf.StoreFor(strings.TrimSpace(uri))
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return NewMultiStore(stores, sf.log)
}

// NewCredentialsStore is a shorthand for NewCredentialsStoreFactory(log).StoresFor(uris).
func NewCredentialsStore(uris string, log *slog.Logger) (interfaces.CredentialsStore, error) {
	return NewCredentialsStoreFactory(log).StoresFor(uris)
}
