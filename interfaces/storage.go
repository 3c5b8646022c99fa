package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// GlobalCredentialsPath is the store-relative path of the system credentials
// written by the announcement.
const GlobalCredentialsPath = "SCCcredentials"

// CredentialsLocation represents URI for a credentials store.
type CredentialsLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
}

// NewCredentialsLocation creates a new store location from a URI string with validation.
func NewCredentialsLocation(uri string) (CredentialsLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return CredentialsLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "vault":
	default:
		return CredentialsLocation{}, fmt.Errorf("%w: unsupported credentials scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return CredentialsLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
	}, nil
}

// String returns the original URI string.
func (loc CredentialsLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a file system location.
func (loc CredentialsLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// IsVault checks if this is a Vault location.
func (loc CredentialsLocation) IsVault() bool {
	return loc.Scheme == "vault"
}

// GetParam returns a query parameter value.
func (loc CredentialsLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc CredentialsLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrCredentialsNotFound is returned when no credentials exist at the requested path.
	ErrCredentialsNotFound = errors.New("credentials not found")

	// ErrBackendUnavailable is returned when a credentials store is not accessible.
	ErrBackendUnavailable = errors.New("credentials store unavailable")

	// ErrInvalidLocationURI is returned when a store location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid credentials location URI")
)

// CredentialsStore persists announcement and service credentials.
// Writes must be atomic: a concurrent reader sees either the old or the new
// credentials, never a partial write.
type CredentialsStore interface {
	// Read loads credentials stored at path.
	// Returns ErrCredentialsNotFound if there are none.
	Read(ctx context.Context, path string) (Credentials, error)

	// Write stores credentials at creds.Path, replacing any previous value.
	Write(ctx context.Context, creds Credentials) error

	// Exists reports whether credentials are stored at path. Local only.
	Exists(ctx context.Context, path string) bool

	// LocationURI returns URI identifying this store.
	LocationURI() string
}

// RelocatableStore is a credentials store kept in a local directory that
// can follow a relocated package configuration.
type RelocatableStore interface {
	CredentialsStore

	// Dir returns the current directory.
	Dir() string

	// Relocate switches the store to dir. Existing files are not moved.
	Relocate(dir string) error
}
