package interfaces

import (
	"context"
	"crypto/x509"
)

// EntitlementService is the remote procedure set of the entitlement service.
// Implementations return errors matching ErrTransport, ErrTimeout,
// ErrServiceAuth or ErrRemote, and never retry.
type EntitlementService interface {
	// AnnounceSystem registers the system using params.Token as registration
	// code and returns the system credentials.
	AnnounceSystem(ctx context.Context, params ConnectParams, distroTarget string) (login, password string, err error)

	// ActivateProduct activates a product for the announced system.
	ActivateProduct(ctx context.Context, params ConnectParams, product RemoteProductIdentity, email string) (*ServiceDescriptor, error)

	// UpgradeProduct upgrades the system to a product.
	UpgradeProduct(ctx context.Context, params ConnectParams, product RemoteProductIdentity) (*ServiceDescriptor, error)

	// UpdateSystem changes the target distribution of the system.
	UpdateSystem(ctx context.Context, params ConnectParams, distroTarget string) (*UpdateResult, error)

	// ShowProduct returns the catalog entry of a product including its extensions.
	ShowProduct(ctx context.Context, params ConnectParams, product RemoteProductIdentity) (*AddonCatalogEntry, error)

	// Status returns the products activated for the system.
	Status(ctx context.Context, params ConnectParams) ([]ActivatedProduct, error)
}

// PackageStore is the local package manager integration.
type PackageStore interface {
	// LocateBaseProduct returns the base product of the system.
	LocateBaseProduct(ctx context.Context) (ProductDescriptor, error)

	// AddOrRefreshService adds the service or updates an existing one with the
	// same name, writes its credentials and refreshes it. Failures are
	// returned as *ServiceError; completed steps are not undone.
	AddOrRefreshService(ctx context.Context, service ServiceDescriptor, creds Credentials) error

	// ApplyRenames reconciles locally cached product records.
	ApplyRenames(ctx context.Context, renames RenameMap) error

	// EnsureWritableConfigDir makes the package manager configuration writable.
	EnsureWritableConfigDir(ctx context.Context) error
}

// DefaultsProvider returns the pattern defaults of the control document.
type DefaultsProvider interface {
	DefaultPatterns() []string
	DefaultOptionalPatterns() []string
}

// Fetcher downloads a file. Insecure disables certificate checks for that
// request only. Failures match ErrFetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string, insecure bool) ([]byte, error)
}

// TrustAnchors keeps server certificates accepted by the operator for the
// rest of the process.
type TrustAnchors interface {
	Trust(cert *x509.Certificate)
}
