// Package interfaces defines core interfaces and types for the registration
// client, separating interface definitions from implementations.
//
// The package provides interfaces for the collaborators of a registration
// session:
//
// # Remote Interfaces
//
// EntitlementService: the remote procedure set of the entitlement service
// (announce system, activate/upgrade product, update system, show product,
// status).
//
// # Local Interfaces
//
// PackageStore: adds and refreshes repository services, locates the base
// product and reconciles renamed products.
//
// CredentialsStore: persists system and per-service credentials atomically
// (file and Vault backends, optionally mirrored).
//
// DefaultsProvider: default pattern lists of the control document.
//
// Fetcher: downloads a file, optionally without certificate checks.
//
// # Core Types
//
// - RemoteProductIdentity: arch/identifier/version/release type of a product
// - ProductRef: a raw ProductDescriptor or a resolved identity
// - ServiceDescriptor: repository service returned by an activation
// - Credentials: login/password pair and its store path
// - AddonCatalogEntry, RenameMap, ActivatedProduct
// - TrustFailure, VerifyContext, ConnectParams
//
// # Errors
//
// Sentinel errors (ErrTransport, ErrTimeout, ErrServiceAuth, ErrRemote,
// ErrService, ErrCertificate, ErrConfig, ...) are matched with errors.Is;
// ServiceError, APIError and TrustFailureError carry details.
package interfaces
