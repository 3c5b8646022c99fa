package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned for network, DNS, connection and TLS failures.
	ErrTransport = errors.New("transport error")

	// ErrTimeout is returned when a caller supplied deadline expires.
	// Errors wrapping ErrTimeout also wrap ErrTransport.
	ErrTimeout = errors.New("timeout")

	// ErrServiceAuth is returned when the entitlement service rejects the
	// credentials or the registration code.
	ErrServiceAuth = errors.New("service rejected credentials")

	// ErrRemote is returned for any other error response of the entitlement service.
	ErrRemote = errors.New("entitlement service error")

	// ErrService is returned when local provisioning of a repository service fails.
	ErrService = errors.New("service provisioning failed")

	// ErrCertificate is returned for malformed certificate input.
	ErrCertificate = errors.New("invalid certificate")

	// ErrConfig is returned when a control or configuration document cannot be parsed.
	ErrConfig = errors.New("configuration error")

	// ErrFetch is returned when a file download fails.
	ErrFetch = errors.New("fetch failed")

	// ErrAnnouncement wraps failures of the system announcement.
	ErrAnnouncement = errors.New("system announcement failed")

	// ErrActivation wraps failures of a product activation or upgrade.
	ErrActivation = errors.New("product activation failed")

	// ErrNotRegistered is returned when an operation needs the global
	// credentials and the system has not been announced yet.
	ErrNotRegistered = errors.New("system is not registered")
)

// TimeoutError marks err as both a transport error and a timeout.
func TimeoutError(err error) error {
	return fmt.Errorf("%w: %w: %w", ErrTransport, ErrTimeout, err)
}

// ServiceStage names the step of adding a repository service that failed.
type ServiceStage string

const (
	StageSaveRepos ServiceStage = "save repositories"
	StageAdd       ServiceStage = "add"
	StageUpdate    ServiceStage = "update"
	StageSave      ServiceStage = "save"
	StageRefresh   ServiceStage = "refresh"
	StageCreds     ServiceStage = "write credentials"
)

// ServiceError provides structured information about a failed service
// provisioning step. It matches ErrService with errors.Is.
type ServiceError struct {
	Stage   ServiceStage
	Service string
	Err     error
}

// Error returns a message naming the service and the failed stage.
func (e *ServiceError) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s of service '%s' failed: %v", e.Stage, e.Service, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is makes every ServiceError match ErrService.
func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}

// APIError is an error response of the entitlement service.
// It matches ErrServiceAuth for 401/403 and ErrRemote otherwise.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns the HTTP status and the service message.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("entitlement service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("entitlement service returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Is maps the status code onto the error taxonomy.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrServiceAuth:
		return e.StatusCode == 401 || e.StatusCode == 403
	case ErrRemote:
		return e.StatusCode != 401 && e.StatusCode != 403
	}
	return false
}

// TrustFailureError is a transport error caused by a rejected server
// certificate. The failure recorded by the verify callback is attached.
type TrustFailureError struct {
	Failure TrustFailure
	Err     error
}

// Error returns the verification message.
func (e *TrustFailureError) Error() string {
	return fmt.Sprintf("certificate verification failed: %s (code %d): %v", e.Failure.ErrorMessage, e.Failure.ErrorCode, e.Err)
}

// Unwrap returns the underlying TLS error.
func (e *TrustFailureError) Unwrap() error {
	return e.Err
}

// Is makes every TrustFailureError a transport error.
func (e *TrustFailureError) Is(target error) bool {
	return target == ErrTransport
}
