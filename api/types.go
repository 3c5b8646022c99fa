package api

import (
	"github.com/ruteri/registration-client/interfaces"
)

// DefaultURL is the entitlement service used when no URL is configured.
const DefaultURL = "https://scc.suse.com"

// Entitlement service endpoints.
const (
	AnnouncePath    = "/connect/subscriptions/systems"
	SystemsPath     = "/connect/systems"
	ProductsPath    = "/connect/systems/products"
	ActivationsPath = "/connect/systems/activations"
)

// AcceptHeader selects the API version of the entitlement service.
const AcceptHeader = "application/json,application/vnd.scc.suse.com.v4+json"

// TokenAuthPrefix prefixes the registration code in the Authorization header
// of the announcement.
const TokenAuthPrefix = "Token token="

// Hwinfo describes the announced system.
type Hwinfo struct {
	Hostname string `json:"hostname"`
	Arch     string `json:"arch"`
	CPUs     int    `json:"cpus"`
}

// AnnounceRequest is the body of the system announcement.
type AnnounceRequest struct {
	Hostname     string  `json:"hostname"`
	DistroTarget string  `json:"distro_target,omitempty"`
	Hwinfo       *Hwinfo `json:"hwinfo,omitempty"`
}

// AnnounceResponse carries the credentials issued for the announced system.
type AnnounceResponse struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// ProductRequest is the body of product activation and upgrade.
// Token and Email are only sent on activation.
type ProductRequest struct {
	Identifier  string `json:"identifier"`
	Version     string `json:"version"`
	Arch        string `json:"arch"`
	ReleaseType string `json:"release_type,omitempty"`
	Token       string `json:"token,omitempty"`
	Email       string `json:"email,omitempty"`
}

// NewProductRequest builds the request body for a product identity.
func NewProductRequest(product interfaces.RemoteProductIdentity) ProductRequest {
	return ProductRequest{
		Identifier:  product.Identifier,
		Version:     product.Version,
		Arch:        product.Arch,
		ReleaseType: product.ReleaseType,
	}
}

// Identity returns the product identity of the request.
func (r ProductRequest) Identity() interfaces.RemoteProductIdentity {
	return interfaces.RemoteProductIdentity{
		Identifier:  r.Identifier,
		Version:     r.Version,
		Arch:        r.Arch,
		ReleaseType: r.ReleaseType,
	}
}

// ServiceResponse is the repository service returned by activation and upgrade.
type ServiceResponse = interfaces.ServiceDescriptor

// UpdateSystemRequest is the body of the system update.
type UpdateSystemRequest struct {
	Hostname     string  `json:"hostname"`
	DistroTarget string  `json:"distro_target,omitempty"`
	Hwinfo       *Hwinfo `json:"hwinfo,omitempty"`
}

// UpdateSystemResponse is returned by the system update. Servers may also
// answer with 204 and no body.
type UpdateSystemResponse struct {
	Login        string `json:"login"`
	DistroTarget string `json:"distro_target,omitempty"`
}

// Activation is one entry of the activations listing.
type Activation struct {
	ID      int64             `json:"id"`
	Status  string            `json:"status"`
	Service ActivationService `json:"service"`
}

// ActivationService is the service an activation belongs to.
type ActivationService struct {
	ID      int64             `json:"id"`
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Product ActivationProduct `json:"product"`
}

// ActivationProduct is the product of an activated service.
type ActivationProduct struct {
	ID          int64  `json:"id"`
	Identifier  string `json:"identifier"`
	Version     string `json:"version"`
	Arch        string `json:"arch"`
	ReleaseType string `json:"release_type,omitempty"`
}

// ActivatedProduct converts the activation into the domain type.
func (a Activation) ActivatedProduct() interfaces.ActivatedProduct {
	return interfaces.ActivatedProduct{
		ID:          a.Service.Product.ID,
		Identifier:  a.Service.Product.Identifier,
		Version:     a.Service.Product.Version,
		Arch:        a.Service.Product.Arch,
		ReleaseType: a.Service.Product.ReleaseType,
		Status:      a.Status,
	}
}

// ErrorResponse is the body of an error reply.
type ErrorResponse struct {
	Type           string `json:"type,omitempty"`
	Error          string `json:"error"`
	LocalizedError string `json:"localized_error,omitempty"`
}

// Message prefers the localized error.
func (e ErrorResponse) Message() string {
	if e.LocalizedError != "" {
		return e.LocalizedError
	}
	return e.Error
}
