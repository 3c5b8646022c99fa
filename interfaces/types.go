// Package interfaces defines the core interfaces and types for the registration client.
// It provides the contract between different components without implementation details.
package interfaces

import (
	"fmt"
	"net/url"
	"strings"
)

// RemoteProductIdentity identifies a product towards the entitlement service.
// Two identities are equal iff all four fields are equal.
type RemoteProductIdentity struct {
	Arch        string `json:"arch"`
	Identifier  string `json:"identifier"`
	Version     string `json:"version"`
	ReleaseType string `json:"release_type,omitempty"`
}

// Equal compares two product identities field by field.
func (p RemoteProductIdentity) Equal(other RemoteProductIdentity) bool {
	return p == other
}

// String returns the identity in identifier/version/arch form.
func (p RemoteProductIdentity) String() string {
	s := fmt.Sprintf("%s/%s/%s", p.Identifier, p.Version, p.Arch)
	if p.ReleaseType != "" {
		s += " (" + p.ReleaseType + ")"
	}
	return s
}

// ProductDescriptor is the locally known description of a product, as found in
// the package manager or entered by an operator.
type ProductDescriptor struct {
	Name        string `json:"name"`
	Arch        string `json:"arch"`
	Version     string `json:"version"`
	ReleaseType string `json:"release_type,omitempty"`

	// RegCode is an optional product specific registration code (addons).
	RegCode string `json:"reg_code,omitempty"`
}

// Identity converts the descriptor into a remote product identity.
func (d ProductDescriptor) Identity() RemoteProductIdentity {
	return RemoteProductIdentity{
		Arch:        d.Arch,
		Identifier:  d.Name,
		Version:     d.Version,
		ReleaseType: d.ReleaseType,
	}
}

// String renders the descriptor with the registration code filtered out.
func (d ProductDescriptor) String() string {
	regCode := ""
	if d.RegCode != "" {
		regCode = " reg_code=[FILTERED]"
	}
	return fmt.Sprintf("name=%s version=%s arch=%s release_type=%s%s", d.Name, d.Version, d.Arch, d.ReleaseType, regCode)
}

// ProductRef is either a raw descriptor or an already resolved identity.
// Use NewDescriptorRef or NewIdentityRef to construct it.
type ProductRef struct {
	descriptor *ProductDescriptor
	identity   *RemoteProductIdentity
}

// NewDescriptorRef wraps a raw product descriptor.
func NewDescriptorRef(d ProductDescriptor) ProductRef {
	return ProductRef{descriptor: &d}
}

// NewIdentityRef wraps a resolved remote identity.
func NewIdentityRef(id RemoteProductIdentity) ProductRef {
	return ProductRef{identity: &id}
}

// Identity normalizes the reference into a remote product identity.
func (r ProductRef) Identity() RemoteProductIdentity {
	switch {
	case r.descriptor != nil:
		return r.descriptor.Identity()
	case r.identity != nil:
		return *r.identity
	default:
		return RemoteProductIdentity{}
	}
}

// RegCode returns the product specific registration code. Only raw
// descriptors carry one.
func (r ProductRef) RegCode() string {
	if r.descriptor != nil {
		return r.descriptor.RegCode
	}
	return ""
}

// IsZero reports whether the reference holds neither variant.
func (r ProductRef) IsZero() bool {
	return r.descriptor == nil && r.identity == nil
}

// String is safe for logging; registration codes are filtered.
func (r ProductRef) String() string {
	if r.descriptor != nil {
		return r.descriptor.String()
	}
	return r.Identity().String()
}

// ServiceDescriptor is a repository service returned by a product activation.
type ServiceDescriptor struct {
	ID      int64                 `json:"id"`
	Name    string                `json:"name"`
	URL     string                `json:"url"`
	Product RemoteProductIdentity `json:"product"`
}

// CredentialsName returns the per-service credentials name carried in the
// service URL's "credentials" query parameter, or "" if there is none.
func (s ServiceDescriptor) CredentialsName() string {
	return CredentialsFromURL(s.URL)
}

// CredentialsFromURL extracts the "credentials" query parameter of a service URL.
func CredentialsFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("credentials"))
}

// Credentials are login/password pairs issued by the entitlement service.
// Path is relative to the credentials store root.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Path     string `json:"path"`
}

// WithPath returns a copy of the credentials pointing at another path.
func (c Credentials) WithPath(path string) Credentials {
	c.Path = path
	return c
}

// String never reveals the password.
func (c Credentials) String() string {
	return fmt.Sprintf("login=%s path=%s", c.Login, c.Path)
}

// AddonCatalogEntry is an extension offered by the entitlement service for a
// base product.
type AddonCatalogEntry struct {
	ID               int64  `json:"id"`
	Identifier       string `json:"identifier"`
	FormerIdentifier string `json:"former_identifier,omitempty"`
	Arch             string `json:"arch"`
	Version          string `json:"version"`
	ReleaseType      string `json:"release_type,omitempty"`
	Name             string `json:"name,omitempty"`
	FriendlyName     string `json:"friendly_name,omitempty"`
	Description      string `json:"description,omitempty"`
	Free             bool   `json:"free"`
	Recommended      bool   `json:"recommended,omitempty"`
	Available        bool   `json:"available"`
	EULAURL          string `json:"eula_url,omitempty"`

	Extensions []AddonCatalogEntry `json:"extensions,omitempty"`
}

// Identity returns the remote identity of the addon.
func (a AddonCatalogEntry) Identity() RemoteProductIdentity {
	return RemoteProductIdentity{
		Arch:        a.Arch,
		Identifier:  a.Identifier,
		Version:     a.Version,
		ReleaseType: a.ReleaseType,
	}
}

// RenameMap maps an addon's former identifier to its current identifier.
type RenameMap map[string]string

// ActivatedProduct is a product activation as reported by the status call.
type ActivatedProduct struct {
	ID          int64  `json:"id"`
	Identifier  string `json:"identifier"`
	Version     string `json:"version"`
	Arch        string `json:"arch"`
	ReleaseType string `json:"release_type,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Identity returns the remote identity of the activated product.
func (a ActivatedProduct) Identity() RemoteProductIdentity {
	return RemoteProductIdentity{
		Arch:        a.Arch,
		Identifier:  a.Identifier,
		Version:     a.Version,
		ReleaseType: a.ReleaseType,
	}
}

// UpdateResult is the service response to a system update.
type UpdateResult struct {
	Login        string `json:"login,omitempty"`
	DistroTarget string `json:"distro_target,omitempty"`
}

// Repository is a package repository provided by a service.
type Repository struct {
	Alias        string `json:"alias"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Service      string `json:"service"`
	Enabled      bool   `json:"enabled"`
	Autorefresh  bool   `json:"autorefresh"`
	IsUpdateRepo bool   `json:"is_update_repo"`
}
