package cryptoutils

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ruteri/registration-client/interfaces"
)

// dateLayout renders certificate validity dates (calendar day only).
const dateLayout = "2006-01-02"

// Name attribute keys supported by SubjectAttribute and IssuerAttribute.
var nameAttributeOIDs = map[string]asn1.ObjectIdentifier{
	"CN":           {2, 5, 4, 3},
	"C":            {2, 5, 4, 6},
	"L":            {2, 5, 4, 7},
	"ST":           {2, 5, 4, 8},
	"O":            {2, 5, 4, 10},
	"OU":           {2, 5, 4, 11},
	"emailAddress": {1, 2, 840, 113549, 1, 9, 1},
}

// Certificate is a read-only view over a parsed X.509 certificate used for
// operator facing trust decisions.
type Certificate struct {
	cert *x509.Certificate
}

// CertificateView is a derived projection of a certificate. It is computed on
// demand and never cached.
type CertificateView struct {
	SubjectName             string `json:"subject_name"`
	SubjectOrganization     string `json:"subject_organization"`
	SubjectOrganizationUnit string `json:"subject_organization_unit"`
	IssuerName              string `json:"issuer_name"`
	IssuerOrganization      string `json:"issuer_organization"`
	IssuerOrganizationUnit  string `json:"issuer_organization_unit"`
	IssuedOn                string `json:"issued_on"`
	ExpiresOn               string `json:"expires_on"`
	Serial                  string `json:"serial"`
	SHA1Fingerprint         string `json:"sha1_fingerprint"`
	SHA256Fingerprint       string `json:"sha256_fingerprint"`
}

// NewCertificate wraps an already parsed certificate.
func NewCertificate(cert *x509.Certificate) *Certificate {
	return &Certificate{cert: cert}
}

// LoadCertificate parses a certificate from PEM or DER encoded bytes.
// Only the first PEM block is used.
func LoadCertificate(data []byte) (*Certificate, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: unexpected PEM block type %q", interfaces.ErrCertificate, block.Type)
		}
		der = block.Bytes
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCertificate, err)
	}
	return NewCertificate(cert), nil
}

// LoadCertificateFile reads and parses a certificate file.
func LoadCertificateFile(path string) (*Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read certificate file: %w", err)
	}
	return LoadCertificate(data)
}

// DownloadCertificate fetches a certificate from url. The insecure flag
// applies to this download only; it exists to retrieve a server certificate
// before trust has been established.
func DownloadCertificate(ctx context.Context, fetcher interfaces.Fetcher, url string, insecure bool) (*Certificate, error) {
	data, err := fetcher.Fetch(ctx, url, insecure)
	if err != nil {
		return nil, err
	}
	return LoadCertificate(data)
}

// X509 returns the underlying certificate.
func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}

// PEM returns the PEM encoding of the certificate.
func (c *Certificate) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.cert.Raw})
}

// SHA1Fingerprint returns the SHA-1 digest of the DER encoding as uppercase
// hex octets joined by colons.
func (c *Certificate) SHA1Fingerprint() string {
	sum := sha1.Sum(c.cert.Raw)
	return colonHex(sum[:])
}

// SHA256Fingerprint returns the SHA-256 digest of the DER encoding as
// uppercase hex octets joined by colons.
func (c *Certificate) SHA256Fingerprint() string {
	sum := sha256.Sum256(c.cert.Raw)
	return colonHex(sum[:])
}

// Fingerprint returns the fingerprint of the given kind, or false for an
// unknown kind.
func (c *Certificate) Fingerprint(kind interfaces.FingerprintKind) (string, bool) {
	switch interfaces.ParseFingerprintKind(string(kind)) {
	case interfaces.FingerprintSHA1:
		return c.SHA1Fingerprint(), true
	case interfaces.FingerprintSHA256:
		return c.SHA256Fingerprint(), true
	}
	return "", false
}

// FingerprintMatches compares the computed fingerprint of the requested kind
// against expected, ignoring case. Unknown kinds never match.
func (c *Certificate) FingerprintMatches(kind interfaces.FingerprintKind, expected string) bool {
	actual, ok := c.Fingerprint(kind)
	if !ok {
		return false
	}
	return strings.ToUpper(actual) == strings.ToUpper(expected)
}

// Serial returns the serial number as uppercase hex octets joined by colons.
func (c *Certificate) Serial() string {
	b := c.cert.SerialNumber.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	return colonHex(b)
}

// ValidYet reports whether the certificate's not-before time has passed.
func (c *Certificate) ValidYet() bool {
	return c.ValidYetAt(time.Now())
}

// ValidYetAt reports whether t is after the not-before time.
func (c *Certificate) ValidYetAt(t time.Time) bool {
	return t.After(c.cert.NotBefore)
}

// Expired reports whether the certificate's not-after time has passed.
func (c *Certificate) Expired() bool {
	return c.ExpiredAt(time.Now())
}

// ExpiredAt reports whether t is after the not-after time.
func (c *Certificate) ExpiredAt(t time.Time) bool {
	return t.After(c.cert.NotAfter)
}

// IssuedOn returns the not-before date in local time.
func (c *Certificate) IssuedOn() string {
	return c.cert.NotBefore.Local().Format(dateLayout)
}

// ExpiresOn returns the not-after date in local time.
func (c *Certificate) ExpiresOn() string {
	return c.cert.NotAfter.Local().Format(dateLayout)
}

// SubjectAttribute returns the first subject attribute with the given key
// (e.g. "CN", "O", "OU").
func (c *Certificate) SubjectAttribute(key string) (string, bool) {
	return findNameAttribute(c.cert.Subject.Names, key)
}

// IssuerAttribute returns the first issuer attribute with the given key.
func (c *Certificate) IssuerAttribute(key string) (string, bool) {
	return findNameAttribute(c.cert.Issuer.Names, key)
}

func (c *Certificate) SubjectName() string {
	v, _ := c.SubjectAttribute("CN")
	return v
}

func (c *Certificate) SubjectOrganization() string {
	v, _ := c.SubjectAttribute("O")
	return v
}

func (c *Certificate) SubjectOrganizationUnit() string {
	v, _ := c.SubjectAttribute("OU")
	return v
}

func (c *Certificate) IssuerName() string {
	v, _ := c.IssuerAttribute("CN")
	return v
}

func (c *Certificate) IssuerOrganization() string {
	v, _ := c.IssuerAttribute("O")
	return v
}

func (c *Certificate) IssuerOrganizationUnit() string {
	v, _ := c.IssuerAttribute("OU")
	return v
}

// View computes the operator facing projection of the certificate.
func (c *Certificate) View() CertificateView {
	return CertificateView{
		SubjectName:             c.SubjectName(),
		SubjectOrganization:     c.SubjectOrganization(),
		SubjectOrganizationUnit: c.SubjectOrganizationUnit(),
		IssuerName:              c.IssuerName(),
		IssuerOrganization:      c.IssuerOrganization(),
		IssuerOrganizationUnit:  c.IssuerOrganizationUnit(),
		IssuedOn:                c.IssuedOn(),
		ExpiresOn:               c.ExpiresOn(),
		Serial:                  c.Serial(),
		SHA1Fingerprint:         c.SHA1Fingerprint(),
		SHA256Fingerprint:       c.SHA256Fingerprint(),
	}
}

// ImportToSystem adds the certificate to the system trust store.
func (c *Certificate) ImportToSystem(importer TrustImporter) error {
	return importer.Import(c.PEM())
}

func findNameAttribute(names []pkix.AttributeTypeAndValue, key string) (string, bool) {
	oid, ok := nameAttributeOIDs[key]
	if !ok {
		return "", false
	}
	for _, atv := range names {
		if !atv.Type.Equal(oid) {
			continue
		}
		if s, ok := atv.Value.(string); ok {
			return s, true
		}
		return fmt.Sprint(atv.Value), true
	}
	return "", false
}

func colonHex(b []byte) string {
	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{octet}))
	}
	return strings.Join(parts, ":")
}
