package interfaces

import (
	"crypto/x509"
	"strings"
)

// TrustFailure is a TLS verification failure as observed by the verify callback.
type TrustFailure struct {
	ErrorCode    int
	ErrorMessage string
	Certificate  *x509.Certificate
}

// VerifyContext is handed to a VerifyCallback for every certificate of the
// presented chain, leaf first.
type VerifyContext struct {
	// ErrorCode is an OpenSSL compatible verification result, 0 if accepted.
	ErrorCode    int
	ErrorMessage string

	// CurrentCert is the certificate being inspected.
	CurrentCert *x509.Certificate
	Depth       int
	Chain       []*x509.Certificate
}

// VerifyCallback observes a verification outcome. It must return accepted
// unchanged.
type VerifyCallback func(accepted bool, vctx *VerifyContext) bool

// FingerprintKind is the digest used for a certificate fingerprint.
type FingerprintKind string

const (
	FingerprintSHA1   FingerprintKind = "SHA1"
	FingerprintSHA256 FingerprintKind = "SHA256"
)

// ParseFingerprintKind normalizes a user supplied digest name. Unknown names
// are returned as given; they never match any certificate.
func ParseFingerprintKind(s string) FingerprintKind {
	upper := strings.ToUpper(strings.ReplaceAll(s, "-", ""))
	switch upper {
	case "SHA1", "SHA256":
		return FingerprintKind(upper)
	}
	return FingerprintKind(s)
}

// Fingerprint is an operator confirmed certificate fingerprint.
type Fingerprint struct {
	Kind  FingerprintKind
	Value string
}

// ConnectParams are rebuilt for every remote call and never persisted.
type ConnectParams struct {
	URL      string
	Language string
	Debug    bool
	Verbose  bool
	Insecure bool

	// Token is the registration code used for announcement and activation.
	Token string
	Email string

	VerifyCallback VerifyCallback

	// TrustOverride, if set, accepts a server chain containing a certificate
	// that matches the fingerprint. It applies to this call only.
	TrustOverride *Fingerprint

	// TrustAccepted, if set, receives the certificate accepted through
	// TrustOverride.
	TrustAccepted func(cert *x509.Certificate)
}
