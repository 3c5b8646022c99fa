package cryptoutils

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/registration-client/interfaces"
)

// OpenSSL compatible verification result codes reported in VerifyContext.
const (
	VerifyOK                       = 0
	VerifyUnspecified              = 1
	VerifyCertNotYetValid          = 9
	VerifyCertHasExpired           = 10
	VerifyDepthZeroSelfSigned      = 18
	VerifySelfSignedInChain        = 19
	VerifyUnableToGetIssuerLocally = 20
	VerifyHostnameMismatch         = 62
)

var verifyMessages = map[int]string{
	VerifyOK:                       "ok",
	VerifyUnspecified:              "unspecified certificate verification error",
	VerifyCertNotYetValid:          "certificate is not yet valid",
	VerifyCertHasExpired:           "certificate has expired",
	VerifyDepthZeroSelfSigned:      "self signed certificate",
	VerifySelfSignedInChain:        "self signed certificate in certificate chain",
	VerifyUnableToGetIssuerLocally: "unable to get local issuer certificate",
	VerifyHostnameMismatch:         "Hostname mismatch",
}

// VerifyMessage returns the message for a verification result code.
func VerifyMessage(code int) string {
	if msg, ok := verifyMessages[code]; ok {
		return msg
	}
	return verifyMessages[VerifyUnspecified]
}

// TrustStore holds the most recent TLS verification failure of one call.
// A new failure replaces the previous one.
type TrustStore struct {
	mu      sync.Mutex
	failure *interfaces.TrustFailure
}

// NewTrustStore returns an empty store.
func NewTrustStore() *TrustStore {
	return &TrustStore{}
}

// Record stores a failure, replacing the previous one.
func (s *TrustStore) Record(f interfaces.TrustFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = &f
}

// Failure returns the recorded failure, if any.
func (s *TrustStore) Failure() (interfaces.TrustFailure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		return interfaces.TrustFailure{}, false
	}
	return *s.failure, true
}

// NewRecordingCallback returns a verify callback that records rejected
// certificates into store and returns accepted unchanged.
func NewRecordingCallback(store *TrustStore, log *slog.Logger) interfaces.VerifyCallback {
	return func(accepted bool, vctx *interfaces.VerifyContext) (ret bool) {
		ret = accepted
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic in certificate verify callback", "err", r)
				ret = accepted
			}
		}()

		if accepted || vctx == nil {
			return accepted
		}

		log.Error("SSL verification failed",
			"code", vctx.ErrorCode,
			"message", vctx.ErrorMessage,
			"depth", vctx.Depth)

		store.Record(interfaces.TrustFailure{
			ErrorCode:    vctx.ErrorCode,
			ErrorMessage: vctx.ErrorMessage,
			Certificate:  vctx.CurrentCert,
		})
		return accepted
	}
}

// TLSConfig returns a client TLS configuration for params. Chain verification
// is performed in VerifyConnection so that params.VerifyCallback observes the
// result for every certificate; the callback's return value is ignored.
// A nil roots pool means the system pool; an empty serverName falls back to
// the name negotiated by the handshake.
func TLSConfig(params interfaces.ConnectParams, serverName string, roots *x509.CertPool, log *slog.Logger) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		// Verification happens in VerifyConnection below.
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if params.Insecure {
				return nil
			}
			name := serverName
			if name == "" {
				name = cs.ServerName
			}
			return VerifyChain(params, cs.PeerCertificates, name, roots, time.Now(), log)
		},
	}
}

// VerifyChain verifies a presented chain (leaf first) for serverName,
// reports every certificate to params.VerifyCallback and applies the one-time
// fingerprint override. The callback never changes the outcome.
func VerifyChain(params interfaces.ConnectParams, chain []*x509.Certificate, serverName string, roots *x509.CertPool, now time.Time, log *slog.Logger) error {
	if len(chain) == 0 {
		return errors.New("server presented no certificate")
	}

	leaf := chain[0]
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	_, verifyErr := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		DNSName:       serverName,
		CurrentTime:   now,
	})

	code, failed := classifyVerifyError(verifyErr, chain, now)

	// Report root first, down to the leaf, like OpenSSL does.
	for depth := len(chain) - 1; depth >= 0; depth-- {
		cert := chain[depth]
		accepted := !(verifyErr != nil && cert == failed)
		vctx := &interfaces.VerifyContext{
			CurrentCert: cert,
			Depth:       depth,
			Chain:       chain,
		}
		if !accepted {
			vctx.ErrorCode = code
			vctx.ErrorMessage = VerifyMessage(code)
		}
		if params.VerifyCallback != nil {
			params.VerifyCallback(accepted, vctx)
		}
		if !accepted {
			break
		}
	}

	if verifyErr == nil {
		return nil
	}

	if fp := params.TrustOverride; fp != nil {
		if anchor := overrideAnchor(fp, chain, serverName, now); anchor != nil {
			log.Warn("Accepting untrusted server certificate confirmed by fingerprint",
				"kind", fp.Kind,
				"subject", anchor.Subject.CommonName)
			if params.TrustAccepted != nil {
				params.TrustAccepted(anchor)
			}
			return nil
		}
		log.Warn("Server certificate does not match the confirmed fingerprint", "kind", fp.Kind)
	}

	return verifyErr
}

// overrideAnchor returns the certificate of chain matching fp. A matching
// leaf is accepted as is; a matching issuer must anchor a chain to the leaf
// that is otherwise valid for serverName.
func overrideAnchor(fp *interfaces.Fingerprint, chain []*x509.Certificate, serverName string, now time.Time) *x509.Certificate {
	for i, cert := range chain {
		if !NewCertificate(cert).FingerprintMatches(fp.Kind, fp.Value) {
			continue
		}
		if i == 0 {
			return cert
		}

		intermediates := x509.NewCertPool()
		for _, c := range chain[1:] {
			intermediates.AddCert(c)
		}
		anchor := x509.NewCertPool()
		anchor.AddCert(cert)
		if _, err := chain[0].Verify(x509.VerifyOptions{
			Roots:         anchor,
			Intermediates: intermediates,
			DNSName:       serverName,
			CurrentTime:   now,
		}); err == nil {
			return cert
		}
	}
	return nil
}

// classifyVerifyError maps a Go verification error to an OpenSSL style code
// and the certificate it refers to.
func classifyVerifyError(err error, chain []*x509.Certificate, now time.Time) (int, *x509.Certificate) {
	if err == nil {
		return VerifyOK, nil
	}

	var invalid x509.CertificateInvalidError
	var unknown x509.UnknownAuthorityError
	var hostname x509.HostnameError

	switch {
	case errors.As(err, &invalid):
		cert := invalid.Cert
		if cert == nil {
			cert = chain[0]
		} else if presented := inChain(cert, chain); presented != nil {
			cert = presented
		} else {
			// An invalid root from the pool was never presented.
			cert = chain[len(chain)-1]
		}
		if invalid.Reason == x509.Expired {
			if now.Before(cert.NotBefore) {
				return VerifyCertNotYetValid, cert
			}
			return VerifyCertHasExpired, cert
		}
		return VerifyUnspecified, cert
	case errors.As(err, &unknown):
		// The top of the presented chain is the certificate without a trusted issuer.
		top := chain[len(chain)-1]
		if isSelfSigned(top) {
			if len(chain) == 1 {
				return VerifyDepthZeroSelfSigned, top
			}
			return VerifySelfSignedInChain, top
		}
		return VerifyUnableToGetIssuerLocally, top
	case errors.As(err, &hostname):
		return VerifyHostnameMismatch, chain[0]
	}

	return VerifyUnspecified, chain[0]
}

// inChain returns the presented certificate equal to cert.
func inChain(cert *x509.Certificate, chain []*x509.Certificate) *x509.Certificate {
	for _, c := range chain {
		if c == cert || c.Equal(cert) {
			return c
		}
	}
	return nil
}

func isSelfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

// TrustFailureError wraps err with the failure recorded in store, if any.
func TrustFailureError(store *TrustStore, err error) error {
	if store == nil {
		return err
	}
	failure, ok := store.Failure()
	if !ok {
		return err
	}
	return &interfaces.TrustFailureError{Failure: failure, Err: err}
}

// DescribeFailure renders a failure for operator messages.
func DescribeFailure(f interfaces.TrustFailure) string {
	if f.Certificate == nil {
		return fmt.Sprintf("%s (code %d)", f.ErrorMessage, f.ErrorCode)
	}
	return fmt.Sprintf("%s (code %d), certificate %q issued by %q",
		f.ErrorMessage, f.ErrorCode, f.Certificate.Subject.CommonName, f.Certificate.Issuer.CommonName)
}
