// Package cryptoutils provides the certificate handling needed for
// trust-on-first-use decisions of the registration client.
//
// # Certificate inspection
//
// Certificate wraps a parsed X.509 certificate and exposes the attributes an
// operator needs to decide whether to trust it: subject and issuer names,
// validity window, serial number and SHA-1/SHA-256 fingerprints. It can be
// loaded from a file, from PEM or DER bytes, or downloaded through a Fetcher
// without certificate checks.
//
// # Verify callback
//
// TLS verification is performed by VerifyChain from a tls.Config
// VerifyConnection hook. Every certificate of the presented chain is reported
// to a VerifyCallback which can only observe the outcome. The recording
// callback stores a rejected certificate in a TrustStore that is created per
// remote call, so a failure is never attributed to another connection.
//
// A confirmed fingerprint (ConnectParams.TrustOverride) accepts a chain whose
// leaf matches it, for one call only.
//
// # System trust store
//
// SystemImporter writes an accepted certificate into the distribution's
// anchors directory and runs update-ca-certificates or update-ca-trust.
package cryptoutils
