package main

import (
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ruteri/registration-client/api/clients"
	"github.com/ruteri/registration-client/cmd/flags"
	"github.com/ruteri/registration-client/cryptoutils"
	"github.com/ruteri/registration-client/discovery"
	"github.com/ruteri/registration-client/fetch"
	"github.com/ruteri/registration-client/interfaces"
	"github.com/ruteri/registration-client/pkgstore"
	"github.com/ruteri/registration-client/registration"
	"github.com/ruteri/registration-client/storage"
	"github.com/urfave/cli/v2"
)

// clientEnv holds the components wired from the global flags.
type clientEnv struct {
	log      *slog.Logger
	creds    interfaces.CredentialsStore
	fetcher  *fetch.Client
	packages *pkgstore.FileStore
	session  *registration.Session
}

func newClientEnv(cCtx *cli.Context) (*clientEnv, error) {
	log := flags.SetupLogger(cCtx)
	cfg := flags.SessionConfig(cCtx)

	if cfg.URL != "" {
		if _, err := discovery.ValidateURL(cfg.URL); err != nil {
			return nil, err
		}
	}

	roots, err := rootPool(cCtx.String(flags.CACertFlag.Name))
	if err != nil {
		return nil, err
	}

	creds, err := storage.NewCredentialsStore(cCtx.String(flags.CredentialsFlag.Name), log)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.NewClient(log, fetch.WithRootCAs(roots))
	packages := pkgstore.NewFileStore(cCtx.String(flags.RootFlag.Name), creds, fetcher, log,
		pkgstore.WithInsecureRefresh(cfg.Insecure))

	session := registration.NewSession(cfg, registration.Deps{
		Service:     clients.NewConnectClient(creds, log).WithRootCAs(roots),
		Packages:    packages,
		Credentials: creds,
		Log:         log,
		Anchors:     fetcher,
	})

	return &clientEnv{
		log:      log,
		creds:    creds,
		fetcher:  fetcher,
		packages: packages,
		session:  session,
	}, nil
}

// rootPool returns the system pool extended with caCert. Nil means the
// system pool as loaded by crypto/tls.
func rootPool(caCert string) (*x509.CertPool, error) {
	if caCert == "" {
		return nil, nil
	}
	cert, err := cryptoutils.LoadCertificateFile(caCert)
	if err != nil {
		return nil, err
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	pool.AddCert(cert.X509())
	return pool, nil
}

// parseFingerprint splits KIND:VALUE. The value itself contains colons.
func parseFingerprint(s string) (interfaces.FingerprintKind, string, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return "", "", fmt.Errorf("invalid fingerprint %q, expected KIND:VALUE", s)
	}
	return interfaces.ParseFingerprintKind(kind), value, nil
}

// withTrustRetry runs op. When op failed on an untrusted server certificate
// the certificate is shown; if --trust-fingerprint confirms it, op runs once
// more trusting that certificate.
func (e *clientEnv) withTrustRetry(cCtx *cli.Context, op func() error) error {
	err := op()
	var trustErr *interfaces.TrustFailureError
	if !errors.As(err, &trustErr) {
		return err
	}

	failure := trustErr.Failure
	fmt.Fprintf(os.Stderr, "Server certificate rejected: %s\n", cryptoutils.DescribeFailure(failure))
	if failure.Certificate != nil {
		_ = printJSON(cryptoutils.NewCertificate(failure.Certificate).View())
	}

	confirmed := cCtx.String(flags.TrustFingerprintFlag.Name)
	if confirmed == "" || failure.Certificate == nil {
		return err
	}

	kind, value, perr := parseFingerprint(confirmed)
	if perr != nil {
		return perr
	}
	if !cryptoutils.NewCertificate(failure.Certificate).FingerprintMatches(kind, value) {
		return fmt.Errorf("server certificate does not match the %s fingerprint given: %w", kind, err)
	}

	e.log.Warn("Retrying with the confirmed server certificate", "kind", kind)
	e.session.TrustOnce(kind, value)
	return op()
}
