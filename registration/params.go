package registration

import (
	"crypto/x509"
	"os"
	"strings"

	"github.com/ruteri/registration-client/cryptoutils"
	"github.com/ruteri/registration-client/interfaces"
)

// DefaultCmdlinePath is read for the reg_ssl_verify boot option.
const DefaultCmdlinePath = "/proc/cmdline"

// HTTPLanguage converts a POSIX locale (de_DE.UTF-8) into an HTTP language
// tag (de-DE). The C and POSIX locales have no language.
func HTTPLanguage(locale string) string {
	lang := locale
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(lang, "_", "-")
}

// InsecureFromCmdline reports whether the kernel command line at path
// disables certificate checks with reg_ssl_verify=0.
func InsecureFromCmdline(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, opt := range strings.Fields(string(data)) {
		if opt == "reg_ssl_verify=0" {
			return true
		}
	}
	return false
}

// call is the context of one remote call. Its trust store is filled by the
// verify callback during the call's handshakes and read afterwards.
type call struct {
	trust  *cryptoutils.TrustStore
	params interfaces.ConnectParams

	// accepted is the certificate let through by the trust override.
	accepted *x509.Certificate
}

// newCall rebuilds the connect params from the session configuration and
// consumes a pending one-time trust override.
func (s *Session) newCall() *call {
	c := &call{trust: cryptoutils.NewTrustStore()}

	s.mu.Lock()
	override := s.trustOverride
	s.trustOverride = nil
	s.mu.Unlock()

	params := interfaces.ConnectParams{
		Language:       HTTPLanguage(s.cfg.Language),
		Debug:          s.cfg.Debug,
		Verbose:        s.cfg.Verbose,
		VerifyCallback: cryptoutils.NewRecordingCallback(c.trust, s.log),
		TrustOverride:  override,
		TrustAccepted:  func(cert *x509.Certificate) { c.accepted = cert },
	}

	if s.cfg.URL != "" {
		s.log.Info("Using custom registration URL", "url", s.cfg.URL)
		params.URL = s.cfg.URL
	}

	if s.cfg.Insecure || (s.cfg.CmdlinePath != "" && InsecureFromCmdline(s.cfg.CmdlinePath)) {
		s.log.Warn("SSL certificate check disabled")
		params.Insecure = true
	}

	c.params = params
	return c
}

// finish publishes the call's trust failure and attaches it to transport
// errors. A certificate accepted by a successful call is handed to the trust
// anchors.
func (s *Session) finish(c *call, err error) error {
	if err == nil && c.accepted != nil && s.deps.Anchors != nil {
		s.deps.Anchors.Trust(c.accepted)
	}

	failure, failed := c.trust.Failure()

	s.mu.Lock()
	if failed {
		s.lastFailure = &failure
	} else {
		s.lastFailure = nil
	}
	s.mu.Unlock()

	if err == nil || !failed {
		return err
	}
	return cryptoutils.TrustFailureError(c.trust, err)
}
