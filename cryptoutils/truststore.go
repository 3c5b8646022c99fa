package cryptoutils

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// ImportedCertificateName is the file name of an operator accepted server
// certificate in the system anchors directory.
const ImportedCertificateName = "registration_server.pem"

// TrustImporter adds a PEM encoded certificate to a trust store.
type TrustImporter interface {
	Import(certPEM []byte) error
}

// anchorLayout is a trust anchors directory with the command that rebuilds
// the certificate bundle from it.
type anchorLayout struct {
	dir       string
	updateCmd string
}

// SystemImporter writes certificates into the distribution's anchors
// directory and rebuilds the system bundle. Requires root privileges.
type SystemImporter struct {
	// Root prefixes all paths, "" for the running system.
	Root string

	log      *slog.Logger
	layouts  []anchorLayout
	lookPath func(file string) (string, error)
	run      func(name string, args ...string) ([]byte, error)
}

// NewSystemImporter returns an importer for the current platform.
func NewSystemImporter(log *slog.Logger) *SystemImporter {
	return &SystemImporter{
		log:      log,
		layouts:  platformLayouts(),
		lookPath: exec.LookPath,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		},
	}
}

// Import validates certPEM, writes it to the anchors directory and updates
// the certificate bundle. The written file is removed if the update fails.
func (i *SystemImporter) Import(certPEM []byte) error {
	cert, err := LoadCertificate(certPEM)
	if err != nil {
		return err
	}

	layout, err := i.detect()
	if err != nil {
		return err
	}

	dir := filepath.Join(i.Root, layout.dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("trust: create anchors dir: %w", err)
	}

	path := filepath.Join(dir, ImportedCertificateName)
	if err := os.WriteFile(path, cert.PEM(), 0644); err != nil {
		return fmt.Errorf("trust: write certificate: %w", err)
	}

	i.log.Info("Importing certificate to the system trust store",
		"path", path,
		"subject", cert.SubjectName(),
		"sha256", cert.SHA256Fingerprint())

	output, err := i.run(layout.updateCmd)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("trust: %s failed: %w\noutput: %s", layout.updateCmd, err, string(output))
	}
	return nil
}

// detect picks the first layout whose parent directory exists and whose
// update command is installed.
func (i *SystemImporter) detect() (anchorLayout, error) {
	if len(i.layouts) == 0 {
		return anchorLayout{}, errUnsupportedPlatform
	}
	for _, l := range i.layouts {
		if _, err := os.Stat(filepath.Join(i.Root, filepath.Dir(l.dir))); err != nil {
			continue
		}
		if _, err := i.lookPath(l.updateCmd); err == nil {
			return l, nil
		}
	}
	return anchorLayout{}, fmt.Errorf("%w: no anchors directory with a certificate update tool", errUnsupportedPlatform)
}
