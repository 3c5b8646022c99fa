package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/ruteri/registration-client/storage"
)

// OldCredentialsDir is the credentials directory relative to a system root.
const OldCredentialsDir = "etc/zypp/credentials.d"

// oldCredentialsFiles are checked in order; a later file wins.
var oldCredentialsFiles = []string{"NCCcredentials", interfaces.GlobalCredentialsPath}

// ImportOldCredentials copies the system credentials of a previous
// installation mounted at sourceRoot into dst as the global credentials.
// It reports whether any credentials were found.
func ImportOldCredentials(ctx context.Context, sourceRoot string, dst interfaces.CredentialsStore, log *slog.Logger) (bool, error) {
	dir := filepath.Join(sourceRoot, OldCredentialsDir)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info("No old credentials directory", "dir", dir)
			return false, nil
		}
		return false, err
	}

	src, err := storage.NewFileBackend(dir, log)
	if err != nil {
		return false, err
	}

	found := false
	for _, name := range oldCredentialsFiles {
		creds, err := src.Read(ctx, name)
		if errors.Is(err, interfaces.ErrCredentialsNotFound) {
			continue
		}
		if err != nil {
			return found, fmt.Errorf("could not read old credentials %s: %w", name, err)
		}

		log.Info("Copying old credentials", "file", name, "login", creds.Login)
		if err := dst.Write(ctx, creds.WithPath(interfaces.GlobalCredentialsPath)); err != nil {
			return found, err
		}
		found = true
	}

	return found, nil
}
