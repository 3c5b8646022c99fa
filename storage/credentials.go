package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ruteri/registration-client/interfaces"
)

// formatCredentials renders credentials in the line based format read by the
// package manager:
//
//	username=<login>
//	password=<password>
func formatCredentials(creds interfaces.Credentials) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "username=%s\n", creds.Login)
	fmt.Fprintf(&buf, "password=%s\n", creds.Password)
	return buf.Bytes()
}

// parseCredentials is the inverse of formatCredentials. Blank lines and
// comments are skipped, unknown keys are ignored.
func parseCredentials(data []byte, path string) (interfaces.Credentials, error) {
	creds := interfaces.Credentials{Path: path}
	var haveLogin, havePassword bool

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "username":
			creds.Login = strings.TrimSpace(value)
			haveLogin = true
		case "password":
			creds.Password = strings.TrimSpace(value)
			havePassword = true
		}
	}
	if err := scanner.Err(); err != nil {
		return interfaces.Credentials{}, fmt.Errorf("failed to read credentials %s: %w", path, err)
	}

	if !haveLogin || !havePassword {
		return interfaces.Credentials{}, fmt.Errorf("malformed credentials %s: username and password required", path)
	}
	return creds, nil
}

// cleanCredentialsPath validates a store relative path.
func cleanCredentialsPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty credentials path")
	}
	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("credentials path %q escapes the store", path)
	}
	return cleaned, nil
}
