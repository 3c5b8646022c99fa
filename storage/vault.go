package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/registration-client/interfaces"
)

// VaultBackend stores credentials in a HashiCorp Vault KV v2 secrets engine.
// Every credentials path becomes one secret with "username" and "password"
// fields below <mount>/data/<prefix>/.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault credentials store authenticated with token.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "registration/host1")
//   - token: Vault token
//   - log: Structured logger
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}
	// No implicit retries.
	config.MaxRetries = 0

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

func (b *VaultBackend) secretPath(path string) (string, error) {
	cleaned, err := cleanCredentialsPath(path)
	if err != nil {
		return "", err
	}
	if b.dataPath == "" {
		return fmt.Sprintf("%s/data/%s", b.mountPath, cleaned), nil
	}
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.dataPath, cleaned), nil
}

// Read loads credentials from Vault.
// Returns ErrCredentialsNotFound if the secret doesn't exist.
func (b *VaultBackend) Read(ctx context.Context, path string) (interfaces.Credentials, error) {
	start := time.Now()
	secretPath, err := b.secretPath(path)
	if err != nil {
		return interfaces.Credentials{}, err
	}

	secret, err := b.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", secretPath),
			"err", err)
		return interfaces.Credentials{}, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Credentials not found in Vault", slog.String("path", secretPath))
		return interfaces.Credentials{}, interfaces.ErrCredentialsNotFound
	}

	// KV v2 nests the secret below "data"; a deleted version has nil data.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return interfaces.Credentials{}, interfaces.ErrCredentialsNotFound
	}

	login, _ := data["username"].(string)
	password, _ := data["password"].(string)
	if login == "" || password == "" {
		b.log.Error("Invalid credentials format in Vault data", slog.String("path", secretPath))
		return interfaces.Credentials{}, fmt.Errorf("malformed credentials in Vault at %s", secretPath)
	}

	b.log.Debug("Fetched credentials from Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))

	return interfaces.Credentials{Login: login, Password: password, Path: path}, nil
}

// Write stores credentials as a new secret version. Vault applies a version
// write atomically.
func (b *VaultBackend) Write(ctx context.Context, creds interfaces.Credentials) error {
	start := time.Now()
	secretPath, err := b.secretPath(creds.Path)
	if err != nil {
		return err
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"username": creds.Login,
			"password": creds.Password,
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, secretPath, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Info("Stored credentials in Vault",
		slog.String("path", secretPath),
		slog.String("login", creds.Login),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Exists reports whether a secret is stored at path. Unlike the file
// backend this needs a round trip to Vault; errors count as absent.
func (b *VaultBackend) Exists(ctx context.Context, path string) bool {
	_, err := b.Read(ctx, path)
	return err == nil
}

// Available checks that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}
	return true
}

// LocationURI returns the URI that identifies this store.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}
