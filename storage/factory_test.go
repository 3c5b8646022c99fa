package storage

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsStoreFactory_StoreFor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewCredentialsStoreFactory(logger)
	factory.getenv = func(key string) string {
		if key == "VAULT_TOKEN" {
			return "token"
		}
		return ""
	}

	dir := filepath.Join(t.TempDir(), "credentials.d")
	store, err := factory.StoreFor("file://" + dir)
	require.NoError(t, err)
	fileBackend, ok := store.(*FileBackend)
	require.True(t, ok)
	assert.Equal(t, dir, fileBackend.Dir())
	assert.Equal(t, "file://"+dir, store.LocationURI())

	store, err = factory.StoreFor("vault://vault.example.com:8200/secret/registration/host1")
	require.NoError(t, err)
	vaultBackend, ok := store.(*VaultBackend)
	require.True(t, ok)
	assert.Equal(t, "secret", vaultBackend.mountPath)
	assert.Equal(t, "registration/host1", vaultBackend.dataPath)
	assert.Equal(t, "https://vault.example.com:8200", vaultBackend.client.Address())

	store, err = factory.StoreFor("vault://127.0.0.1:8200/kv?tls=false")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8200", store.(*VaultBackend).client.Address())
}

func TestCredentialsStoreFactory_Invalid(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewCredentialsStoreFactory(logger)

	testCases := []struct {
		name string
		uri  string
	}{
		{"unsupported scheme", "s3://bucket/prefix"},
		{"empty file path", "file://"},
		{"vault without host", "vault:///secret"},
		{"vault without mount", "vault://vault.example.com:8200/"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.StoreFor(tc.uri)
			require.Error(t, err)
			assert.True(t, errors.Is(err, interfaces.ErrInvalidLocationURI))
		})
	}
}
