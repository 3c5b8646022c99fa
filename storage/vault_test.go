package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKV emulates the KV v2 read and write endpoints.
type fakeKV struct {
	mu      sync.Mutex
	secrets map[string]map[string]interface{}
	token   string
}

func (f *fakeKV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Vault-Token") != f.token {
		http.Error(w, `{"errors":["permission denied"]}`, http.StatusForbidden)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		data, ok := f.secrets[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data":     data,
				"metadata": map[string]interface{}{"version": 1},
			},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.secrets[path] = body.Data
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"version": 1},
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestVaultBackend_WriteRead(t *testing.T) {
	kv := &fakeKV{secrets: map[string]map[string]interface{}{}, token: "root-token"}
	srv := httptest.NewServer(kv)
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := NewVaultBackend(srv.URL, "secret/", "/registration/host1", "root-token", logger)
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, backend.Exists(ctx, interfaces.GlobalCredentialsPath))
	_, err = backend.Read(ctx, interfaces.GlobalCredentialsPath)
	assert.True(t, errors.Is(err, interfaces.ErrCredentialsNotFound))

	creds := interfaces.Credentials{Login: "SCC_abc", Password: "s3cret", Path: interfaces.GlobalCredentialsPath}
	require.NoError(t, backend.Write(ctx, creds))

	stored := kv.secrets["secret/data/registration/host1/SCCcredentials"]
	require.NotNil(t, stored)
	assert.Equal(t, "SCC_abc", stored["username"])

	got, err := backend.Read(ctx, interfaces.GlobalCredentialsPath)
	require.NoError(t, err)
	assert.Equal(t, creds, got)
	assert.True(t, backend.Exists(ctx, interfaces.GlobalCredentialsPath))
	assert.True(t, strings.HasPrefix(backend.LocationURI(), "vault://"))
}

func TestVaultBackend_Denied(t *testing.T) {
	kv := &fakeKV{secrets: map[string]map[string]interface{}{}, token: "root-token"}
	srv := httptest.NewServer(kv)
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := NewVaultBackend(srv.URL, "secret", "registration", "wrong-token", logger)
	require.NoError(t, err)

	err = backend.Write(context.Background(), interfaces.Credentials{Login: "l", Password: "p", Path: "svc"})
	assert.True(t, errors.Is(err, interfaces.ErrBackendUnavailable))
}
