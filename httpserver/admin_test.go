package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/registration-client/api"
	"github.com/ruteri/registration-client/api/clients"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateAdminKeys creates key pairs for the given admin IDs
func generateAdminKeys(t *testing.T, ids ...string) (map[string]*ecdsa.PrivateKey, map[string][]byte) {
	t.Helper()
	privKeys := make(map[string]*ecdsa.PrivateKey, len(ids))
	pubKeys := make(map[string][]byte, len(ids))
	for _, id := range ids {
		privPEM, pubPEM, err := GenerateAdminKeyPair()
		require.NoError(t, err)
		privKey, err := ParsePrivateKey([]byte(privPEM))
		require.NoError(t, err)
		privKeys[id] = privKey
		pubKeys[id] = []byte(pubPEM)
	}
	return privKeys, pubKeys
}

func newAdminTestServer(t *testing.T, pubKeys map[string][]byte) (*httptest.Server, *State) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := DemoState("x86_64")
	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, NewHandler(state, logger).WithAdmin(pubKeys))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, state
}

func TestAdmin_SystemsLifecycle(t *testing.T) {
	privKeys, pubKeys := generateAdminKeys(t, "alice")
	ts, state := newAdminTestServer(t, pubKeys)
	admin := clients.NewAdminClient(ts.URL, "alice", privKeys["alice"])

	status, err := admin.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, api.AdminStatusResponse{Systems: 0, RegCodes: 1, Products: 1}, status)

	system, err := state.Announce(DemoRegCode, "host1", "sle-12-x86_64")
	require.NoError(t, err)

	systems, err := admin.ListSystems()
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, system.Login, systems[0].Login)
	assert.Equal(t, "host1", systems[0].Hostname)
	assert.Empty(t, systems[0].Products)

	require.NoError(t, admin.RemoveSystem(system.Login))
	_, ok := state.Authenticate(system.Login, system.Password)
	assert.False(t, ok)

	err = admin.RemoveSystem(system.Login)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestAdmin_RegCodes(t *testing.T) {
	privKeys, pubKeys := generateAdminKeys(t, "alice")
	ts, state := newAdminTestServer(t, pubKeys)
	admin := clients.NewAdminClient(ts.URL, "alice", privKeys["alice"])

	_, err := state.Announce("NEW-CODE", "host1", "")
	require.Error(t, err)

	require.NoError(t, admin.AddRegCode("NEW-CODE"))
	_, err = state.Announce("NEW-CODE", "host1", "")
	require.NoError(t, err)

	require.NoError(t, admin.RemoveRegCode("NEW-CODE"))
	_, err = state.Announce("NEW-CODE", "host2", "")
	require.Error(t, err)

	assert.Error(t, admin.RemoveRegCode("NEW-CODE"))
	assert.Error(t, admin.AddRegCode(""))
}

func TestAdmin_Authentication(t *testing.T) {
	privKeys, pubKeys := generateAdminKeys(t, "alice", "mallory")
	delete(pubKeys, "mallory")
	ts, _ := newAdminTestServer(t, pubKeys)

	t.Run("unsigned request", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/admin/status")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown admin", func(t *testing.T) {
		admin := clients.NewAdminClient(ts.URL, "mallory", privKeys["mallory"])
		_, err := admin.GetStatus()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("key of another admin", func(t *testing.T) {
		admin := clients.NewAdminClient(ts.URL, "alice", privKeys["mallory"])
		_, err := admin.GetStatus()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("tampered body", func(t *testing.T) {
		body, err := json.Marshal(api.AdminRegCodeRequest{RegCode: "CODE-A"})
		require.NoError(t, err)
		req, err := clients.CreateSignedAdminRequest(http.MethodPost, ts.URL+"/admin/regcodes", body, "alice", privKeys["alice"])
		require.NoError(t, err)

		tampered, err := json.Marshal(api.AdminRegCodeRequest{RegCode: "CODE-B"})
		require.NoError(t, err)
		req.Body = io.NopCloser(bytes.NewReader(tampered))
		req.ContentLength = int64(len(tampered))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAdmin_DisabledWithoutKeys(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv.Handler(), http.MethodGet, "/admin/status", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLoadAdminKeys(t *testing.T) {
	_, pubKeys := generateAdminKeys(t, "alice")

	doc, err := json.Marshal(map[string]any{
		"admins": []map[string]string{{"id": "alice", "pubkey": string(pubKeys["alice"])}},
	})
	require.NoError(t, err)

	keys, err := LoadAdminKeys(bytes.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, pubKeys["alice"], keys["alice"])

	_, err = LoadAdminKeys(strings.NewReader(`{"admins":[{"id":"bob","pubkey":"not a key"}]}`))
	assert.Error(t, err)

	_, err = LoadAdminKeys(strings.NewReader(`{"admins":[{"pubkey":""}]}`))
	assert.Error(t, err)
}
