package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/ruteri/registration-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNS serves records for example.com and NXDOMAIN for anything else.
func startDNS(t *testing.T, records []dns.RR) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			resp := new(dns.Msg)
			resp.SetReply(req)
			if req.Question[0].Name == "_registration._tcp.example.com." {
				resp.Answer = records
			} else {
				resp.Rcode = dns.RcodeNameError
			}
			_ = w.WriteMsg(resp)
		}),
	}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func srv(priority, weight, port uint16, target string) dns.RR {
	return &dns.SRV{
		Hdr:      dns.RR_Header{Name: "_registration._tcp.example.com.", Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 3600},
		Priority: priority,
		Weight:   weight,
		Port:     port,
		Target:   target,
	}
}

func TestLookupRegistrationServers(t *testing.T) {
	addr := startDNS(t, []dns.RR{
		srv(20, 0, 443, "backup.example.com."),
		srv(10, 5, 8443, "smt2.example.com."),
		srv(10, 50, 443, "smt.example.com."),
		srv(30, 0, 443, "."),
	})
	resolver := NewResolver(addr, slog.New(slog.NewTextHandler(io.Discard, nil)))

	servers, err := resolver.LookupRegistrationServers(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, "https://smt.example.com/", servers[0].URL)
	assert.Equal(t, "https://smt2.example.com:8443/", servers[1].URL)
	assert.Equal(t, "backup.example.com", servers[2].Target)

	servers, err = resolver.LookupRegistrationServers(context.Background(), "other.org.")
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestLookupRegistrationServers_Unreachable(t *testing.T) {
	// a closed port on localhost
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	pc.Close()

	resolver := NewResolver(addr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err = resolver.LookupRegistrationServers(ctx, "example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrTransport))
}

func TestSystemServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("search example.com\nnameserver 192.0.2.53\n"), 0644))
	assert.Equal(t, "192.0.2.53:53", systemServer(path))

	assert.Equal(t, fallbackServer, systemServer(filepath.Join(t.TempDir(), "missing")))
}

func TestValidateURL(t *testing.T) {
	u, err := ValidateURL(" https://smt.example.com/connect ")
	require.NoError(t, err)
	assert.Equal(t, "smt.example.com", u.Host)

	_, err = ValidateURL("http://localhost:3000")
	assert.NoError(t, err)

	for _, raw := range []string{"smt.example.com", "ftp://smt.example.com", "https://", "://bad"} {
		_, err := ValidateURL(raw)
		assert.True(t, errors.Is(err, ErrInvalidURL), raw)
	}
}
