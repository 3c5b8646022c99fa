package cryptoutils

import (
	"crypto/x509"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedCert(t *testing.T) {
	pair, err := SelfSignedCert("stub.example.com", "127.0.0.1")
	require.NoError(t, err)
	require.Len(t, pair.Certificate, 1)

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)

	assert.Equal(t, "stub.example.com", leaf.Subject.CommonName)
	assert.Equal(t, []string{"stub.example.com"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.True(t, leaf.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")))
	assert.NoError(t, leaf.CheckSignatureFrom(leaf))

	cert := NewCertificate(leaf)
	assert.Len(t, cert.SHA256Fingerprint(), 95)
}
