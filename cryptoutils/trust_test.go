package cryptoutils

import (
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reportedCert struct {
	accepted bool
	depth    int
	code     int
	cert     *x509.Certificate
}

func reportingParams(reports *[]reportedCert) interfaces.ConnectParams {
	return interfaces.ConnectParams{
		VerifyCallback: func(accepted bool, vctx *interfaces.VerifyContext) bool {
			*reports = append(*reports, reportedCert{
				accepted: accepted,
				depth:    vctx.Depth,
				code:     vctx.ErrorCode,
				cert:     vctx.CurrentCert,
			})
			return accepted
		},
	}
}

func poolOf(certs ...*testCert) *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c.cert)
	}
	return pool
}

// Test NewRecordingCallback - records only rejected certificates
func TestRecordingCallback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewTrustStore()
	callback := NewRecordingCallback(store, logger)

	tc := createTestCert(t, serverTemplate("scc.example.com"), nil)

	assert.True(t, callback(true, &interfaces.VerifyContext{CurrentCert: tc.cert}))
	_, ok := store.Failure()
	assert.False(t, ok)

	assert.False(t, callback(false, &interfaces.VerifyContext{
		ErrorCode:    VerifyDepthZeroSelfSigned,
		ErrorMessage: VerifyMessage(VerifyDepthZeroSelfSigned),
		CurrentCert:  tc.cert,
	}))
	failure, ok := store.Failure()
	require.True(t, ok)
	assert.Equal(t, VerifyDepthZeroSelfSigned, failure.ErrorCode)
	assert.Equal(t, "self signed certificate", failure.ErrorMessage)
	assert.Same(t, tc.cert, failure.Certificate)

	// a later failure replaces the earlier one
	other := createTestCert(t, serverTemplate("other.example.com"), nil)
	callback(false, &interfaces.VerifyContext{ErrorCode: VerifyCertHasExpired, CurrentCert: other.cert})
	failure, _ = store.Failure()
	assert.Equal(t, VerifyCertHasExpired, failure.ErrorCode)
	assert.Same(t, other.cert, failure.Certificate)
}

// Test NewRecordingCallback - internal failures never change the outcome
func TestRecordingCallback_Recovers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	callback := NewRecordingCallback(nil, logger)

	assert.NotPanics(t, func() {
		assert.False(t, callback(false, &interfaces.VerifyContext{ErrorCode: VerifyUnspecified}))
	})
	assert.True(t, callback(true, nil))
	assert.False(t, callback(false, nil))
}

func TestVerifyChain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Now()

	ca := createTestCert(t, caTemplate("Untrusted Root"), nil)
	signedLeaf := createTestCert(t, serverTemplate("scc.example.com"), ca)
	selfSigned := createTestCert(t, serverTemplate("scc.example.com"), nil)

	expiredTmpl := serverTemplate("scc.example.com")
	expiredTmpl.NotBefore = now.Add(-48 * time.Hour)
	expiredTmpl.NotAfter = now.Add(-24 * time.Hour)
	expiredLeaf := createTestCert(t, expiredTmpl, ca)

	futureTmpl := serverTemplate("scc.example.com")
	futureTmpl.NotBefore = now.Add(24 * time.Hour)
	futureTmpl.NotAfter = now.Add(48 * time.Hour)
	futureLeaf := createTestCert(t, futureTmpl, ca)

	testCases := []struct {
		name       string
		chain      []*testCert
		roots      *x509.CertPool
		serverName string
		wantErr    bool
		wantCode   int
		wantDepth  int
		failed     *testCert
	}{
		{
			name:       "trusted chain",
			chain:      []*testCert{signedLeaf, ca},
			roots:      poolOf(ca),
			serverName: "scc.example.com",
		},
		{
			name:       "self-signed leaf",
			chain:      []*testCert{selfSigned},
			roots:      x509.NewCertPool(),
			serverName: "scc.example.com",
			wantErr:    true,
			wantCode:   VerifyDepthZeroSelfSigned,
			wantDepth:  0,
			failed:     selfSigned,
		},
		{
			name:       "self-signed root in chain",
			chain:      []*testCert{signedLeaf, ca},
			roots:      x509.NewCertPool(),
			serverName: "scc.example.com",
			wantErr:    true,
			wantCode:   VerifySelfSignedInChain,
			wantDepth:  1,
			failed:     ca,
		},
		{
			name:       "missing issuer",
			chain:      []*testCert{signedLeaf},
			roots:      x509.NewCertPool(),
			serverName: "scc.example.com",
			wantErr:    true,
			wantCode:   VerifyUnableToGetIssuerLocally,
			wantDepth:  0,
			failed:     signedLeaf,
		},
		{
			name:       "expired leaf",
			chain:      []*testCert{expiredLeaf, ca},
			roots:      poolOf(ca),
			serverName: "scc.example.com",
			wantErr:    true,
			wantCode:   VerifyCertHasExpired,
			wantDepth:  0,
			failed:     expiredLeaf,
		},
		{
			name:       "not yet valid leaf",
			chain:      []*testCert{futureLeaf, ca},
			roots:      poolOf(ca),
			serverName: "scc.example.com",
			wantErr:    true,
			wantCode:   VerifyCertNotYetValid,
			wantDepth:  0,
			failed:     futureLeaf,
		},
		{
			name:       "hostname mismatch",
			chain:      []*testCert{signedLeaf, ca},
			roots:      poolOf(ca),
			serverName: "smt.example.org",
			wantErr:    true,
			wantCode:   VerifyHostnameMismatch,
			wantDepth:  0,
			failed:     signedLeaf,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var reports []reportedCert
			chain := make([]*x509.Certificate, len(tc.chain))
			for i, c := range tc.chain {
				chain[i] = c.cert
			}

			err := VerifyChain(reportingParams(&reports), chain, tc.serverName, tc.roots, now, logger)
			require.NotEmpty(t, reports)

			if !tc.wantErr {
				require.NoError(t, err)
				require.Len(t, reports, len(chain))
				for i, r := range reports {
					assert.True(t, r.accepted)
					// root first, leaf last
					assert.Equal(t, len(chain)-1-i, r.depth)
				}
				return
			}

			require.Error(t, err)
			last := reports[len(reports)-1]
			assert.False(t, last.accepted)
			assert.Equal(t, tc.wantCode, last.code)
			assert.Equal(t, tc.wantDepth, last.depth)
			assert.Same(t, tc.failed.cert, last.cert)
		})
	}
}

// Test VerifyChain - one-time fingerprint override
func TestVerifyChain_TrustOverride(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	selfSigned := createTestCert(t, serverTemplate("scc.example.com"), nil)
	chain := []*x509.Certificate{selfSigned.cert}
	fp := NewCertificate(selfSigned.cert).SHA256Fingerprint()

	store := NewTrustStore()
	params := interfaces.ConnectParams{
		VerifyCallback: NewRecordingCallback(store, logger),
		TrustOverride:  &interfaces.Fingerprint{Kind: "sha256", Value: fp},
	}

	err := VerifyChain(params, chain, "scc.example.com", x509.NewCertPool(), time.Now(), logger)
	require.NoError(t, err)

	// the callback still observed the rejection
	failure, ok := store.Failure()
	require.True(t, ok)
	assert.Equal(t, VerifyDepthZeroSelfSigned, failure.ErrorCode)

	params.TrustOverride = &interfaces.Fingerprint{Kind: interfaces.FingerprintSHA1, Value: fp}
	err = VerifyChain(params, chain, "scc.example.com", x509.NewCertPool(), time.Now(), logger)
	assert.Error(t, err)
}

// Test VerifyChain - override confirmed for the recorded issuer of a chain
func TestVerifyChain_TrustOverrideChain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ca := createTestCert(t, caTemplate("Private Root"), nil)
	leaf := createTestCert(t, serverTemplate("scc.example.com"), ca)
	chain := []*x509.Certificate{leaf.cert, ca.cert}

	store := NewTrustStore()
	params := interfaces.ConnectParams{VerifyCallback: NewRecordingCallback(store, logger)}

	err := VerifyChain(params, chain, "scc.example.com", x509.NewCertPool(), time.Now(), logger)
	require.Error(t, err)
	failure, ok := store.Failure()
	require.True(t, ok)
	assert.Equal(t, VerifySelfSignedInChain, failure.ErrorCode)
	require.Same(t, ca.cert, failure.Certificate)

	var accepted *x509.Certificate
	params.TrustOverride = &interfaces.Fingerprint{
		Kind:  interfaces.FingerprintSHA256,
		Value: NewCertificate(failure.Certificate).SHA256Fingerprint(),
	}
	params.TrustAccepted = func(cert *x509.Certificate) { accepted = cert }

	err = VerifyChain(params, chain, "scc.example.com", x509.NewCertPool(), time.Now(), logger)
	require.NoError(t, err)
	assert.Same(t, ca.cert, accepted)

	t.Run("hostname still checked", func(t *testing.T) {
		err := VerifyChain(params, chain, "smt.example.org", x509.NewCertPool(), time.Now(), logger)
		assert.Error(t, err)
	})

	t.Run("unrelated fingerprint", func(t *testing.T) {
		other := createTestCert(t, caTemplate("Other Root"), nil)
		params := params
		params.TrustOverride = &interfaces.Fingerprint{
			Kind:  interfaces.FingerprintSHA256,
			Value: NewCertificate(other.cert).SHA256Fingerprint(),
		}
		err := VerifyChain(params, chain, "scc.example.com", x509.NewCertPool(), time.Now(), logger)
		assert.Error(t, err)
	})
}

// Test VerifyChain - an expired root from the pool is reported on the presented chain
func TestVerifyChain_ExpiredPoolRoot(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Now()

	rootTmpl := caTemplate("Expired Root")
	rootTmpl.NotBefore = now.Add(-48 * time.Hour)
	rootTmpl.NotAfter = now.Add(-24 * time.Hour)
	root := createTestCert(t, rootTmpl, nil)
	leaf := createTestCert(t, serverTemplate("scc.example.com"), root)

	var reports []reportedCert
	store := NewTrustStore()
	recording := NewRecordingCallback(store, logger)
	params := reportingParams(&reports)
	report := params.VerifyCallback
	params.VerifyCallback = func(accepted bool, vctx *interfaces.VerifyContext) bool {
		report(accepted, vctx)
		return recording(accepted, vctx)
	}

	err := VerifyChain(params, []*x509.Certificate{leaf.cert}, "scc.example.com", poolOf(root), now, logger)
	require.Error(t, err)

	require.NotEmpty(t, reports)
	last := reports[len(reports)-1]
	assert.False(t, last.accepted)
	assert.Same(t, leaf.cert, last.cert)

	failure, ok := store.Failure()
	require.True(t, ok)
	assert.NotEqual(t, VerifyOK, failure.ErrorCode)

	var tfe *interfaces.TrustFailureError
	require.ErrorAs(t, TrustFailureError(store, err), &tfe)
	assert.Same(t, leaf.cert, tfe.Failure.Certificate)
}

// Test TLSConfig - handshake against a test server
func TestTLSConfig_Handshake(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	get := func(params interfaces.ConnectParams, roots *x509.CertPool) error {
		client := &http.Client{Transport: &http.Transport{
			TLSClientConfig: TLSConfig(params, "127.0.0.1", roots, logger),
		}}
		resp, err := client.Get(srv.URL)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}

	store := NewTrustStore()
	params := interfaces.ConnectParams{VerifyCallback: NewRecordingCallback(store, logger)}

	err := get(params, x509.NewCertPool())
	require.Error(t, err)
	failure, ok := store.Failure()
	require.True(t, ok)
	assert.Equal(t, VerifyDepthZeroSelfSigned, failure.ErrorCode)
	assert.True(t, srv.Certificate().Equal(failure.Certificate))

	wrapped := TrustFailureError(store, err)
	assert.True(t, errors.Is(wrapped, interfaces.ErrTransport))
	var tfe *interfaces.TrustFailureError
	require.True(t, errors.As(wrapped, &tfe))
	assert.Equal(t, VerifyDepthZeroSelfSigned, tfe.Failure.ErrorCode)

	// trusted root
	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	require.NoError(t, get(interfaces.ConnectParams{}, roots))

	// insecure mode skips verification and the callback
	insecureStore := NewTrustStore()
	insecure := interfaces.ConnectParams{Insecure: true, VerifyCallback: NewRecordingCallback(insecureStore, logger)}
	require.NoError(t, get(insecure, x509.NewCertPool()))
	_, ok = insecureStore.Failure()
	assert.False(t, ok)
}

func TestTrustFailureError_NoFailure(t *testing.T) {
	err := errors.New("dial tcp: connection refused")
	assert.Same(t, err, TrustFailureError(NewTrustStore(), err))
	assert.Same(t, err, TrustFailureError(nil, err))
}

func TestDescribeFailure(t *testing.T) {
	tc := createTestCert(t, serverTemplate("scc.example.com"), nil)
	msg := DescribeFailure(interfaces.TrustFailure{
		ErrorCode:    VerifyDepthZeroSelfSigned,
		ErrorMessage: VerifyMessage(VerifyDepthZeroSelfSigned),
		Certificate:  tc.cert,
	})
	assert.Contains(t, msg, "self signed certificate (code 18)")
	assert.Contains(t, msg, "scc.example.com")
	assert.Equal(t, "unspecified certificate verification error", VerifyMessage(4242))
}
