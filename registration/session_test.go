package registration

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	baseProduct = interfaces.ProductDescriptor{Name: "SLES", Version: "12", Arch: "x86_64", ReleaseType: "DVD"}
	globalCreds = interfaces.Credentials{Login: "SCC_login", Password: "secret", Path: interfaces.GlobalCredentialsPath}
)

type mocks struct {
	service  *MockEntitlementService
	packages *MockPackageStore
	creds    *MockCredentialsStore
}

func newMockSession(t *testing.T, cfg Config) (*Session, *mocks) {
	t.Helper()
	m := &mocks{
		service:  &MockEntitlementService{},
		packages: &MockPackageStore{},
		creds:    &MockCredentialsStore{},
	}
	session := NewSession(cfg, Deps{
		Service:     m.service,
		Packages:    m.packages,
		Credentials: m.creds,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return session, m
}

func TestSession_Register(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	m.service.On("AnnounceSystem", ctx, mock.MatchedBy(func(p interfaces.ConnectParams) bool {
		return p.Token == "REGCODE" && p.Email == "admin@example.com"
	}), "sle-12-x86_64").Return("SCC_login", "secret", nil)
	m.packages.On("EnsureWritableConfigDir", ctx).Return(nil)
	m.creds.On("Write", ctx, globalCreds).Return(nil)

	creds, err := session.Register(ctx, "admin@example.com", "REGCODE", "sle-12-x86_64")
	require.NoError(t, err)
	assert.Equal(t, globalCreds, creds)

	m.service.AssertExpectations(t)
	m.packages.AssertExpectations(t)
	m.creds.AssertExpectations(t)
}

func TestSession_Register_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected registration code", func(t *testing.T) {
		session, m := newMockSession(t, Config{})
		m.service.On("AnnounceSystem", ctx, mock.Anything, "").
			Return("", "", &interfaces.APIError{StatusCode: 401, Message: "Invalid registration code"})

		_, err := session.Register(ctx, "", "WRONG", "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, interfaces.ErrAnnouncement))
		assert.True(t, errors.Is(err, interfaces.ErrServiceAuth))
		m.packages.AssertNotCalled(t, "EnsureWritableConfigDir", mock.Anything)
		m.creds.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
	})

	t.Run("configuration not writable", func(t *testing.T) {
		session, m := newMockSession(t, Config{})
		m.service.On("AnnounceSystem", ctx, mock.Anything, "").Return("SCC_login", "secret", nil)
		m.packages.On("EnsureWritableConfigDir", ctx).Return(errors.New("read-only file system"))

		_, err := session.Register(ctx, "", "REGCODE", "")
		assert.True(t, errors.Is(err, interfaces.ErrAnnouncement))
		m.creds.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
	})
}

func TestSession_RegisterProduct(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	addon := interfaces.ProductDescriptor{Name: "sle-ha", Version: "12", Arch: "x86_64", RegCode: "ADDON-CODE"}
	service := &interfaces.ServiceDescriptor{ID: 7, Name: "sle-ha_12_x86_64", URL: "https://scc.example.com/access/services/7?credentials=sle-ha_12_x86_64", Product: addon.Identity()}

	m.service.On("ActivateProduct", ctx, mock.MatchedBy(func(p interfaces.ConnectParams) bool {
		return p.Token == "ADDON-CODE"
	}), addon.Identity(), "admin@example.com").Return(service, nil)
	m.creds.On("Read", ctx, interfaces.GlobalCredentialsPath).Return(globalCreds, nil)
	m.packages.On("AddOrRefreshService", ctx, *service, globalCreds).Return(nil)

	got, err := session.RegisterProduct(ctx, interfaces.NewDescriptorRef(addon), "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, service, got)

	m.service.AssertExpectations(t)
	m.packages.AssertExpectations(t)
}

func TestSession_RegisterProduct_FailureLeavesStoresAlone(t *testing.T) {
	ctx := context.Background()
	product := interfaces.NewIdentityRef(baseProduct.Identity())

	for name, remoteErr := range map[string]error{
		"service auth": &interfaces.APIError{StatusCode: 401},
		"transport":    errors.Join(interfaces.ErrTransport, errors.New("connection refused")),
	} {
		t.Run(name, func(t *testing.T) {
			session, m := newMockSession(t, Config{})
			m.service.On("ActivateProduct", ctx, mock.Anything, baseProduct.Identity(), "").Return(nil, remoteErr)

			_, err := session.RegisterProduct(ctx, product, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, interfaces.ErrActivation))
			assert.True(t, errors.Is(err, remoteErr))
			assert.True(t, errors.Is(err, interfaces.ErrServiceAuth) || errors.Is(err, interfaces.ErrTransport))

			m.packages.AssertNotCalled(t, "AddOrRefreshService", mock.Anything, mock.Anything, mock.Anything)
			m.creds.AssertNotCalled(t, "Read", mock.Anything, mock.Anything)
			m.creds.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
			assert.Empty(t, session.RegisteredAddons())
		})
	}
}

func TestSession_RegisterProduct_NotRegistered(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	service := &interfaces.ServiceDescriptor{Name: "SLES_12_x86_64", URL: "https://scc.example.com/access/services/1"}
	m.service.On("ActivateProduct", ctx, mock.Anything, baseProduct.Identity(), "").Return(service, nil)
	m.creds.On("Read", ctx, interfaces.GlobalCredentialsPath).Return(interfaces.Credentials{}, interfaces.ErrCredentialsNotFound)

	_, err := session.RegisterProduct(ctx, interfaces.NewDescriptorRef(baseProduct), "")
	assert.True(t, errors.Is(err, interfaces.ErrNotRegistered))
	m.packages.AssertNotCalled(t, "AddOrRefreshService", mock.Anything, mock.Anything, mock.Anything)
}

func TestSession_RegisterProduct_ZeroRef(t *testing.T) {
	session, m := newMockSession(t, Config{})

	_, err := session.RegisterProduct(context.Background(), interfaces.ProductRef{}, "")
	assert.True(t, errors.Is(err, interfaces.ErrActivation))
	m.service.AssertNotCalled(t, "ActivateProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSession_UpgradeProduct(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	target := interfaces.RemoteProductIdentity{Identifier: "SLES", Version: "12.1", Arch: "x86_64"}
	service := &interfaces.ServiceDescriptor{ID: 9, Name: "SLES_12.1_x86_64", URL: "https://scc.example.com/access/services/9", Product: target}
	m.service.On("UpgradeProduct", ctx, mock.MatchedBy(func(p interfaces.ConnectParams) bool {
		return p.Token == ""
	}), target).Return(service, nil)
	m.creds.On("Read", ctx, interfaces.GlobalCredentialsPath).Return(globalCreds, nil)
	m.packages.On("AddOrRefreshService", ctx, *service, globalCreds).
		Return(&interfaces.ServiceError{Stage: interfaces.StageRefresh, Service: service.Name, Err: interfaces.ErrFetch})

	got, err := session.UpgradeProduct(ctx, interfaces.NewIdentityRef(target))
	assert.Equal(t, service, got)
	var serviceErr *interfaces.ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, interfaces.StageRefresh, serviceErr.Stage)
	assert.False(t, errors.Is(err, interfaces.ErrActivation))
}

func TestSession_GetAddonList(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	catalog := &interfaces.AddonCatalogEntry{
		Identifier: "SLES", Version: "12", Arch: "x86_64",
		Extensions: []interfaces.AddonCatalogEntry{
			{Identifier: "SLES", Version: "12", Arch: "x86_64"},
			{Identifier: "NEW", FormerIdentifier: "OLD", Version: "12", Arch: "x86_64"},
			{Identifier: "sle-sdk", Version: "12", Arch: "x86_64", Free: true},
		},
	}
	m.packages.On("LocateBaseProduct", ctx).Return(baseProduct, nil)
	m.service.On("ShowProduct", ctx, mock.Anything, baseProduct.Identity()).Return(catalog, nil)
	m.packages.On("ApplyRenames", ctx, interfaces.RenameMap{"OLD": "NEW"}).Return(nil)

	addons, err := session.GetAddonList(ctx)
	require.NoError(t, err)
	require.Len(t, addons, 2)
	assert.Equal(t, "NEW", addons[0].Identifier)
	assert.Equal(t, "sle-sdk", addons[1].Identifier)
	m.packages.AssertExpectations(t)
}

func TestSession_GetAddonList_NoBaseProduct(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	m.packages.On("LocateBaseProduct", ctx).Return(interfaces.ProductDescriptor{}, errors.New("no base product installed"))

	_, err := session.GetAddonList(ctx)
	require.Error(t, err)
	m.service.AssertNotCalled(t, "ShowProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestSession_TracksRegisteredAddons(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	sdk := interfaces.AddonCatalogEntry{Identifier: "sle-sdk", Version: "12", Arch: "x86_64", Free: true}
	ha := interfaces.AddonCatalogEntry{Identifier: "sle-ha", Version: "12", Arch: "x86_64"}
	m.packages.On("LocateBaseProduct", ctx).Return(baseProduct, nil)
	m.service.On("ShowProduct", ctx, mock.Anything, baseProduct.Identity()).
		Return(&interfaces.AddonCatalogEntry{Identifier: "SLES", Extensions: []interfaces.AddonCatalogEntry{sdk, ha}}, nil)
	m.packages.On("ApplyRenames", ctx, interfaces.RenameMap{}).Return(nil)
	m.service.On("ActivateProduct", ctx, mock.Anything, sdk.Identity(), "").
		Return(&interfaces.ServiceDescriptor{Name: "sle-sdk_12_x86_64", URL: "https://scc.example.com/access/services/3"}, nil)
	m.creds.On("Read", ctx, interfaces.GlobalCredentialsPath).Return(globalCreds, nil)
	m.packages.On("AddOrRefreshService", ctx, mock.Anything, globalCreds).Return(nil)

	_, err := session.GetAddonList(ctx)
	require.NoError(t, err)

	_, err = session.RegisterProduct(ctx, interfaces.NewIdentityRef(sdk.Identity()), "")
	require.NoError(t, err)

	registered := session.RegisteredAddons()
	require.Len(t, registered, 1)
	assert.Equal(t, "sle-sdk", registered[0].Identifier)

	// a refreshed catalog keeps the mark
	_, err = session.GetAddonList(ctx)
	require.NoError(t, err)
	assert.Len(t, session.RegisteredAddons(), 1)
}

func TestSession_UpdateSystemAndStatus(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	m.service.On("UpdateSystem", ctx, mock.Anything, "sle-12-x86_64").
		Return(&interfaces.UpdateResult{Login: "SCC_login", DistroTarget: "sle-12-x86_64"}, nil)
	m.service.On("Status", ctx, mock.Anything).
		Return([]interfaces.ActivatedProduct{{Identifier: "SLES", Version: "12", Arch: "x86_64", Status: "ACTIVE"}}, nil)

	result, err := session.UpdateSystem(ctx, "sle-12-x86_64")
	require.NoError(t, err)
	assert.Equal(t, "sle-12-x86_64", result.DistroTarget)

	products, err := session.ActivatedProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "ACTIVE", products[0].Status)
}

func TestSession_IsRegistered(t *testing.T) {
	session, m := newMockSession(t, Config{})

	m.creds.On("Exists", mock.Anything, interfaces.GlobalCredentialsPath).Return(false).Once()
	m.creds.On("Exists", mock.Anything, interfaces.GlobalCredentialsPath).Return(true).Once()

	assert.False(t, session.IsRegistered())
	assert.True(t, session.IsRegistered())
	m.service.AssertNotCalled(t, "Status", mock.Anything, mock.Anything)
}

func TestSession_ConnectParams(t *testing.T) {
	cmdline := filepath.Join(t.TempDir(), "cmdline")
	require.NoError(t, os.WriteFile(cmdline, []byte("root=/dev/sda2 reg_ssl_verify=0 quiet\n"), 0644))

	session, m := newMockSession(t, Config{
		URL:         "https://smt.example.com",
		Language:    "de_DE.UTF-8",
		Debug:       true,
		CmdlinePath: cmdline,
	})
	ctx := context.Background()

	var seen interfaces.ConnectParams
	m.service.On("Status", ctx, mock.Anything).Run(func(args mock.Arguments) {
		seen = args.Get(1).(interfaces.ConnectParams)
	}).Return([]interfaces.ActivatedProduct{}, nil)

	_, err := session.ActivatedProducts(ctx)
	require.NoError(t, err)

	assert.Equal(t, "https://smt.example.com", seen.URL)
	assert.Equal(t, "de-DE", seen.Language)
	assert.True(t, seen.Debug)
	assert.False(t, seen.Verbose)
	assert.True(t, seen.Insecure)
	assert.NotNil(t, seen.VerifyCallback)
	assert.Nil(t, seen.TrustOverride)
	assert.Empty(t, seen.Token)
}

func TestSession_TrustOnceIsConsumed(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	var overrides []*interfaces.Fingerprint
	m.service.On("Status", ctx, mock.Anything).Run(func(args mock.Arguments) {
		overrides = append(overrides, args.Get(1).(interfaces.ConnectParams).TrustOverride)
	}).Return([]interfaces.ActivatedProduct{}, nil)

	session.TrustOnce("sha-256", "AA:BB")
	_, err := session.ActivatedProducts(ctx)
	require.NoError(t, err)
	_, err = session.ActivatedProducts(ctx)
	require.NoError(t, err)

	require.Len(t, overrides, 2)
	require.NotNil(t, overrides[0])
	assert.Equal(t, interfaces.FingerprintSHA256, overrides[0].Kind)
	assert.Equal(t, "AA:BB", overrides[0].Value)
	assert.Nil(t, overrides[1])
}

type recordingAnchors struct {
	certs []*x509.Certificate
}

func (a *recordingAnchors) Trust(cert *x509.Certificate) {
	a.certs = append(a.certs, cert)
}

func TestSession_AcceptedCertificateIsAnchored(t *testing.T) {
	ctx := context.Background()
	accepted := &x509.Certificate{Raw: []byte("accepted")}
	acceptOnCall := func(args mock.Arguments) {
		if p := args.Get(1).(interfaces.ConnectParams); p.TrustOverride != nil {
			p.TrustAccepted(accepted)
		}
	}

	anchors := &recordingAnchors{}
	m := &mocks{service: &MockEntitlementService{}}
	session := NewSession(Config{}, Deps{
		Service: m.service,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Anchors: anchors,
	})

	m.service.On("Status", ctx, mock.Anything).Run(acceptOnCall).Return(nil, errors.New("connection reset")).Once()
	session.TrustOnce(interfaces.FingerprintSHA256, "AA")
	_, err := session.ActivatedProducts(ctx)
	require.Error(t, err)
	assert.Empty(t, anchors.certs)

	m.service.On("Status", ctx, mock.Anything).Run(acceptOnCall).Return([]interfaces.ActivatedProduct{}, nil)
	_, err = session.ActivatedProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, anchors.certs)

	session.TrustOnce(interfaces.FingerprintSHA256, "AA")
	_, err = session.ActivatedProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*x509.Certificate{accepted}, anchors.certs)
}

func TestSession_TrustFailureIsPerCall(t *testing.T) {
	session, m := newMockSession(t, Config{})
	ctx := context.Background()

	tlsErr := errors.Join(interfaces.ErrTransport, errors.New("x509: certificate signed by unknown authority"))
	m.service.On("Status", ctx, mock.Anything).Run(func(args mock.Arguments) {
		// what the TLS layer reports for a self-signed server certificate
		params := args.Get(1).(interfaces.ConnectParams)
		params.VerifyCallback(false, &interfaces.VerifyContext{ErrorCode: 18, ErrorMessage: "self signed certificate"})
	}).Return(nil, tlsErr).Once()
	m.service.On("Status", ctx, mock.Anything).Return([]interfaces.ActivatedProduct{}, nil).Once()

	_, err := session.ActivatedProducts(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrTransport))
	var trustErr *interfaces.TrustFailureError
	require.True(t, errors.As(err, &trustErr))
	assert.Equal(t, 18, trustErr.Failure.ErrorCode)

	failure, ok := session.LastTrustFailure()
	require.True(t, ok)
	assert.Equal(t, "self signed certificate", failure.ErrorMessage)

	_, err = session.ActivatedProducts(ctx)
	require.NoError(t, err)
	_, ok = session.LastTrustFailure()
	assert.False(t, ok)
}
