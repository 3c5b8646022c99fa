package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/registration-client/interfaces"
)

// Config holds the session settings used to build the connect params of
// every remote call.
type Config struct {
	// URL of the entitlement service; empty means the client default.
	URL string

	// Language is a POSIX locale such as de_DE.UTF-8.
	Language string

	Debug    bool
	Verbose  bool
	Insecure bool

	// CmdlinePath is checked for reg_ssl_verify=0; empty disables the check.
	CmdlinePath string
}

// Deps are the collaborators of a session.
type Deps struct {
	Service     interfaces.EntitlementService
	Packages    interfaces.PackageStore
	Credentials interfaces.CredentialsStore
	Log         *slog.Logger

	// Anchors, if set, receives server certificates accepted through
	// TrustOnce, so that later downloads from the same server verify.
	Anchors interfaces.TrustAnchors
}

// Session drives system and product registration against the entitlement
// service and provisions the resulting repository services locally.
//
// Each remote call gets its own trust context; the failure recorded during the
// most recent call is available from LastTrustFailure.
type Session struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu            sync.Mutex
	trustOverride *interfaces.Fingerprint
	lastFailure   *interfaces.TrustFailure

	addons addonTracker
}

// NewSession creates a session.
func NewSession(cfg Config, deps Deps) *Session {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:  cfg,
		deps: deps,
		log:  log,
	}
}

// Register announces the system with regCode and stores the returned
// credentials as the global credentials.
func (s *Session) Register(ctx context.Context, email, regCode, distroTarget string) (interfaces.Credentials, error) {
	c := s.newCall()
	c.params.Token = regCode
	c.params.Email = email

	s.log.Info("Announcing system", "target", distroTarget)
	login, password, err := s.deps.Service.AnnounceSystem(ctx, c.params, distroTarget)
	if err = s.finish(c, err); err != nil {
		return interfaces.Credentials{}, fmt.Errorf("%w: %w", interfaces.ErrAnnouncement, err)
	}
	s.log.Info("Global announce succeeded", "login", login)

	if err := s.deps.Packages.EnsureWritableConfigDir(ctx); err != nil {
		return interfaces.Credentials{}, fmt.Errorf("%w: %w", interfaces.ErrAnnouncement, err)
	}

	creds := interfaces.Credentials{
		Login:    login,
		Password: password,
		Path:     interfaces.GlobalCredentialsPath,
	}
	if err := s.deps.Credentials.Write(ctx, creds); err != nil {
		return interfaces.Credentials{}, fmt.Errorf("%w: could not write global credentials: %w", interfaces.ErrAnnouncement, err)
	}

	return creds, nil
}

// RegisterProduct activates product and adds the returned service to the
// package store. A registration code carried by the product replaces the
// session token for this call.
func (s *Session) RegisterProduct(ctx context.Context, product interfaces.ProductRef, email string) (*interfaces.ServiceDescriptor, error) {
	return s.serviceForProduct(ctx, product, func(c *call, identity interfaces.RemoteProductIdentity) (*interfaces.ServiceDescriptor, error) {
		s.log.Info("Registering product", "product", product.String())
		return s.deps.Service.ActivateProduct(ctx, c.params, identity, email)
	})
}

// UpgradeProduct upgrades the system to product and updates the local
// service accordingly.
func (s *Session) UpgradeProduct(ctx context.Context, product interfaces.ProductRef) (*interfaces.ServiceDescriptor, error) {
	return s.serviceForProduct(ctx, product, func(c *call, identity interfaces.RemoteProductIdentity) (*interfaces.ServiceDescriptor, error) {
		s.log.Info("Upgrading product", "product", product.String())
		return s.deps.Service.UpgradeProduct(ctx, c.params, identity)
	})
}

func (s *Session) serviceForProduct(ctx context.Context, product interfaces.ProductRef, remote func(*call, interfaces.RemoteProductIdentity) (*interfaces.ServiceDescriptor, error)) (*interfaces.ServiceDescriptor, error) {
	if product.IsZero() {
		return nil, fmt.Errorf("%w: no product given", interfaces.ErrActivation)
	}
	identity := product.Identity()

	c := s.newCall()
	if regCode := product.RegCode(); regCode != "" {
		c.params.Token = regCode
	}

	service, err := remote(c, identity)
	if err = s.finish(c, err); err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrActivation, err)
	}
	if service == nil {
		return nil, fmt.Errorf("%w: %w: no service returned for %s", interfaces.ErrActivation, interfaces.ErrRemote, identity)
	}

	if !s.addons.markRegistered(identity) {
		s.log.Debug("Activated product is not a tracked addon", "product", identity.String())
	}

	creds, err := s.deps.Credentials.Read(ctx, interfaces.GlobalCredentialsPath)
	if errors.Is(err, interfaces.ErrCredentialsNotFound) {
		return nil, interfaces.ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("could not read global credentials: %w", err)
	}

	if err := s.deps.Packages.AddOrRefreshService(ctx, *service, creds); err != nil {
		return service, err
	}

	s.log.Info("Product service added", "service", service.Name, "product", identity.String())
	return service, nil
}

// UpdateSystem changes the target distribution of the registered system.
func (s *Session) UpdateSystem(ctx context.Context, targetDistro string) (*interfaces.UpdateResult, error) {
	c := s.newCall()
	result, err := s.deps.Service.UpdateSystem(ctx, c.params, targetDistro)
	if err = s.finish(c, err); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAddonList returns the addons available for the installed base product,
// with the base product itself removed. Renames found in the catalog are
// published to the package store.
func (s *Session) GetAddonList(ctx context.Context) ([]interfaces.AddonCatalogEntry, error) {
	base, err := s.deps.Packages.LocateBaseProduct(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not find the base product: %w", err)
	}
	identity := base.Identity()

	c := s.newCall()
	entry, err := s.deps.Service.ShowProduct(ctx, c.params, identity)
	if err = s.finish(c, err); err != nil {
		return nil, err
	}

	var catalog []interfaces.AddonCatalogEntry
	if entry != nil {
		catalog = entry.Extensions
	}

	renames := CollectRenames(catalog)
	s.log.Info("Addon renames", "renames", renames)
	if err := s.deps.Packages.ApplyRenames(ctx, renames); err != nil {
		return nil, err
	}

	addons := make([]interfaces.AddonCatalogEntry, 0, len(catalog))
	for _, addon := range catalog {
		if addon.Identifier == identity.Identifier {
			continue
		}
		addons = append(addons, addon)
	}

	s.addons.replace(addons)
	return addons, nil
}

// ActivatedProducts returns the products activated for the system.
func (s *Session) ActivatedProducts(ctx context.Context) ([]interfaces.ActivatedProduct, error) {
	c := s.newCall()
	products, err := s.deps.Service.Status(ctx, c.params)
	if err = s.finish(c, err); err != nil {
		return nil, err
	}
	return products, nil
}

// IsRegistered reports whether the global credentials exist. It does not
// contact the entitlement service.
func (s *Session) IsRegistered() bool {
	return s.deps.Credentials.Exists(context.Background(), interfaces.GlobalCredentialsPath)
}

// TrustOnce accepts a server certificate with the given fingerprint on the
// next remote call only.
func (s *Session) TrustOnce(kind interfaces.FingerprintKind, fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trustOverride = &interfaces.Fingerprint{
		Kind:  interfaces.ParseFingerprintKind(string(kind)),
		Value: fingerprint,
	}
}

// LastTrustFailure returns the certificate failure of the most recent remote call.
func (s *Session) LastTrustFailure() (*interfaces.TrustFailure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFailure == nil {
		return nil, false
	}
	f := *s.lastFailure
	return &f, true
}

// RegisteredAddons returns the tracked addons registered in this session.
func (s *Session) RegisteredAddons() []interfaces.AddonCatalogEntry {
	return s.addons.registered()
}
