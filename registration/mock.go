package registration

import (
	"context"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockEntitlementService mocks the EntitlementService interface
type MockEntitlementService struct {
	mock.Mock
}

// AnnounceSystem mocks the AnnounceSystem method
func (m *MockEntitlementService) AnnounceSystem(ctx context.Context, params interfaces.ConnectParams, distroTarget string) (string, string, error) {
	args := m.Called(ctx, params, distroTarget)
	return args.String(0), args.String(1), args.Error(2)
}

// ActivateProduct mocks the ActivateProduct method
func (m *MockEntitlementService) ActivateProduct(ctx context.Context, params interfaces.ConnectParams, product interfaces.RemoteProductIdentity, email string) (*interfaces.ServiceDescriptor, error) {
	args := m.Called(ctx, params, product, email)
	service, _ := args.Get(0).(*interfaces.ServiceDescriptor)
	return service, args.Error(1)
}

// UpgradeProduct mocks the UpgradeProduct method
func (m *MockEntitlementService) UpgradeProduct(ctx context.Context, params interfaces.ConnectParams, product interfaces.RemoteProductIdentity) (*interfaces.ServiceDescriptor, error) {
	args := m.Called(ctx, params, product)
	service, _ := args.Get(0).(*interfaces.ServiceDescriptor)
	return service, args.Error(1)
}

// UpdateSystem mocks the UpdateSystem method
func (m *MockEntitlementService) UpdateSystem(ctx context.Context, params interfaces.ConnectParams, distroTarget string) (*interfaces.UpdateResult, error) {
	args := m.Called(ctx, params, distroTarget)
	result, _ := args.Get(0).(*interfaces.UpdateResult)
	return result, args.Error(1)
}

// ShowProduct mocks the ShowProduct method
func (m *MockEntitlementService) ShowProduct(ctx context.Context, params interfaces.ConnectParams, product interfaces.RemoteProductIdentity) (*interfaces.AddonCatalogEntry, error) {
	args := m.Called(ctx, params, product)
	entry, _ := args.Get(0).(*interfaces.AddonCatalogEntry)
	return entry, args.Error(1)
}

// Status mocks the Status method
func (m *MockEntitlementService) Status(ctx context.Context, params interfaces.ConnectParams) ([]interfaces.ActivatedProduct, error) {
	args := m.Called(ctx, params)
	products, _ := args.Get(0).([]interfaces.ActivatedProduct)
	return products, args.Error(1)
}

// MockPackageStore mocks the PackageStore interface
type MockPackageStore struct {
	mock.Mock
}

// LocateBaseProduct mocks the LocateBaseProduct method
func (m *MockPackageStore) LocateBaseProduct(ctx context.Context) (interfaces.ProductDescriptor, error) {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.ProductDescriptor), args.Error(1)
}

// AddOrRefreshService mocks the AddOrRefreshService method
func (m *MockPackageStore) AddOrRefreshService(ctx context.Context, service interfaces.ServiceDescriptor, creds interfaces.Credentials) error {
	args := m.Called(ctx, service, creds)
	return args.Error(0)
}

// ApplyRenames mocks the ApplyRenames method
func (m *MockPackageStore) ApplyRenames(ctx context.Context, renames interfaces.RenameMap) error {
	args := m.Called(ctx, renames)
	return args.Error(0)
}

// EnsureWritableConfigDir mocks the EnsureWritableConfigDir method
func (m *MockPackageStore) EnsureWritableConfigDir(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCredentialsStore mocks the CredentialsStore interface
type MockCredentialsStore struct {
	mock.Mock
}

// Read mocks the Read method
func (m *MockCredentialsStore) Read(ctx context.Context, path string) (interfaces.Credentials, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(interfaces.Credentials), args.Error(1)
}

// Write mocks the Write method
func (m *MockCredentialsStore) Write(ctx context.Context, creds interfaces.Credentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

// Exists mocks the Exists method
func (m *MockCredentialsStore) Exists(ctx context.Context, path string) bool {
	args := m.Called(ctx, path)
	return args.Bool(0)
}

// LocationURI mocks the LocationURI method
func (m *MockCredentialsStore) LocationURI() string {
	args := m.Called()
	return args.String(0)
}
