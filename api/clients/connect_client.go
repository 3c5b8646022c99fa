package clients

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/ruteri/registration-client/api"
	"github.com/ruteri/registration-client/common"
	"github.com/ruteri/registration-client/cryptoutils"
	"github.com/ruteri/registration-client/interfaces"
)

// ConnectClient implements interfaces.EntitlementService over the
// entitlement service's JSON API. Every call builds its own transport from
// the connect params, so trust decisions never leak between calls.
type ConnectClient struct {
	creds interfaces.CredentialsStore
	log   *slog.Logger

	// rootCAs overrides the system pool; nil uses the system pool.
	rootCAs *x509.CertPool
	timeout time.Duration
}

// NewConnectClient creates a client authenticating with the global
// credentials found in creds.
func NewConnectClient(creds interfaces.CredentialsStore, log *slog.Logger) *ConnectClient {
	return &ConnectClient{
		creds:   creds,
		log:     log,
		timeout: 60 * time.Second,
	}
}

// WithRootCAs sets the trusted roots used to verify the service.
func (c *ConnectClient) WithRootCAs(pool *x509.CertPool) *ConnectClient {
	c.rootCAs = pool
	return c
}

// AnnounceSystem registers the system with params.Token as registration code.
func (c *ConnectClient) AnnounceSystem(ctx context.Context, params interfaces.ConnectParams, distroTarget string) (string, string, error) {
	hostname, _ := os.Hostname()
	body := api.AnnounceRequest{
		Hostname:     hostname,
		DistroTarget: distroTarget,
		Hwinfo:       hwinfo(hostname),
	}

	var resp api.AnnounceResponse
	err := c.do(ctx, params, http.MethodPost, api.AnnouncePath, nil, body, tokenAuth(params.Token), &resp)
	if err != nil {
		return "", "", err
	}
	if resp.Login == "" || resp.Password == "" {
		return "", "", fmt.Errorf("%w: announcement returned no credentials", interfaces.ErrRemote)
	}
	return resp.Login, resp.Password, nil
}

// ActivateProduct activates product for the announced system.
func (c *ConnectClient) ActivateProduct(ctx context.Context, params interfaces.ConnectParams, product interfaces.RemoteProductIdentity, email string) (*interfaces.ServiceDescriptor, error) {
	auth, err := c.systemAuth(ctx)
	if err != nil {
		return nil, err
	}

	body := api.NewProductRequest(product)
	body.Token = params.Token
	body.Email = email

	var service api.ServiceResponse
	if err := c.do(ctx, params, http.MethodPost, api.ProductsPath, nil, body, auth, &service); err != nil {
		return nil, err
	}
	return &service, nil
}

// UpgradeProduct upgrades the system to product.
func (c *ConnectClient) UpgradeProduct(ctx context.Context, params interfaces.ConnectParams, product interfaces.RemoteProductIdentity) (*interfaces.ServiceDescriptor, error) {
	auth, err := c.systemAuth(ctx)
	if err != nil {
		return nil, err
	}

	var service api.ServiceResponse
	if err := c.do(ctx, params, http.MethodPut, api.ProductsPath, nil, api.NewProductRequest(product), auth, &service); err != nil {
		return nil, err
	}
	return &service, nil
}

// UpdateSystem changes the distribution target of the system.
func (c *ConnectClient) UpdateSystem(ctx context.Context, params interfaces.ConnectParams, distroTarget string) (*interfaces.UpdateResult, error) {
	creds, err := c.globalCredentials(ctx)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	body := api.UpdateSystemRequest{
		Hostname:     hostname,
		DistroTarget: distroTarget,
		Hwinfo:       hwinfo(hostname),
	}

	var resp api.UpdateSystemResponse
	if err := c.do(ctx, params, http.MethodPut, api.SystemsPath, nil, body, basicAuth(creds), &resp); err != nil {
		return nil, err
	}

	result := &interfaces.UpdateResult{Login: resp.Login, DistroTarget: resp.DistroTarget}
	if result.Login == "" {
		result.Login = creds.Login
	}
	if result.DistroTarget == "" {
		result.DistroTarget = distroTarget
	}
	return result, nil
}

// ShowProduct returns the catalog entry of product with its extensions.
func (c *ConnectClient) ShowProduct(ctx context.Context, params interfaces.ConnectParams, product interfaces.RemoteProductIdentity) (*interfaces.AddonCatalogEntry, error) {
	auth, err := c.systemAuth(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("identifier", product.Identifier)
	query.Set("version", product.Version)
	query.Set("arch", product.Arch)
	if product.ReleaseType != "" {
		query.Set("release_type", product.ReleaseType)
	}

	var entry interfaces.AddonCatalogEntry
	if err := c.do(ctx, params, http.MethodGet, api.ProductsPath, query, nil, auth, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Status returns the products activated for the system.
func (c *ConnectClient) Status(ctx context.Context, params interfaces.ConnectParams) ([]interfaces.ActivatedProduct, error) {
	auth, err := c.systemAuth(ctx)
	if err != nil {
		return nil, err
	}

	var activations []api.Activation
	if err := c.do(ctx, params, http.MethodGet, api.ActivationsPath, nil, nil, auth, &activations); err != nil {
		return nil, err
	}

	products := make([]interfaces.ActivatedProduct, 0, len(activations))
	for _, a := range activations {
		products = append(products, a.ActivatedProduct())
	}
	return products, nil
}

type authFunc func(req *http.Request)

func tokenAuth(token string) authFunc {
	return func(req *http.Request) {
		req.Header.Set("Authorization", api.TokenAuthPrefix+token)
	}
}

func basicAuth(creds interfaces.Credentials) authFunc {
	return func(req *http.Request) {
		req.SetBasicAuth(creds.Login, creds.Password)
	}
}

func (c *ConnectClient) globalCredentials(ctx context.Context) (interfaces.Credentials, error) {
	creds, err := c.creds.Read(ctx, interfaces.GlobalCredentialsPath)
	if errors.Is(err, interfaces.ErrCredentialsNotFound) {
		return interfaces.Credentials{}, interfaces.ErrNotRegistered
	}
	if err != nil {
		return interfaces.Credentials{}, fmt.Errorf("could not read system credentials: %w", err)
	}
	return creds, nil
}

func (c *ConnectClient) systemAuth(ctx context.Context) (authFunc, error) {
	creds, err := c.globalCredentials(ctx)
	if err != nil {
		return nil, err
	}
	return basicAuth(creds), nil
}

func hwinfo(hostname string) *api.Hwinfo {
	return &api.Hwinfo{
		Hostname: hostname,
		Arch:     archName(runtime.GOARCH),
		CPUs:     runtime.NumCPU(),
	}
}

// archName maps GOARCH to the architecture names used in product identities.
func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "ppc64le":
		return "ppc64le"
	case "386":
		return "i586"
	}
	return goarch
}

// httpClient builds a single use client whose TLS verification reports to
// params.VerifyCallback.
func (c *ConnectClient) httpClient(params interfaces.ConnectParams, serverName string) *http.Client {
	return &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     cryptoutils.TLSConfig(params, serverName, c.rootCAs, c.log),
			TLSHandshakeTimeout: 30 * time.Second,
			DisableKeepAlives:   true,
		},
	}
}

func (c *ConnectClient) do(ctx context.Context, params interfaces.ConnectParams, method, path string, query url.Values, reqBody any, auth authFunc, out any) error {
	baseURL := params.URL
	if baseURL == "" {
		baseURL = api.DefaultURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid service URL %q: %v", interfaces.ErrTransport, baseURL, err)
	}
	endpoint := base.JoinPath(path)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var body io.Reader
	var payload []byte
	if reqBody != nil {
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", api.AcceptHeader)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if params.Language != "" {
		req.Header.Set("Accept-Language", params.Language)
	}
	if auth != nil {
		auth(req)
	}

	if params.Verbose || params.Debug {
		c.log.Info("Sending request", "method", method, "url", endpoint.String())
	}
	if params.Debug && payload != nil {
		c.log.Debug("Request body", "body", filterBody(payload))
	}

	start := time.Now()
	resp, err := c.httpClient(params, base.Hostname()).Do(req)
	if err != nil {
		return transportError(ctx, method, endpoint.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, method, endpoint.Path, err)
	}

	if params.Verbose || params.Debug {
		c.log.Info("Received response",
			"method", method,
			"url", endpoint.String(),
			"status", resp.StatusCode,
			"duration", time.Since(start))
	}
	if params.Debug {
		c.log.Debug("Response body", "body", string(respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &interfaces.APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: could not parse %s %s response: %v", interfaces.ErrRemote, method, endpoint.Path, err)
	}
	return nil
}

// transportError classifies a failed round trip. Deadline expiry is a
// timeout, everything else a plain transport error.
func transportError(ctx context.Context, method, path string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return interfaces.TimeoutError(fmt.Errorf("could not request %s %s: %w", method, path, err))
	}
	return fmt.Errorf("%w: could not request %s %s: %w", interfaces.ErrTransport, method, path, err)
}

func errorMessage(body []byte) string {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message() != "" {
		return errResp.Message()
	}
	return strings.TrimSpace(string(body))
}

// filterBody hides registration codes in debug logs.
func filterBody(payload []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return string(payload)
	}
	if _, ok := fields["token"]; ok {
		fields["token"] = common.FilteredValue
	}
	filtered, err := json.Marshal(fields)
	if err != nil {
		return string(payload)
	}
	return string(filtered)
}
