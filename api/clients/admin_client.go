package clients

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/registration-client/api"
)

// AdminClient talks to the admin API of the entitlement stub. Every request
// is signed with the administrator's key.
type AdminClient struct {
	baseURL    string
	adminID    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
}

// NewAdminClient creates a new admin client.
//
// Parameters:
//   - baseURL: The stub's base URL (e.g., "http://localhost:8080"); the admin
//     prefix is appended
//   - adminID: The administrator's ID
//   - privateKey: The administrator's ECDSA private key
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewAdminClient(baseURL, adminID string, privateKey *ecdsa.PrivateKey, timeout ...time.Duration) *AdminClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &AdminClient{
		baseURL:    strings.TrimSuffix(baseURL, "/") + api.AdminPathPrefix,
		adminID:    adminID,
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// GetStatus returns the counts of systems, codes and products.
func (c *AdminClient) GetStatus() (api.AdminStatusResponse, error) {
	var status api.AdminStatusResponse
	err := c.do(http.MethodGet, "/status", nil, http.StatusOK, &status)
	return status, err
}

// ListSystems returns the announced systems.
func (c *AdminClient) ListSystems() ([]api.AdminSystem, error) {
	var systems []api.AdminSystem
	err := c.do(http.MethodGet, "/systems", nil, http.StatusOK, &systems)
	return systems, err
}

// RemoveSystem deregisters the system with login.
func (c *AdminClient) RemoveSystem(login string) error {
	return c.do(http.MethodDelete, "/systems/"+url.PathEscape(login), nil, http.StatusNoContent, nil)
}

// AddRegCode makes the stub accept code.
func (c *AdminClient) AddRegCode(code string) error {
	reqJSON, err := json.Marshal(api.AdminRegCodeRequest{RegCode: code})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(http.MethodPost, "/regcodes", reqJSON, http.StatusCreated, nil)
}

// RemoveRegCode stops the stub accepting code.
func (c *AdminClient) RemoveRegCode(code string) error {
	return c.do(http.MethodDelete, "/regcodes/"+url.PathEscape(code), nil, http.StatusNoContent, nil)
}

func (c *AdminClient) do(method, path string, body []byte, expected int, out any) error {
	req, err := CreateSignedAdminRequest(method, c.baseURL+path, body, c.adminID, c.privateKey)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("admin request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin request %s %s failed with code %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse admin response: %w", err)
	}
	return nil
}

// CreateSignedAdminRequest creates an HTTP request signed with the admin's
// private key. The signature covers the URL path followed by the body.
func CreateSignedAdminRequest(method, reqUrl string, body []byte, adminID string, privateKey *ecdsa.PrivateKey) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, reqUrl, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := SignAdminRequest(req, adminID, privateKey); err != nil {
		return nil, err
	}
	return req, nil
}

// SignAdminRequest adds authentication headers to an existing HTTP request.
func SignAdminRequest(req *http.Request, adminID string, privateKey *ecdsa.PrivateKey) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}
	if privateKey == nil {
		return errors.New("admin private key is required")
	}

	req.Header.Set(api.AdminIDHeader, adminID)

	message := req.URL.Path

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}

		// Restore the body for the actual request
		req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		message += string(bodyBytes)
	}

	hash := sha256.Sum256([]byte(message))

	signature, err := ecdsa.SignASN1(rand.Reader, privateKey, hash[:])
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(api.AdminSignatureHeader, base64.StdEncoding.EncodeToString(signature))
	return nil
}
