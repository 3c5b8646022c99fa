package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/registration-client/api"
	"github.com/ruteri/registration-client/common"
)

// AdminHandler serves the administrative API of the stub: inspecting and
// deregistering systems, and managing accepted registration codes.
//
// Every request must be signed by one of the configured admins:
//   - X-Admin-ID names the admin
//   - X-Admin-Signature carries a base64 ASN.1 ECDSA signature over
//     SHA-256 of the request path followed by the body
type AdminHandler struct {
	log          *slog.Logger
	state        *State
	adminPubKeys map[string][]byte // Map of admin ID to public key PEM
}

// NewAdminHandler creates an admin handler for state.
//
// Parameters:
//   - log: Structured logger for operational insights
//   - state: The stub state to administer
//   - adminPubKeys: Map of admin IDs to their public keys in PEM format
func NewAdminHandler(log *slog.Logger, state *State, adminPubKeys map[string][]byte) *AdminHandler {
	return &AdminHandler{
		log:          log,
		state:        state,
		adminPubKeys: adminPubKeys,
	}
}

// AdminRouter returns the admin API router, to be mounted at
// api.AdminPathPrefix.
func (h *AdminHandler) AdminRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireAdmin)

	r.Get("/status", h.handleStatus)
	r.Get("/systems", h.handleListSystems)
	r.Delete("/systems/{login}", h.handleRemoveSystem)
	r.Post("/regcodes", h.handleAddRegCode)
	r.Delete("/regcodes/{regcode}", h.handleRemoveRegCode)

	return r
}

func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.verifyAdmin(r); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleStatus counts systems, codes and products.
//
// Endpoint: GET /admin/status
func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.state.Status())
}

// Endpoint: GET /admin/systems
func (h *AdminHandler) handleListSystems(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.state.Systems())
}

// handleRemoveSystem deregisters a system. Its credentials are rejected by
// all later requests.
//
// Endpoint: DELETE /admin/systems/{login}
func (h *AdminHandler) handleRemoveSystem(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")
	if !h.state.RemoveSystem(login) {
		http.Error(w, "System not found", http.StatusNotFound)
		return
	}

	h.log.Info("Removed system", "login", login, "adminID", r.Header.Get(api.AdminIDHeader))
	w.WriteHeader(http.StatusNoContent)
}

// handleAddRegCode accepts a new registration code.
//
// Endpoint: POST /admin/regcodes
// Body: {"regcode": "<code>"}
func (h *AdminHandler) handleAddRegCode(w http.ResponseWriter, r *http.Request) {
	var req api.AdminRegCodeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RegCode == "" {
		http.Error(w, "Registration code is required", http.StatusBadRequest)
		return
	}

	h.state.AddRegCode(req.RegCode)
	h.log.Info("Added registration code", "regcode", common.Filter(req.RegCode), "adminID", r.Header.Get(api.AdminIDHeader))
	w.WriteHeader(http.StatusCreated)
}

// Endpoint: DELETE /admin/regcodes/{regcode}
func (h *AdminHandler) handleRemoveRegCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "regcode")
	if !h.state.RemoveRegCode(code) {
		http.Error(w, "Registration code not found", http.StatusNotFound)
		return
	}

	h.log.Info("Removed registration code", "regcode", common.Filter(code), "adminID", r.Header.Get(api.AdminIDHeader))
	w.WriteHeader(http.StatusNoContent)
}

// verifyAdmin authenticates the request signature against the admin's
// registered public key. The body is restored for later handlers.
func (h *AdminHandler) verifyAdmin(r *http.Request) (string, bool) {
	adminID := r.Header.Get(api.AdminIDHeader)
	adminSignatureStr := r.Header.Get(api.AdminSignatureHeader)

	if adminID == "" || adminSignatureStr == "" {
		return "", false
	}

	pubKeyPEM, exists := h.adminPubKeys[adminID]
	if !exists {
		h.log.Warn("Authentication failed: unknown admin ID", "adminID", adminID)
		return adminID, false
	}

	adminSignature, err := base64.StdEncoding.DecodeString(adminSignatureStr)
	if err != nil {
		h.log.Warn("Authentication failed: invalid signature encoding", "adminID", adminID, "err", err)
		return adminID, false
	}

	ecdsaPubKey, err := parsePublicKey(pubKeyPEM)
	if err != nil {
		h.log.Error("Failed to parse admin public key", "adminID", adminID, "err", err)
		return adminID, false
	}

	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, err = io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			h.log.Error("Failed to read request body", "err", err)
			return adminID, false
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	// chi routes mounts on its own context; r.URL.Path keeps the full path.
	message := r.URL.Path + string(bodyBytes)
	hash := sha256.Sum256([]byte(message))

	if !ecdsa.VerifyASN1(ecdsaPubKey, hash[:], adminSignature) {
		h.log.Warn("Authentication failed: invalid signature", "adminID", adminID)
		return adminID, false
	}

	h.log.Debug("Admin authentication successful", "adminID", adminID)
	return adminID, true
}

func parsePublicKey(pubKeyPEM []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pubKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	ecdsaPubKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an ECDSA key")
	}
	return ecdsaPubKey, nil
}

// LoadAdminKeys loads admin public keys from a JSON document of the form
//
//	{"admins": [{"id": "alice", "pubkey": "-----BEGIN PUBLIC KEY-----..."}]}
func LoadAdminKeys(r io.Reader) (map[string][]byte, error) {
	var data struct {
		Admins []struct {
			ID     string `json:"id"`
			PubKey string `json:"pubkey"`
		} `json:"admins"`
	}

	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode admin keys JSON: %w", err)
	}

	result := make(map[string][]byte)
	for _, admin := range data.Admins {
		if admin.ID == "" {
			return nil, errors.New("admin entry without id")
		}
		if _, err := parsePublicKey([]byte(admin.PubKey)); err != nil {
			return nil, fmt.Errorf("invalid public key for admin %s: %w", admin.ID, err)
		}
		result[admin.ID] = []byte(admin.PubKey)
	}

	return result, nil
}

// GenerateAdminKeyPair generates a new P-256 key pair for an administrator.
//
// Returns:
//   - Private key PEM string (kept by the admin)
//   - Public key PEM string (listed in the stub's admin keys file)
//   - Error if key generation fails
func GenerateAdminKeyPair() (string, string, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})

	return string(privateKeyPEM), string(publicKeyPEM), nil
}

// ParsePrivateKey parses an ECDSA private key from PEM format.
func ParsePrivateKey(privateKeyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block containing private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA private key: %w", err)
	}

	return privateKey, nil
}
