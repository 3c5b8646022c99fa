package httpserver

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/registration-client/api"
	"github.com/ruteri/registration-client/common"
	"github.com/ruteri/registration-client/interfaces"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler serves the entitlement API from an in-memory State.
type Handler struct {
	state *State
	log   *slog.Logger

	// serviceBase overrides the base URL of service URLs handed out on
	// activation. When empty it is derived from the request.
	serviceBase string

	// onAnnounce is called with the number of systems after an announcement.
	onAnnounce func(systems int)

	// admin is mounted at api.AdminPathPrefix when set.
	admin *AdminHandler
}

// NewHandler creates a handler serving state.
func NewHandler(state *State, log *slog.Logger) *Handler {
	return &Handler{
		state: state,
		log:   log,
	}
}

// WithServiceBase fixes the base URL of handed out service URLs.
func (h *Handler) WithServiceBase(base string) *Handler {
	h.serviceBase = strings.TrimSuffix(base, "/")
	return h
}

// WithAdmin enables the admin API for the given admin public keys.
func (h *Handler) WithAdmin(adminPubKeys map[string][]byte) *Handler {
	h.admin = NewAdminHandler(h.log, h.state, adminPubKeys)
	return h
}

// HandleAnnounce registers a system.
//
// URL format: POST /connect/subscriptions/systems
// Required headers:
//   - Authorization: Token token=<registration code>
//
// Response: 201 with the system credentials.
func (h *Handler) HandleAnnounce(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, api.TokenAuthPrefix) {
		h.writeError(w, &RequestError{StatusCode: http.StatusUnauthorized, Err: errors.New("missing registration code")})
		return
	}
	regCode := strings.TrimPrefix(authz, api.TokenAuthPrefix)

	var req api.AnnounceRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	system, err := h.state.Announce(regCode, req.Hostname, req.DistroTarget)
	if err != nil {
		h.log.Info("Rejected announcement", "hostname", req.Hostname, "reg_code", common.Filter(regCode))
		h.writeError(w, &RequestError{StatusCode: http.StatusUnauthorized, Err: err})
		return
	}

	h.log.Info("Announced system", "login", system.Login, "hostname", system.Hostname)
	if h.onAnnounce != nil {
		h.onAnnounce(h.state.SystemCount())
	}

	h.writeJSON(w, http.StatusCreated, api.AnnounceResponse{Login: system.Login, Password: system.Password})
}

// HandleActivate activates a product: POST /connect/systems/products.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	system, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req api.ProductRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	service, err := h.state.Activate(system, req, h.baseURL(r))
	if err != nil {
		h.writeError(w, productError(err))
		return
	}

	h.log.Info("Activated product", "login", system.Login, "product", req.Identity().String())
	h.writeJSON(w, http.StatusCreated, service)
}

// HandleUpgrade upgrades an activated product: PUT /connect/systems/products.
func (h *Handler) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	system, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req api.ProductRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	service, err := h.state.Upgrade(system, req, h.baseURL(r))
	if err != nil {
		h.writeError(w, productError(err))
		return
	}

	h.log.Info("Upgraded product", "login", system.Login, "product", req.Identity().String())
	h.writeJSON(w, http.StatusOK, service)
}

// HandleUpdateSystem records system changes: PUT /connect/systems.
func (h *Handler) HandleUpdateSystem(w http.ResponseWriter, r *http.Request) {
	system, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req api.UpdateSystemRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.state.UpdateSystem(system, req.Hostname, req.DistroTarget)
	h.writeJSON(w, http.StatusOK, api.UpdateSystemResponse{Login: system.Login, DistroTarget: req.DistroTarget})
}

// HandleShowProduct returns a catalog entry with its extensions:
// GET /connect/systems/products?identifier=&version=&arch=&release_type=
func (h *Handler) HandleShowProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	q := r.URL.Query()
	identity := interfaces.RemoteProductIdentity{
		Identifier:  q.Get("identifier"),
		Version:     q.Get("version"),
		Arch:        q.Get("arch"),
		ReleaseType: q.Get("release_type"),
	}

	entry, ok := h.state.Show(identity)
	if !ok {
		h.writeError(w, productError(errUnknownProduct))
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// HandleActivations lists the activations: GET /connect/systems/activations.
func (h *Handler) HandleActivations(w http.ResponseWriter, r *http.Request) {
	system, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.state.Activations(system))
}

// HandleRepoIndex serves the repository index of an activated service:
// GET /access/services/{id}/repo/repoindex.xml
func (h *Handler) HandleRepoIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid service id", http.StatusBadRequest)
		return
	}

	repos, ok := h.state.ServiceRepos(id, h.baseURL(r))
	if !ok {
		http.Error(w, "Service not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(api.NewRepoIndex(repos)); err != nil {
		h.log.Error("Failed to encode repository index", "err", err)
	}
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*System, bool) {
	login, password, ok := r.BasicAuth()
	if !ok {
		h.writeError(w, &RequestError{StatusCode: http.StatusUnauthorized, Err: errors.New("missing system credentials")})
		return nil, false
	}
	system, ok := h.state.Authenticate(login, password)
	if !ok {
		h.writeError(w, &RequestError{StatusCode: http.StatusUnauthorized, Err: errors.New("invalid system credentials")})
		return nil, false
	}
	return system, true
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.serviceBase != "" {
		return h.serviceBase
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// productError maps state errors to HTTP statuses. Unknown registration
// codes are authentication failures, everything else is unprocessable.
func productError(err error) *RequestError {
	if errors.Is(err, errUnknownRegCode) {
		return &RequestError{StatusCode: http.StatusUnauthorized, Err: err}
	}
	return &RequestError{StatusCode: http.StatusUnprocessableEntity, Err: err}
}

func decodeBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("failed to read request body")}
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("invalid JSON body")}
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = &RequestError{StatusCode: http.StatusInternalServerError, Err: err}
	}
	h.writeJSON(w, reqErr.StatusCode, api.ErrorResponse{Type: "error", Error: reqErr.Error()})
}
