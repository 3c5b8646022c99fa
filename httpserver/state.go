package httpserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ruteri/registration-client/api"
	"github.com/ruteri/registration-client/interfaces"
)

var (
	errUnknownRegCode  = errors.New("unknown registration code")
	errUnknownProduct  = errors.New("no product found")
	errRegCodeRequired = errors.New("a registration code is required for this product")
	errNotActivated    = errors.New("product is not activated")
)

// System is an announced system.
type System struct {
	Login        string
	Password     string
	Hostname     string
	RegCode      string
	DistroTarget string

	activations []api.Activation
}

// State is the in-memory database of the stub service.
type State struct {
	mu sync.Mutex

	regCodes map[string]bool
	systems  map[string]*System
	catalog  []interfaces.AddonCatalogEntry

	nextID int64
}

// NewState creates an empty state.
func NewState() *State {
	return &State{
		regCodes: map[string]bool{},
		systems:  map[string]*System{},
		nextID:   1000,
	}
}

// AddRegCode accepts code for announcements and paid activations.
func (s *State) AddRegCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regCodes[code] = true
}

// AddProduct adds a base product, with its extension tree, to the catalog.
func (s *State) AddProduct(product interfaces.AddonCatalogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = append(s.catalog, product)
}

// Announce creates a system with fresh credentials.
func (s *State) Announce(regCode, hostname, distroTarget string) (*System, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.regCodes[regCode] {
		return nil, errUnknownRegCode
	}

	system := &System{
		Login:        "SCC_" + uuid.New().String(),
		Password:     uuid.New().String(),
		Hostname:     hostname,
		RegCode:      regCode,
		DistroTarget: distroTarget,
	}
	s.systems[system.Login] = system
	return system, nil
}

// Authenticate returns the system owning the credentials.
func (s *State) Authenticate(login, password string) (*System, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	system, ok := s.systems[login]
	if !ok || system.Password != password {
		return nil, false
	}
	return system, true
}

// SystemCount returns the number of announced systems.
func (s *State) SystemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.systems)
}

// Activate activates product for system. Paid extensions need a known
// registration code in token; base products fall back to the system's code.
func (s *State) Activate(system *System, req api.ProductRequest, serviceBase string) (*interfaces.ServiceDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, isBase, ok := s.findLocked(req.Identity())
	if !ok {
		return nil, errUnknownProduct
	}

	token := req.Token
	if token == "" && isBase {
		token = system.RegCode
	}
	if !entry.Free && !s.regCodes[token] {
		if token == "" {
			return nil, errRegCodeRequired
		}
		return nil, errUnknownRegCode
	}

	return s.activateLocked(system, entry, serviceBase), nil
}

// Upgrade replaces the activation of a product with the same identifier.
func (s *State) Upgrade(system *System, req api.ProductRequest, serviceBase string) (*interfaces.ServiceDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, _, ok := s.findLocked(req.Identity())
	if !ok {
		return nil, errUnknownProduct
	}

	kept := system.activations[:0]
	found := false
	for _, a := range system.activations {
		if a.Service.Product.Identifier == entry.Identifier || a.Service.Product.Identifier == entry.FormerIdentifier {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return nil, errNotActivated
	}
	system.activations = kept

	return s.activateLocked(system, entry, serviceBase), nil
}

// UpdateSystem records a new distribution target.
func (s *State) UpdateSystem(system *System, hostname, distroTarget string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hostname != "" {
		system.Hostname = hostname
	}
	if distroTarget != "" {
		system.DistroTarget = distroTarget
	}
}

// Show returns the catalog entry of a product.
func (s *State) Show(identity interfaces.RemoteProductIdentity) (interfaces.AddonCatalogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, _, ok := s.findLocked(identity)
	return entry, ok
}

// Activations lists the activations of system ordered by id.
func (s *State) Activations(system *System) []api.Activation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]api.Activation(nil), system.activations...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ServiceRepos returns the repositories of an activated service, or false
// if no system has the service activated.
func (s *State) ServiceRepos(serviceID int64, serviceBase string) ([]interfaces.Repository, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, system := range s.systems {
		for _, a := range system.activations {
			if a.Service.ID == serviceID {
				return serviceRepos(a.Service, serviceBase), true
			}
		}
	}
	return nil, false
}

func (s *State) activateLocked(system *System, entry interfaces.AddonCatalogEntry, serviceBase string) *interfaces.ServiceDescriptor {
	s.nextID++
	name := fmt.Sprintf("%s_%s_%s", entry.Identifier, entry.Version, entry.Arch)
	service := api.ActivationService{
		ID:   s.nextID,
		Name: name,
		URL:  fmt.Sprintf("%s/access/services/%d?credentials=%s", serviceBase, s.nextID, name),
		Product: api.ActivationProduct{
			ID:          entry.ID,
			Identifier:  entry.Identifier,
			Version:     entry.Version,
			Arch:        entry.Arch,
			ReleaseType: entry.ReleaseType,
		},
	}

	replaced := false
	for i, a := range system.activations {
		if a.Service.Product.Identifier == entry.Identifier {
			system.activations[i].Service = service
			replaced = true
		}
	}
	if !replaced {
		system.activations = append(system.activations, api.Activation{ID: s.nextID, Status: "ACTIVE", Service: service})
	}

	return &interfaces.ServiceDescriptor{
		ID:      service.ID,
		Name:    service.Name,
		URL:     service.URL,
		Product: entry.Identity(),
	}
}

// findLocked searches the catalog tree. Identities match on identifier,
// version and arch; the release type is compared only when both sides
// carry one.
func (s *State) findLocked(identity interfaces.RemoteProductIdentity) (interfaces.AddonCatalogEntry, bool, bool) {
	for _, base := range s.catalog {
		if matches(base, identity) {
			return base, true, true
		}
		if entry, ok := findExtension(base.Extensions, identity); ok {
			return entry, false, true
		}
	}
	return interfaces.AddonCatalogEntry{}, false, false
}

func findExtension(entries []interfaces.AddonCatalogEntry, identity interfaces.RemoteProductIdentity) (interfaces.AddonCatalogEntry, bool) {
	for _, e := range entries {
		if matches(e, identity) {
			return e, true
		}
		if found, ok := findExtension(e.Extensions, identity); ok {
			return found, true
		}
	}
	return interfaces.AddonCatalogEntry{}, false
}

func matches(entry interfaces.AddonCatalogEntry, identity interfaces.RemoteProductIdentity) bool {
	if entry.Identifier != identity.Identifier || entry.Version != identity.Version || entry.Arch != identity.Arch {
		return false
	}
	return entry.ReleaseType == "" || identity.ReleaseType == "" || entry.ReleaseType == identity.ReleaseType
}

func serviceRepos(service api.ActivationService, serviceBase string) []interfaces.Repository {
	p := service.Product
	prefix := fmt.Sprintf("%s-%s", p.Identifier, p.Version)
	repoBase := fmt.Sprintf("%s/repo/%s/%s/%s", serviceBase, p.Identifier, p.Version, p.Arch)
	return []interfaces.Repository{
		{
			Alias:       prefix + "-Pool",
			Name:        prefix + "-Pool",
			URL:         repoBase + "/product",
			Service:     service.Name,
			Enabled:     true,
			Autorefresh: false,
		},
		{
			Alias:        prefix + "-Updates",
			Name:         prefix + "-Updates",
			URL:          repoBase + "/update",
			Service:      service.Name,
			Enabled:      true,
			Autorefresh:  true,
			IsUpdateRepo: true,
		},
	}
}

// RemoveRegCode stops accepting code. Systems announced with it keep their
// credentials.
func (s *State) RemoveRegCode(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.regCodes[code] {
		return false
	}
	delete(s.regCodes, code)
	return true
}

// Status counts systems, registration codes and base products.
func (s *State) Status() api.AdminStatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return api.AdminStatusResponse{
		Systems:  len(s.systems),
		RegCodes: len(s.regCodes),
		Products: len(s.catalog),
	}
}

// Systems lists the announced systems ordered by login.
func (s *State) Systems() []api.AdminSystem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.AdminSystem, 0, len(s.systems))
	for _, system := range s.systems {
		entry := api.AdminSystem{
			Login:        system.Login,
			Hostname:     system.Hostname,
			DistroTarget: system.DistroTarget,
			Products:     []string{},
		}
		for _, a := range system.activations {
			entry.Products = append(entry.Products, a.Service.Name)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out
}

// RemoveSystem deregisters a system; its credentials stop working.
func (s *State) RemoveSystem(login string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.systems[login]; !ok {
		return false
	}
	delete(s.systems, login)
	return true
}
