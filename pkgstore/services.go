package pkgstore

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ruteri/registration-client/api"
	"github.com/ruteri/registration-client/interfaces"
	"github.com/ruteri/registration-client/storage"
)

// Service is a repository service as stored in services.d.
type Service struct {
	Name        string                           `json:"name"`
	URL         string                           `json:"url"`
	Enabled     bool                             `json:"enabled"`
	Autorefresh bool                             `json:"autorefresh"`
	Product     interfaces.RemoteProductIdentity `json:"product"`
	Credentials string                           `json:"credentials,omitempty"`
}

// AddOrRefreshService adds service, or updates the stored service with the
// same name, and refreshes its repositories. The per-service credentials
// named by the service URL are written first.
//
// Failures return a *interfaces.ServiceError naming the failed stage. Steps
// completed before the failure stay committed; calling again with the same
// service updates it in place.
func (s *FileStore) AddOrRefreshService(ctx context.Context, service interfaces.ServiceDescriptor, creds interfaces.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	serviceErr := func(stage interfaces.ServiceStage, err error) error {
		s.log.Error("Service provisioning failed",
			slog.String("service", service.Name),
			slog.String("stage", string(stage)),
			"err", err)
		return &interfaces.ServiceError{Stage: stage, Service: service.Name, Err: err}
	}

	path, err := s.servicePath(service.Name)
	if err != nil {
		return serviceErr(interfaces.StageAdd, err)
	}
	if err := validateServiceURL(service.URL); err != nil {
		return serviceErr(interfaces.StageAdd, err)
	}

	credsName := service.CredentialsName()
	if credsName != "" {
		if err := s.creds.Write(ctx, creds.WithPath(credsName)); err != nil {
			return serviceErr(interfaces.StageCreds, err)
		}
	}

	previous, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return serviceErr(interfaces.StageUpdate, err)
	}

	record := Service{Name: service.Name}
	stage := interfaces.StageAdd
	if exists {
		stage = interfaces.StageUpdate
		if err := json.Unmarshal(previous, &record); err != nil {
			return serviceErr(stage, fmt.Errorf("corrupt service file %s: %w", path, err))
		}
		s.log.Info("Updating service", slog.String("service", service.Name))
	} else {
		s.log.Info("Adding service", slog.String("service", service.Name))
	}

	record.URL = service.URL
	record.Product = service.Product
	record.Credentials = credsName
	record.Enabled = true
	record.Autorefresh = true

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return serviceErr(stage, err)
	}
	if err := storage.WriteFileAtomic(path, data, 0644); err != nil {
		return serviceErr(interfaces.StageSave, err)
	}

	if stage, err := s.refreshLocked(ctx, record, creds); err != nil {
		return serviceErr(stage, err)
	}

	return nil
}

// refreshLocked downloads the repository index of a service and replaces
// its stored repositories.
func (s *FileStore) refreshLocked(ctx context.Context, service Service, creds interfaces.Credentials) (interfaces.ServiceStage, error) {
	indexURL, err := repoIndexURL(service.URL, creds)
	if err != nil {
		return interfaces.StageRefresh, err
	}

	s.log.Debug("Refreshing service",
		slog.String("service", service.Name),
		slog.String("url", indexURL.Redacted()))

	data, err := s.fetcher.Fetch(ctx, indexURL.String(), s.insecure)
	if err != nil {
		return interfaces.StageRefresh, err
	}

	var index api.RepoIndex
	if err := xml.Unmarshal(data, &index); err != nil {
		return interfaces.StageRefresh, fmt.Errorf("invalid repository index: %w", err)
	}

	repos := make([]interfaces.Repository, 0, len(index.Repos))
	for _, r := range index.Repos {
		repos = append(repos, r.Repository(service.Name))
	}

	if err := s.saveReposLocked(service.Name, repos); err != nil {
		return interfaces.StageSaveRepos, err
	}

	s.log.Info("Service refreshed",
		slog.String("service", service.Name),
		slog.Int("repositories", len(repos)))
	return "", nil
}

// Service returns the stored service with the given name.
func (s *FileStore) Service(ctx context.Context, name string) (Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadServiceLocked(name)
}

// Services returns all stored services sorted by name.
func (s *FileStore) Services(ctx context.Context) ([]Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servicesLocked()
}

func (s *FileStore) servicesLocked() ([]Service, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, servicesDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var services []Service
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".service")
		if !ok || e.IsDir() {
			continue
		}
		service, err := s.loadServiceLocked(name)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

func (s *FileStore) loadServiceLocked(name string) (Service, error) {
	path, err := s.servicePath(name)
	if err != nil {
		return Service{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Service{}, err
	}
	var service Service
	if err := json.Unmarshal(data, &service); err != nil {
		return Service{}, fmt.Errorf("corrupt service file %s: %w", path, err)
	}
	return service, nil
}

func (s *FileStore) saveServiceLocked(service Service) error {
	path, err := s.servicePath(service.Name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(service, "", "  ")
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(path, data, 0644)
}

// ServiceRepos returns the repositories of a service. With onlyUpdates set
// only update repositories are returned.
func (s *FileStore) ServiceRepos(ctx context.Context, name string, onlyUpdates bool) ([]interfaces.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repos, err := s.loadReposLocked(name)
	if err != nil {
		return nil, err
	}
	if !onlyUpdates {
		return repos, nil
	}

	updates := []interfaces.Repository{}
	for _, r := range repos {
		if r.IsUpdateRepo {
			updates = append(updates, r)
		}
	}
	return updates, nil
}

// SetReposState enables or disables repos. A nil enabled leaves them
// unchanged.
func (s *FileStore) SetReposState(ctx context.Context, repos []interfaces.Repository, enabled *bool) error {
	if enabled == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byService := map[string]map[string]bool{}
	for _, r := range repos {
		if byService[r.Service] == nil {
			byService[r.Service] = map[string]bool{}
		}
		byService[r.Service][r.Alias] = true
	}

	for service, aliases := range byService {
		stored, err := s.loadReposLocked(service)
		if err != nil {
			return err
		}
		for i := range stored {
			if aliases[stored[i].Alias] {
				s.log.Info("Changing repository state",
					slog.String("repository", stored[i].Alias),
					slog.Bool("enabled", *enabled))
				stored[i].Enabled = *enabled
			}
		}
		if err := s.saveReposLocked(service, stored); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) loadReposLocked(service string) ([]interfaces.Repository, error) {
	path, err := s.reposPath(service)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no repositories for service '%s'", service)
	}
	if err != nil {
		return nil, err
	}
	var repos []interfaces.Repository
	if err := json.Unmarshal(data, &repos); err != nil {
		return nil, fmt.Errorf("corrupt repository list %s: %w", path, err)
	}
	return repos, nil
}

func (s *FileStore) saveReposLocked(service string, repos []interfaces.Repository) error {
	path, err := s.reposPath(service)
	if err != nil {
		return err
	}
	if repos == nil {
		repos = []interfaces.Repository{}
	}
	data, err := json.MarshalIndent(repos, "", "  ")
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(path, data, 0644)
}

func (s *FileStore) servicePath(name string) (string, error) {
	if err := validateServiceName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, servicesDir, name+".service"), nil
}

func (s *FileStore) reposPath(name string) (string, error) {
	if err := validateServiceName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, reposDir, name+".json"), nil
}

func validateServiceName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid service name %q", name)
	}
	return nil
}

func validateServiceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid service URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("invalid service URL %q: missing host", raw)
		}
	case "file":
	default:
		return fmt.Errorf("invalid service URL %q: unsupported scheme", raw)
	}
	return nil
}

// repoIndexURL returns the repository index URL of a service. The
// credentials query parameter is dropped; the credentials are sent as
// userinfo instead.
func repoIndexURL(serviceURL string, creds interfaces.Credentials) (*url.URL, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, err
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + api.RepoIndexPath
	u.RawPath = ""
	if creds.Login != "" && (u.Scheme == "http" || u.Scheme == "https") {
		u.User = url.UserPassword(creds.Login, creds.Password)
	}
	return u, nil
}
