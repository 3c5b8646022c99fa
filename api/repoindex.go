package api

import (
	"encoding/xml"
	"strings"

	"github.com/ruteri/registration-client/interfaces"
)

// RepoIndexPath is appended to a service URL to get its repository index.
const RepoIndexPath = "repo/repoindex.xml"

// RepoIndex is the repository index document of a repository service.
type RepoIndex struct {
	XMLName xml.Name        `xml:"repoindex"`
	Repos   []RepoIndexRepo `xml:"repo"`
}

// RepoIndexRepo is one repository of a service.
type RepoIndexRepo struct {
	Alias        string `xml:"alias,attr"`
	Name         string `xml:"name,attr"`
	URL          string `xml:"url,attr"`
	Enabled      bool   `xml:"enabled,attr"`
	Autorefresh  bool   `xml:"autorefresh,attr"`
	DistroTarget string `xml:"distro_target,attr,omitempty"`
}

// IsUpdateRepo recognizes update repositories by their alias.
func (r RepoIndexRepo) IsUpdateRepo() bool {
	return strings.Contains(strings.ToLower(r.Alias), "update")
}

// Repository converts the entry for service.
func (r RepoIndexRepo) Repository(service string) interfaces.Repository {
	name := r.Name
	if name == "" {
		name = r.Alias
	}
	return interfaces.Repository{
		Alias:        r.Alias,
		Name:         name,
		URL:          r.URL,
		Service:      service,
		Enabled:      r.Enabled,
		Autorefresh:  r.Autorefresh,
		IsUpdateRepo: r.IsUpdateRepo(),
	}
}

// NewRepoIndex renders repositories as an index document.
func NewRepoIndex(repos []interfaces.Repository) RepoIndex {
	index := RepoIndex{}
	for _, r := range repos {
		index.Repos = append(index.Repos, RepoIndexRepo{
			Alias:       r.Alias,
			Name:        r.Name,
			URL:         r.URL,
			Enabled:     r.Enabled,
			Autorefresh: r.Autorefresh,
		})
	}
	return index
}
