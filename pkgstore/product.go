package pkgstore

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/registration-client/interfaces"
)

// BaseProductPath is the base product file relative to the store root.
const BaseProductPath = "products.d/baseproduct"

// ErrNoBaseProduct is returned when no base product is installed.
var ErrNoBaseProduct = errors.New("no base product installed")

// productFile is the product XML document.
type productFile struct {
	XMLName  xml.Name `xml:"product"`
	Vendor   string   `xml:"vendor"`
	Name     string   `xml:"name"`
	Version  string   `xml:"version"`
	Release  string   `xml:"release"`
	Arch     string   `xml:"arch"`
	Flavor   string   `xml:"flavor"`
	Summary  string   `xml:"summary"`
	Register struct {
		Flavor string `xml:"flavor"`
		Target string `xml:"target"`
	} `xml:"register"`
}

// LocateBaseProduct reads the installed base product. The version is reduced
// to the base version ("12-0" becomes "12") and the flavor becomes the
// release type.
func (s *FileStore) LocateBaseProduct(ctx context.Context) (interfaces.ProductDescriptor, error) {
	s.mu.Lock()
	path := filepath.Join(s.root, BaseProductPath)
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return interfaces.ProductDescriptor{}, ErrNoBaseProduct
	}
	if err != nil {
		return interfaces.ProductDescriptor{}, fmt.Errorf("failed to read base product: %w", err)
	}

	return parseProduct(data)
}

func parseProduct(data []byte) (interfaces.ProductDescriptor, error) {
	var p productFile
	if err := xml.Unmarshal(data, &p); err != nil {
		return interfaces.ProductDescriptor{}, fmt.Errorf("%w: invalid product file: %v", interfaces.ErrConfig, err)
	}
	if p.Name == "" || p.Version == "" || p.Arch == "" {
		return interfaces.ProductDescriptor{}, fmt.Errorf("%w: product file needs name, version and arch", interfaces.ErrConfig)
	}

	flavor := p.Register.Flavor
	if flavor == "" {
		flavor = p.Flavor
	}

	return interfaces.ProductDescriptor{
		Name:        p.Name,
		Version:     baseVersion(p.Version),
		Arch:        p.Arch,
		ReleaseType: flavor,
	}, nil
}

// baseVersion strips the release part of a version.
func baseVersion(version string) string {
	v, _, _ := strings.Cut(strings.TrimSpace(version), "-")
	return v
}
