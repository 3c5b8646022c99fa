// Package controlfile reads the installation control document and provides
// its pattern defaults.
package controlfile

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/ruteri/registration-client/interfaces"
)

// DefaultPath is the control document of the running installation.
const DefaultPath = "/etc/YaST2/control.xml"

type document struct {
	XMLName  xml.Name `xml:"productDefines"`
	Software struct {
		DefaultPatterns         string `xml:"default_patterns"`
		DefaultOptionalPatterns string `xml:"default_optional_patterns"`
	} `xml:"software"`
}

// Control implements interfaces.DefaultsProvider.
type Control struct {
	defaultPatterns         []string
	defaultOptionalPatterns []string
}

// Load reads and parses the control document at path.
func Load(path string) (*Control, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read control file: %v", interfaces.ErrConfig, err)
	}
	return Parse(data)
}

// Parse parses a control document. Namespaces are ignored.
func Parse(data []byte) (*Control, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid control file: %v", interfaces.ErrConfig, err)
	}
	return &Control{
		defaultPatterns:         strings.Fields(doc.Software.DefaultPatterns),
		defaultOptionalPatterns: strings.Fields(doc.Software.DefaultOptionalPatterns),
	}, nil
}

// DefaultPatterns returns the patterns always selected.
func (c *Control) DefaultPatterns() []string {
	return append([]string{}, c.defaultPatterns...)
}

// DefaultOptionalPatterns returns the patterns selected when available.
func (c *Control) DefaultOptionalPatterns() []string {
	return append([]string{}, c.defaultOptionalPatterns...)
}

// SelectPatterns returns the default patterns and the optional defaults
// found in available.
func SelectPatterns(defaults interfaces.DefaultsProvider, available []string) (required, optional []string) {
	required = defaults.DefaultPatterns()

	known := make(map[string]bool, len(available))
	for _, name := range available {
		known[name] = true
	}
	optional = []string{}
	for _, name := range defaults.DefaultOptionalPatterns() {
		if known[name] {
			optional = append(optional, name)
		}
	}
	return required, optional
}
