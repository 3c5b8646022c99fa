//go:build linux

package cryptoutils

import "errors"

var errUnsupportedPlatform = errors.New("trust: no known trust store layout")

func platformLayouts() []anchorLayout {
	return []anchorLayout{
		// SUSE
		{dir: "/etc/pki/trust/anchors", updateCmd: "update-ca-certificates"},
		// Fedora/RHEL
		{dir: "/etc/pki/ca-trust/source/anchors", updateCmd: "update-ca-trust"},
		// Debian/Ubuntu
		{dir: "/usr/local/share/ca-certificates", updateCmd: "update-ca-certificates"},
	}
}
