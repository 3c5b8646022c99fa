package registration

import (
	"testing"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/stretchr/testify/assert"
)

func TestAddonTracker(t *testing.T) {
	var tracker addonTracker

	ha := interfaces.AddonCatalogEntry{Identifier: "sle-ha", Version: "12", Arch: "x86_64", ReleaseType: "DVD",
		Extensions: []interfaces.AddonCatalogEntry{{Identifier: "sle-ha-geo", Version: "12", Arch: "x86_64"}}}
	tracker.replace([]interfaces.AddonCatalogEntry{ha})

	// all four identity fields must match
	assert.False(t, tracker.markRegistered(interfaces.RemoteProductIdentity{Identifier: "sle-ha", Version: "12", Arch: "x86_64"}))
	assert.Empty(t, tracker.registered())

	assert.True(t, tracker.markRegistered(ha.Identity()))
	assert.True(t, tracker.markRegistered(interfaces.RemoteProductIdentity{Identifier: "sle-ha-geo", Version: "12", Arch: "x86_64"}))
	assert.Len(t, tracker.registered(), 2)

	// marks survive a refresh for addons still offered
	tracker.replace([]interfaces.AddonCatalogEntry{{Identifier: "sle-ha", Version: "12", Arch: "x86_64", ReleaseType: "DVD"}})
	registered := tracker.registered()
	if assert.Len(t, registered, 1) {
		assert.Equal(t, "sle-ha", registered[0].Identifier)
	}
}
