package registration

import (
	"sync"

	"github.com/ruteri/registration-client/interfaces"
)

type trackedAddon struct {
	entry      interfaces.AddonCatalogEntry
	registered bool
}

// addonTracker remembers the addons of the last catalog fetch and which of
// them were registered in this session.
type addonTracker struct {
	mu     sync.Mutex
	addons []*trackedAddon
}

// replace tracks a new catalog, flattened. Registration marks survive for
// addons with the same identity.
func (t *addonTracker) replace(catalog []interfaces.AddonCatalogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	registered := map[interfaces.RemoteProductIdentity]bool{}
	for _, a := range t.addons {
		if a.registered {
			registered[a.entry.Identity()] = true
		}
	}

	t.addons = t.addons[:0]
	var walk func([]interfaces.AddonCatalogEntry)
	walk = func(entries []interfaces.AddonCatalogEntry) {
		for _, e := range entries {
			t.addons = append(t.addons, &trackedAddon{entry: e, registered: registered[e.Identity()]})
			walk(e.Extensions)
		}
	}
	walk(catalog)
}

// markRegistered marks the addon equal to identity. It reports false when
// no tracked addon matches.
func (t *addonTracker) markRegistered(identity interfaces.RemoteProductIdentity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.addons {
		if a.entry.Identity().Equal(identity) {
			a.registered = true
			return true
		}
	}
	return false
}

func (t *addonTracker) registered() []interfaces.AddonCatalogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []interfaces.AddonCatalogEntry
	for _, a := range t.addons {
		if a.registered {
			out = append(out, a.entry)
		}
	}
	return out
}
