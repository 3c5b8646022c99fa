package registration

import "github.com/ruteri/registration-client/interfaces"

// CollectRenames maps the former identifier of every catalog entry, nested
// extensions included, to its current identifier. Entries without a former
// identifier or with an unchanged one are skipped.
func CollectRenames(addons []interfaces.AddonCatalogEntry) interfaces.RenameMap {
	renames := interfaces.RenameMap{}
	collectRenames(addons, renames)
	return renames
}

func collectRenames(addons []interfaces.AddonCatalogEntry, renames interfaces.RenameMap) {
	for _, addon := range addons {
		if addon.FormerIdentifier != "" && addon.FormerIdentifier != addon.Identifier {
			renames[addon.FormerIdentifier] = addon.Identifier
		}
		collectRenames(addon.Extensions, renames)
	}
}
