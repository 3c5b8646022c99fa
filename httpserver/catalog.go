package httpserver

import "github.com/ruteri/registration-client/interfaces"

// DemoRegCode is the registration code accepted by a DemoState.
const DemoRegCode = "DEMO-REGCODE"

// DemoCatalog returns a base product with a small extension tree. One
// extension was renamed and reports its former identifier.
func DemoCatalog(arch string) interfaces.AddonCatalogEntry {
	return interfaces.AddonCatalogEntry{
		ID:           1117,
		Identifier:   "SLES",
		Version:      "12",
		Arch:         arch,
		ReleaseType:  "DVD",
		FriendlyName: "SUSE Linux Enterprise Server 12",
		Available:    true,
		Extensions: []interfaces.AddonCatalogEntry{
			{
				ID:           1150,
				Identifier:   "sle-module-web-scripting",
				Version:      "12",
				Arch:         arch,
				FriendlyName: "Web and Scripting Module 12",
				Free:         true,
				Available:    true,
			},
			{
				ID:               1212,
				Identifier:       "sle-ha",
				FormerIdentifier: "sle-hae",
				Version:          "12",
				Arch:             arch,
				FriendlyName:     "SUSE Linux Enterprise High Availability Extension 12",
				Available:        true,
				Extensions: []interfaces.AddonCatalogEntry{
					{
						ID:           1245,
						Identifier:   "sle-ha-geo",
						Version:      "12",
						Arch:         arch,
						FriendlyName: "GEO Clustering for SUSE Linux Enterprise High Availability Extension 12",
						Available:    true,
					},
				},
			},
			{
				ID:           1220,
				Identifier:   "sle-sdk",
				Version:      "12",
				Arch:         arch,
				FriendlyName: "SUSE Linux Enterprise Software Development Kit 12",
				Free:         true,
				Available:    true,
			},
		},
	}
}

// DemoState returns a state accepting DemoRegCode with DemoCatalog for arch.
func DemoState(arch string) *State {
	state := NewState()
	state.AddRegCode(DemoRegCode)
	state.AddProduct(DemoCatalog(arch))
	return state
}
