package common

// Version is set at build time with -ldflags "-X .../common.Version=..."
var Version = "dev"

// FilteredValue replaces secrets such as registration codes in logs and
// string representations.
const FilteredValue = "[FILTERED]"

// Filter returns FilteredValue for a non-empty secret.
func Filter(secret string) string {
	if secret == "" {
		return ""
	}
	return FilteredValue
}
