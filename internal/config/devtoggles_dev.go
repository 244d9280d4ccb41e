//go:build devtoggles

package config

import "os"

// devToggleEnabled reports whether the named environment variable is set
// to a truthy value. Only linked into binaries built with -tags devtoggles.
func devToggleEnabled(name string) bool {
	v := os.Getenv(name)
	return v == "1" || v == "true"
}
