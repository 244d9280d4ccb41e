//go:build !devtoggles

package config

// devToggleEnabled always reports false in release builds: CATALOG_ALLOW_UNSIGNED
// and INNER_PLAINTEXT are compiled out entirely unless the devtoggles build
// tag is set, so no environment variable can enable them in a release binary.
func devToggleEnabled(string) bool { return false }
