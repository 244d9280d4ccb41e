// Package config resolves the helper's runtime configuration from its five
// environment toggles: two dev-only switches compiled out of release
// builds, and three ordinary operational settings.
package config

import (
	"os"
	"strconv"
)

// Config is the helper's fully-resolved, immutable runtime configuration.
type Config struct {
	// CatalogAllowUnsigned, dev builds only: skip catalog signature
	// verification. Always false in a release build.
	CatalogAllowUnsigned bool
	// InnerPlaintext, dev builds only: resolved from INNER_PLAINTEXT and
	// reported through config_mode. No frame or handshake code reads it, so
	// inner traffic is always AEAD-sealed. Always false in a release build.
	InnerPlaintext bool

	StatusBind string
	SocksPort  int
	StatusPort int
}

const (
	defaultStatusBind = "127.0.0.1"
	defaultSocksPort  = 1088
	defaultStatusPort = 8088
)

// Load resolves Config from the process environment, applying defaults for
// anything unset.
func Load() Config {
	return Config{
		CatalogAllowUnsigned: devToggleEnabled("CATALOG_ALLOW_UNSIGNED"),
		InnerPlaintext:       devToggleEnabled("INNER_PLAINTEXT"),
		StatusBind:           envOr("STATUS_BIND", defaultStatusBind),
		SocksPort:            envIntOr("SOCKS_PORT", defaultSocksPort),
		StatusPort:           envIntOr("STATUS_PORT", defaultStatusPort),
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envIntOr(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
