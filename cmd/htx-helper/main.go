// Command htx-helper is the local single-host process described in §4.9:
// it terminates a SOCKS5 listener, chooses decoys per destination, drives
// the HTX transport, and serves a small status/control surface.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	utls "github.com/enetx/utls"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/veilproto/htx/internal/bootstrap"
	"github.com/veilproto/htx/internal/catalog"
	"github.com/veilproto/htx/internal/config"
	"github.com/veilproto/htx/internal/fingerprint"
	"github.com/veilproto/htx/internal/handshake"
	"github.com/veilproto/htx/internal/helper"
	"github.com/veilproto/htx/internal/logging"
	"github.com/veilproto/htx/internal/selector"
)

// calibrationTimeout is how long the calibrator waits for a decoy's TLS
// handshake before treating it as CalibrationFailed.
const calibrationTimeout = 8 * time.Second

// fetchTimeout bounds a single catalog mirror fetch.
const fetchTimeout = 10 * time.Second

// mirroredProfile is the uTLS ClientHelloID the calibrator and handshake
// layer mirror against every decoy's outer TLS surface.
var mirroredProfile = utls.HelloChrome_Auto

func main() {
	log := logging.New("htx-helper", slog.LevelInfo)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("maxprocs.Set failed", "error", err)
	}

	if err := run(log); err != nil {
		log.Error("helper exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.Load()

	stateDir, err := stateDirectory()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return err
	}

	lock, err := helper.AcquireInstanceLock(filepath.Join(stateDir, "htx-helper.lock"))
	if err != nil {
		return err
	}
	defer lock.Release()

	identity, err := loadOrCreateIdentity(filepath.Join(stateDir, "identity.key"))
	if err != nil {
		return err
	}
	defer identity.Zero()

	var verifier *catalog.Verifier
	if cfg.CatalogAllowUnsigned {
		log.Warn("CATALOG_ALLOW_UNSIGNED is set: catalog signatures are not being checked")
		verifier = catalog.NewInsecureVerifier()
	} else {
		verifier, err = bootstrap.Verifier()
		if err != nil {
			return err
		}
	}

	store := catalog.NewStore(stateDir)
	state := catalog.NewState(verifier, bootstrap.Wire())
	if err := state.Startup(store, time.Now()); err != nil {
		log.Warn("catalog startup degraded", "error", err)
	}

	fetcher := catalog.NewFetcher(fetchTimeout)
	updater := catalog.NewUpdater(state, store, fetcher)
	sel := selector.New(state)
	calib := fingerprint.New(mirroredProfile, calibrationTimeout)

	seedURL := ""
	if active := state.Active(); active != nil && len(active.Doc.UpdateURLs) > 0 {
		seedURL = active.Doc.UpdateURLs[0]
	}

	orch := helper.New(cfg, calib, sel, state, updater, identity, mirroredProfile, seedURL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("htx-helper starting",
		"socks_port", cfg.SocksPort,
		"status_port", cfg.StatusPort,
		"config_mode", map[bool]string{true: "dev", false: "release"}[cfg.CatalogAllowUnsigned || cfg.InnerPlaintext],
	)
	return orch.Run(ctx)
}

func stateDirectory() (string, error) {
	if v := os.Getenv("HTX_STATE_DIR"); v != "" {
		return v, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "htx-helper"), nil
}

// identityFile is the on-disk encoding of the helper's persistent inner
// handshake keypair: a JSON object whose "public" and "private" fields hold
// the hex-encoded X25519 keys. Not a format shared with any other component; it exists only so
// the helper's identity survives a restart.
type identityFile struct {
	PublicHex  string `json:"public"`
	PrivateHex string `json:"private"`
}

func loadOrCreateIdentity(path string) (handshake.StaticIdentity, error) {
	if raw, err := os.ReadFile(path); err == nil {
		var f identityFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return handshake.StaticIdentity{}, err
		}
		pub, err := hex.DecodeString(f.PublicHex)
		if err != nil {
			return handshake.StaticIdentity{}, err
		}
		priv, err := hex.DecodeString(f.PrivateHex)
		if err != nil {
			return handshake.StaticIdentity{}, err
		}
		var id handshake.StaticIdentity
		copy(id.Pub[:], pub)
		copy(id.Priv[:], priv)
		return id, nil
	}

	id, err := handshake.GenerateStaticIdentity()
	if err != nil {
		return handshake.StaticIdentity{}, err
	}
	f := identityFile{PublicHex: hex.EncodeToString(id.Pub[:]), PrivateHex: hex.EncodeToString(id.Priv[:])}
	raw, err := json.Marshal(f)
	if err != nil {
		return handshake.StaticIdentity{}, err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return handshake.StaticIdentity{}, err
	}
	return id, nil
}
