package helper

import (
	"testing"
	"time"

	utls "github.com/enetx/utls"

	"github.com/veilproto/htx/internal/catalog"
	"github.com/veilproto/htx/internal/config"
	"github.com/veilproto/htx/internal/fingerprint"
	"github.com/veilproto/htx/internal/handshake"
	"github.com/veilproto/htx/internal/selector"
)

func testDocument(version uint64, expiresAt time.Time) catalog.Document {
	return catalog.Document{
		SchemaVersion:  1,
		CatalogVersion: version,
		GeneratedAt:    time.Now().Add(-time.Hour),
		ExpiresAt:      expiresAt,
		PublisherID:    "test-publisher",
		UpdateURLs:     []string{"https://example.test/catalog"},
		Entries: []catalog.DecoyEntry{
			{
				ID:               "decoy-a",
				Host:             "decoy-a.example.net",
				Ports:            []uint16{443},
				Protocols:        []string{"h2"},
				ALPN:             []string{"h2"},
				Weight:           1,
				TLSProfile:       "chrome-auto",
				HostPatterns:     []string{"*"},
				EdgeStaticKeyHex: "2222222222222222222222222222222222222222222222222222222222222222",
			},
		},
	}
}

func newTestOrchestrator(t *testing.T, doc catalog.Document) *Orchestrator {
	t.Helper()

	verifier := catalog.NewInsecureVerifier()
	state := catalog.NewState(verifier, catalog.Wire{Document: doc})
	if err := state.Startup(catalog.NewStore(t.TempDir()), time.Now()); err != nil {
		t.Fatalf("startup: %v", err)
	}

	sel := selector.New(state)
	calib := fingerprint.New(utls.HelloChrome_Auto, time.Second)
	updater := catalog.NewUpdater(state, catalog.NewStore(t.TempDir()), catalog.NewFetcher(time.Second))
	identity, err := handshake.GenerateStaticIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	return New(config.Config{}, calib, sel, state, updater, identity, utls.HelloChrome_Auto, "https://example.test/catalog")
}

func TestSnapshotStartingBeforeFirstConnection(t *testing.T) {
	orch := newTestOrchestrator(t, testDocument(1, time.Now().Add(24*time.Hour)))

	snap := orch.snapshot()
	if snap.State != string(stateStarting) {
		t.Fatalf("expected starting, got %s", snap.State)
	}
	if snap.DecoyCount != 1 {
		t.Fatalf("expected 1 decoy, got %d", snap.DecoyCount)
	}
}

func TestSnapshotConnectedAfterSuccess(t *testing.T) {
	orch := newTestOrchestrator(t, testDocument(1, time.Now().Add(24*time.Hour)))

	orch.recordSuccess("example.org:443", &selector.Result{DecoyHost: "decoy-a.example.net"})

	snap := orch.snapshot()
	if snap.State != string(stateConnected) {
		t.Fatalf("expected connected, got %s", snap.State)
	}
	if snap.LastTarget != "example.org:443" || snap.LastDecoy != "decoy-a.example.net" {
		t.Fatalf("unexpected last target/decoy: %+v", snap)
	}
}

func TestSnapshotDegradedWhenExpiredInGrace(t *testing.T) {
	orch := newTestOrchestrator(t, testDocument(1, time.Now().Add(-time.Hour)))

	snap := orch.snapshot()
	if snap.State != string(stateDegraded) {
		t.Fatalf("expected degraded for an expired-but-in-grace catalog, got %s", snap.State)
	}
}

func TestSnapshotDegradedWhenAllDecoysDeprioritized(t *testing.T) {
	orch := newTestOrchestrator(t, testDocument(1, time.Now().Add(24*time.Hour)))
	orch.sel.RecordFailure("decoy-a")

	snap := orch.snapshot()
	if snap.State != string(stateDegraded) {
		t.Fatalf("expected degraded when every decoy is deprioritized, got %s", snap.State)
	}
}

func TestConfigModeOfDev(t *testing.T) {
	if got := configModeOf(config.Config{CatalogAllowUnsigned: true}); got != "dev" {
		t.Fatalf("expected dev, got %s", got)
	}
	if got := configModeOf(config.Config{}); got != "release" {
		t.Fatalf("expected release, got %s", got)
	}
}
