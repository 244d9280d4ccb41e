package selector

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/veilproto/htx/internal/catalog"
)

func newTestState(t *testing.T, entries []catalog.DecoyEntry) *catalog.State {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	verifier, err := catalog.NewVerifier(pub)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	doc := catalog.Document{
		SchemaVersion:  1,
		CatalogVersion: 1,
		GeneratedAt:    time.Now(),
		ExpiresAt:      time.Now().Add(24 * time.Hour),
		PublisherID:    "pub",
		UpdateURLs:     []string{"https://mirror.example/catalog"},
		Entries:        entries,
	}
	wire := catalog.Sign(doc, "", priv)

	state := catalog.NewState(verifier, wire)
	if err := state.Startup(catalog.NewStore(t.TempDir()), time.Now()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	return state
}

const testEdgeKeyHex = "1111111111111111111111111111111111111111111111111111111111111111"

func TestSelectPrefersMostSpecificPattern(t *testing.T) {
	entries := []catalog.DecoyEntry{
		{ID: "catchall", Host: "cdn-a.example", Ports: []uint16{443}, Weight: 1, HostPatterns: []string{"*"}, EdgeStaticKeyHex: testEdgeKeyHex},
		{ID: "specific", Host: "cdn-b.example", Ports: []uint16{443}, Weight: 1, HostPatterns: []string{"*.example.org"}, EdgeStaticKeyHex: testEdgeKeyHex},
	}
	sel := New(newTestState(t, entries))

	res, err := sel.Select("www.example.org")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Entry.ID != "specific" {
		t.Fatalf("expected the specific pattern to win, got %s", res.Entry.ID)
	}
}

func TestSelectDeprioritizesRecentFailure(t *testing.T) {
	entries := []catalog.DecoyEntry{
		{ID: "a", Host: "a.cdn", Ports: []uint16{443}, Weight: 1, HostPatterns: []string{"*"}, EdgeStaticKeyHex: testEdgeKeyHex},
		{ID: "b", Host: "b.cdn", Ports: []uint16{443}, Weight: 1, HostPatterns: []string{"*"}, EdgeStaticKeyHex: testEdgeKeyHex},
	}
	sel := New(newTestState(t, entries))
	sel.RecordFailure("a")

	for i := 0; i < 20; i++ {
		res, err := sel.Select("example.org")
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if res.Entry.ID == "a" {
			t.Fatalf("deprioritized decoy was selected")
		}
	}
}

func TestSelectFallsBackWhenAllDeprioritized(t *testing.T) {
	entries := []catalog.DecoyEntry{
		{ID: "only", Host: "only.cdn", Ports: []uint16{443}, Weight: 1, HostPatterns: []string{"*"}, EdgeStaticKeyHex: testEdgeKeyHex},
	}
	sel := New(newTestState(t, entries))
	sel.RecordFailure("only")

	res, err := sel.Select("example.org")
	if err != nil {
		t.Fatalf("expected fallback to the only candidate, got error: %v", err)
	}
	if res.Entry.ID != "only" {
		t.Fatalf("unexpected entry %s", res.Entry.ID)
	}
}
