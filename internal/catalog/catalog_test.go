package catalog

import (
	"crypto/ed25519"
	"testing"
	"time"
)

func testDoc(version uint64) Document {
	return Document{
		SchemaVersion:  1,
		CatalogVersion: version,
		GeneratedAt:    time.Now().Add(-time.Hour),
		ExpiresAt:      time.Now().Add(24 * time.Hour),
		PublisherID:    "pub-1",
		UpdateURLs:     []string{"https://mirror.example/catalog"},
		Entries: []DecoyEntry{
			{ID: "d1", Host: "decoy.example", Ports: []uint16{443}, Protocols: []string{"tls"}, ALPN: []string{"h2"}, Weight: 10, HostPatterns: []string{"*.example"}},
		},
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	v, err := NewVerifier(pub)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	w := Sign(testDoc(1), "^1.0.0", priv)
	doc, err := v.Verify(&w)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if doc.CatalogVersion != 1 {
		t.Fatalf("unexpected version %d", doc.CatalogVersion)
	}
}

func TestVerifyRejectsTamperedDocument(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	v, _ := NewVerifier(pub)

	w := Sign(testDoc(1), "", priv)
	w.PublisherID = "attacker"

	if _, err := v.Verify(&w); err == nil {
		t.Fatalf("expected tampered document to fail verification")
	}
}

func TestVerifyRejectsIncompatibleSchema(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	v, _ := NewVerifier(pub)

	w := Sign(testDoc(1), ">=99.0.0", priv)
	if _, err := v.Verify(&w); err == nil {
		t.Fatalf("expected schema_compat constraint to reject this build")
	}
}

func TestCheckAcceptableRejectsVersionRegression(t *testing.T) {
	active := testDoc(5)
	candidate := testDoc(5)
	if err := CheckAcceptable(&candidate, &active, time.Now()); err == nil {
		t.Fatalf("expected equal version to be rejected")
	}

	older := testDoc(4)
	if err := CheckAcceptable(&older, &active, time.Now()); err == nil {
		t.Fatalf("expected lower version to be rejected")
	}

	newer := testDoc(6)
	if err := CheckAcceptable(&newer, &active, time.Now()); err != nil {
		t.Fatalf("expected higher version to be accepted: %v", err)
	}
}

func TestCheckAcceptableRejectsExpired(t *testing.T) {
	doc := testDoc(1)
	doc.ExpiresAt = time.Now().Add(-time.Hour)
	if err := CheckAcceptable(&doc, nil, time.Now()); err == nil {
		t.Fatalf("expected expired candidate to be rejected")
	}
}
