// Package catalog loads, verifies, persists and periodically refreshes
// the signed decoy directory: the set of cover-traffic origins the
// selector chooses from.
package catalog

import (
	"time"

	"github.com/veilproto/htx/internal/canon"
)

// GraceWindow is how long an expired catalog may still serve, with a
// logged warning, before it is treated as unusable.
const GraceWindow = 48 * time.Hour

// DecoyEntry describes one candidate cover-traffic origin.
type DecoyEntry struct {
	ID           string   `json:"id"`
	Host         string   `json:"host"`
	Ports        []uint16 `json:"ports"`
	Protocols    []string `json:"protocols"`
	ALPN         []string `json:"alpn"`
	Region       string   `json:"region"`
	Weight       uint32   `json:"weight"`
	HealthPath   string   `json:"health_path"`
	TLSProfile   string   `json:"tls_profile"`
	HostPatterns []string `json:"host_patterns"`
	// EdgeStaticKeyHex pins the inner handshake's responder identity for
	// this decoy: the hex-encoded X25519 static public key the edge behind
	// the decoy's outer TLS surface will present in handshake Message 2.
	// Carried inside the signed document rather than fetched separately,
	// since the catalog is already the trust root for everything else
	// about a decoy.
	EdgeStaticKeyHex string `json:"edge_static_key"`
}

func (e *DecoyEntry) canonicalEncode(enc *canon.Encoder) {
	enc.String(e.ID)
	enc.String(e.Host)
	enc.UintList(e.Ports)
	enc.StringList(e.Protocols)
	enc.StringList(e.ALPN)
	enc.String(e.Region)
	enc.Uint(uint64(e.Weight))
	enc.String(e.HealthPath)
	enc.String(e.TLSProfile)
	enc.StringList(e.HostPatterns)
	enc.String(e.EdgeStaticKeyHex)
}

// Document is the signed inner object of a catalog: everything that
// participates in canonicalization and signature verification.
type Document struct {
	SchemaVersion    uint32       `json:"schema_version"`
	CatalogVersion   uint64       `json:"catalog_version"`
	GeneratedAt      time.Time    `json:"generated_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
	PublisherID      string       `json:"publisher_id"`
	UpdateURLs       []string     `json:"update_urls"`
	SeedFallbackURLs []string     `json:"seed_fallback_urls,omitempty"`
	Entries          []DecoyEntry `json:"entries"`
}

// CanonicalEncode produces the deterministic bytes a signature is computed
// and verified over. Field order is fixed.
func (d *Document) CanonicalEncode() []byte {
	enc := canon.NewEncoder(1024)
	enc.Uint(uint64(d.SchemaVersion))
	enc.Uint(d.CatalogVersion)
	enc.Uint(uint64(d.GeneratedAt.Unix()))
	enc.Uint(uint64(d.ExpiresAt.Unix()))
	enc.String(d.PublisherID)
	enc.StringList(d.UpdateURLs)
	enc.StringList(d.SeedFallbackURLs)

	sub := canon.NewEncoder(512)
	sub.Uint(uint64(len(d.Entries)))
	for i := range d.Entries {
		d.Entries[i].canonicalEncode(sub)
	}
	enc.Sub(sub)
	return enc.Bytes()
}

// Wire is the on-the-wire envelope: the signed Document's fields, flattened
// into one textual object per §6, plus the two fields that sit outside the
// signature — schema_compat (checked before verification even runs) and
// signature_hex itself (stripped before canonicalization).
type Wire struct {
	Document
	SchemaCompat string `json:"schema_compat,omitempty"`
	SignatureHex string `json:"signature_hex,omitempty"`
}

// Catalog is one verified, loaded catalog together with the provenance
// metadata the status endpoint reports.
type Catalog struct {
	Doc    Document
	Source string // "bundled", "cached", "remote"
}

func (c *Catalog) Expired(now time.Time) bool { return now.After(c.Doc.ExpiresAt) }

func (c *Catalog) UsableWithinGrace(now time.Time) bool {
	return now.Before(c.Doc.ExpiresAt.Add(GraceWindow))
}
