// Package bootstrap holds the helper's first-run fallback state: the
// bundled decoy catalog shipped inside the binary and the pinned publisher
// key(s) used to verify both it and every later mirror fetch.
package bootstrap

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"github.com/veilproto/htx/internal/catalog"
	"github.com/veilproto/htx/internal/xerrors"
)

// publisherPubKeyHex is the seed publisher's Ed25519 public key. Catalog
// rotation (§4.7) is supported by NewVerifier accepting up to three keys;
// only one ships in this build until a rotation is scheduled.
const publisherPubKeyHex = "0456c512b7e9bc6e0790b604591f52ae313b2567b8b07c4142fb9bfd3c4220f1"

// bundledGeneratedAt / bundledExpiresAt are Unix seconds, not
// computed at build time: the bundled catalog is a fixed, signed artifact
// produced once by the publisher's release pipeline and embedded verbatim,
// the same way the decoy directory any real release ships is never
// regenerated by the binary that serves it.
const (
	bundledGeneratedAt = 1780272000
	bundledExpiresAt   = 1938038400
)

const bundledEdgeStaticKeyHex = "b8e80d1889d8e2ab1c0c7be389aa78bbaabac304a41912e4770b8f8c78b23bd9"

const bundledSignatureHex = "7a7bc90e65bf1e013850bf939392281fc35be7a2ee7bb25a81e5b307ec6e2ac" +
	"bf491239f353d80dc4c69a138b85c53c15b5d6f4119a6fa3edcea49d82488d20b"

// Document returns the bundled catalog's signed inner document, the one
// used to compute bundledSignatureHex; its field values must never be
// edited without re-signing.
func Document() catalog.Document {
	return catalog.Document{
		SchemaVersion:    1,
		CatalogVersion:   1,
		GeneratedAt:      time.Unix(bundledGeneratedAt, 0).UTC(),
		ExpiresAt:        time.Unix(bundledExpiresAt, 0).UTC(),
		PublisherID:      "veilproto-seed",
		UpdateURLs:       []string{"https://catalog.veilproto.net/v1/catalog"},
		SeedFallbackURLs: []string{"https://veilproto.github.io/catalog/v1/catalog"},
		Entries: []catalog.DecoyEntry{
			{
				ID:               "seed-cdn-a",
				Host:             "static.cdn-example.net",
				Ports:            []uint16{443},
				Protocols:        []string{"h2", "http/1.1"},
				ALPN:             []string{"h2", "http/1.1"},
				Region:           "global",
				Weight:           10,
				HealthPath:       "/favicon.ico",
				TLSProfile:       "chrome-auto",
				HostPatterns:     []string{"*"},
				EdgeStaticKeyHex: bundledEdgeStaticKeyHex,
			},
		},
	}
}

// Wire returns the bundled catalog's full signed wire envelope.
func Wire() catalog.Wire {
	return catalog.Wire{
		Document:     Document(),
		SignatureHex: bundledSignatureHex,
	}
}

// Verifier returns the Verifier pinned to this build's publisher key(s).
func Verifier() (*catalog.Verifier, error) {
	raw, err := hex.DecodeString(publisherPubKeyHex)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, xerrors.Wrap(xerrors.KindStateInvariantViolated, "bootstrap", "malformed pinned publisher key", err)
	}
	return catalog.NewVerifier(ed25519.PublicKey(raw))
}
