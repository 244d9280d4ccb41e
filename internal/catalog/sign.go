package catalog

import (
	"crypto/ed25519"
	"encoding/hex"
)

// Sign produces the Wire envelope for doc, signed by priv. It exists
// alongside Verifier mainly for tests and operator tooling that mint
// catalogs; the production path only ever verifies.
func Sign(doc Document, schemaCompat string, priv ed25519.PrivateKey) Wire {
	sig := ed25519.Sign(priv, doc.CanonicalEncode())
	return Wire{
		SchemaCompat: schemaCompat,
		Document:     doc,
		SignatureHex: hex.EncodeToString(sig),
	}
}
