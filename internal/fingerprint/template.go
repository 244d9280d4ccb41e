// Package fingerprint calibrates and caches Templates: canonicalized
// descriptions of a decoy origin's TLS 1.3 ClientHello surface, captured by
// performing a real handshake and recording the ordered fields of the
// ClientHelloSpec the local stack used to mimic that origin's profile.
package fingerprint

import (
	"time"

	"github.com/veilproto/htx/internal/canon"
	"github.com/veilproto/htx/internal/htxcrypto"
)

// TemplateSchema tags the in-memory/on-disk encoding of Template itself, so
// a future calibrator version can refuse a cache entry written by an older,
// incompatible encoder instead of silently misinterpreting it.
const TemplateSchema = "v1.0.0"

// Template is an immutable, captured description of an origin's TLS 1.3
// handshake surface.
type Template struct {
	TemplateID          [32]byte
	TemplateSchema      string
	TLSVersion          uint16
	CipherSuites        []uint16
	Extensions          []uint16
	NamedGroups         []uint16
	ECPointFormats      []uint8
	SignatureAlgorithms []uint16
	ALPN                []string
	CapturedAt          time.Time
	Origin              string
}

// CanonicalEncode produces the deterministic byte string this Template's
// template_id is computed over. Field order is fixed; two Templates with
// the same semantic content always encode identically.
func (t *Template) CanonicalEncode() []byte {
	e := canon.NewEncoder(256)
	e.String(t.TemplateSchema)
	e.Uint(uint64(t.TLSVersion))
	e.UintList(t.CipherSuites)
	e.UintList(t.Extensions)
	e.UintList(t.NamedGroups)

	pf := make([]uint16, len(t.ECPointFormats))
	for i, b := range t.ECPointFormats {
		pf[i] = uint16(b)
	}
	e.UintList(pf)
	e.UintList(t.SignatureAlgorithms)
	e.StringList(t.ALPN)
	e.String(t.Origin)
	return e.Bytes()
}

// ComputeID sets and returns TemplateID = SHA-256(CanonicalEncode(t)).
func (t *Template) ComputeID() [32]byte {
	t.TemplateID = htxcrypto.SHA256(t.CanonicalEncode())
	return t.TemplateID
}
