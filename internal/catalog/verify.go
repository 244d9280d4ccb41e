package catalog

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/veilproto/htx/internal/htxcrypto"
	"github.com/veilproto/htx/internal/xerrors"
)

// buildSchemaVersion is the publisher schema generation this build
// implements. A catalog whose schema_compat constraint this version does
// not satisfy is rejected before signature verification even runs, so an
// incompatible publisher generation never reaches the crypto path at all.
const buildSchemaVersion = "1.0.0"

// Verifier checks catalog wire envelopes against a small, rotatable set of
// pinned Ed25519 publisher keys.
type Verifier struct {
	publisherKeys []ed25519.PublicKey
	insecure      bool
}

// NewVerifier returns a Verifier pinned to 1-3 publisher keys, supporting
// key rotation by accepting a signature from any of them.
func NewVerifier(keys ...ed25519.PublicKey) (*Verifier, error) {
	if len(keys) < 1 || len(keys) > 3 {
		return nil, xerrors.New(xerrors.KindStateInvariantViolated, "catalog", "verifier requires 1-3 publisher keys")
	}
	return &Verifier{publisherKeys: keys}, nil
}

// NewInsecureVerifier returns a Verifier that accepts any catalog without
// checking a signature. It exists solely for the CATALOG_ALLOW_UNSIGNED dev
// toggle (internal/config), which is compiled out of release builds, so
// this constructor's call site can only ever be reached from a devtoggles
// build.
func NewInsecureVerifier() *Verifier { return &Verifier{insecure: true} }

// Verify checks w's schema compatibility and Ed25519 signature, returning
// the verified Document on success.
func (v *Verifier) Verify(w *Wire) (*Document, error) {
	if v.insecure {
		return &w.Document, nil
	}
	if w.SchemaCompat != "" {
		constraint, err := semver.NewConstraint(w.SchemaCompat)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindSchemaMismatch, "catalog", "malformed schema_compat constraint", err)
		}
		build, err := semver.NewVersion(buildSchemaVersion)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindStateInvariantViolated, "catalog", "invalid build schema version", err)
		}
		if !constraint.Check(build) {
			return nil, xerrors.New(xerrors.KindSchemaMismatch, "catalog", "publisher schema_compat excludes this build")
		}
	}

	sig, err := hex.DecodeString(w.SignatureHex)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindBadSignature, "catalog", "malformed signature_hex", err)
	}

	msg := w.CanonicalEncode()
	var lastErr error
	for _, pub := range v.publisherKeys {
		if err := htxcrypto.Verify(pub, msg, sig); err == nil {
			return &w.Document, nil
		} else {
			lastErr = err
		}
	}
	return nil, xerrors.Wrap(xerrors.KindBadSignature, "catalog", "no pinned publisher key verified this catalog", lastErr)
}

// CheckAcceptable enforces the monotonic-version and expiry invariants a
// verified candidate must satisfy before it may replace active.
func CheckAcceptable(candidate, active *Document, now time.Time) error {
	if active != nil && candidate.CatalogVersion <= active.CatalogVersion {
		return xerrors.New(xerrors.KindVersionRegression, "catalog", "candidate version does not exceed active")
	}
	if !now.Before(candidate.ExpiresAt) {
		return xerrors.New(xerrors.KindExpired, "catalog", "candidate already expired")
	}
	return nil
}
