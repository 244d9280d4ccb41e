package htxcrypto

import (
	"crypto/ed25519"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/veilproto/htx/internal/xerrors"
)

// GenerateX25519Keypair returns a fresh ephemeral X25519 keypair. Called
// only for private keys that never appear on the wire themselves (only
// their public counterparts do).
func GenerateX25519Keypair() (pub, priv [32]byte, err error) {
	raw, genErr := RandomBytes(32)
	if genErr != nil {
		return pub, priv, genErr
	}
	copy(priv[:], raw)
	Zeroize(raw)

	curve25519.ScalarBaseMult(&pub, &priv)
	return pub, priv, nil
}

// GenerateStatic returns a fresh X25519 keypair intended for long-term use
// as a helper's or edge's persistent inner handshake identity, as opposed
// to the single-handshake ephemeral keys GenerateX25519Keypair also
// produces. The two share an implementation; the separate name documents
// intent at call sites and in on-disk key material tooling.
func GenerateStatic() (pub, priv [32]byte, err error) {
	return GenerateX25519Keypair()
}

// DH performs the X25519 scalar multiplication priv*pub, rejecting
// low-order / all-zero results with xerrors.KindInvalidPoint rather than
// silently returning a degenerate shared secret.
func DH(priv, pub [32]byte) ([32]byte, error) {
	var shared [32]byte
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return shared, xerrors.Wrap(xerrors.KindInvalidPoint, "htxcrypto", "x25519 scalarmult failed", err)
	}
	copy(shared[:], out)

	var zero [32]byte
	if shared == zero {
		return shared, xerrors.New(xerrors.KindInvalidPoint, "htxcrypto", "all-zero shared secret")
	}
	return shared, nil
}

// HKDFExpand derives outLen bytes from ikm/salt/info using HKDF-SHA256, the
// key schedule primitive used throughout the handshake and for KEY_UPDATE
// derivation.
func HKDFExpand(ikm, salt, info []byte, outLen int) ([]byte, error) {
	r := hkdf.New(newSHA256, ikm, salt, info)
	out := make([]byte, outLen)
	if _, err := r.Read(out); err != nil {
		return nil, xerrors.Wrap(xerrors.KindStateInvariantViolated, "htxcrypto", "hkdf expand failed", err)
	}
	return out, nil
}

// GenerateEd25519Keypair returns a fresh Ed25519 signing keypair, such as a
// catalog publisher key. The helper's inner static identity is an X25519
// keypair from GenerateStatic, not one of these.
func GenerateEd25519Keypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.KindIO, "htxcrypto", "ed25519 keygen failed", err)
	}
	return pub, priv, nil
}

// Sign produces an Ed25519 signature over msg.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte { return ed25519.Sign(priv, msg) }

// Verify reports whether sig is a valid Ed25519 signature over msg under
// pub, surfacing a distinct BadSignature kind on failure per the crypto
// primitives contract (BadSignature vs InvalidPoint are never conflated).
func Verify(pub ed25519.PublicKey, msg, sig []byte) error {
	if !ed25519.Verify(pub, msg, sig) {
		return xerrors.New(xerrors.KindBadSignature, "htxcrypto", "ed25519 verification failed")
	}
	return nil
}
