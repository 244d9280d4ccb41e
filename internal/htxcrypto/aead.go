// Package htxcrypto wraps the constant-time primitives HTX relies on:
// ChaCha20-Poly1305 AEAD, Ed25519 signing, X25519 DH and HKDF-SHA256. It is
// the only package in the module allowed to touch raw key material; every
// other package talks to it through this narrow contract.
//
// Nonces are never chosen here. The frame codec derives them deterministically
// from (direction, epoch, counter) and passes them in; this package never
// calls crypto/rand for anything that ends up on the wire.
package htxcrypto

import (
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/veilproto/htx/internal/xerrors"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
	TagSize   = 16
)

// Seal encrypts and authenticates pt under key/nonce/aad, appending the
// 16-byte tag. key must be KeySize bytes and nonce NonceSize bytes; dst may
// be nil or a reused scratch buffer with enough spare capacity.
func Seal(dst, key, nonce, aad, pt []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindStateInvariantViolated, "htxcrypto", "bad key length", err)
	}
	if len(nonce) != NonceSize {
		return nil, xerrors.New(xerrors.KindStateInvariantViolated, "htxcrypto", "bad nonce length")
	}
	return aead.Seal(dst, nonce, pt, aad), nil
}

// Open authenticates and decrypts ct under key/nonce/aad. A failed tag
// check surfaces as xerrors.KindAuthFailed, never as a generic error, so
// callers can treat it uniformly per the frame codec's decode contract.
func Open(dst, key, nonce, aad, ct []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindStateInvariantViolated, "htxcrypto", "bad key length", err)
	}
	if len(nonce) != NonceSize {
		return nil, xerrors.New(xerrors.KindStateInvariantViolated, "htxcrypto", "bad nonce length")
	}
	pt, err := aead.Open(dst, nonce, ct, aad)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindAuthFailed, "htxcrypto", "tag mismatch", err)
	}
	return pt, nil
}

// RandomBytes fills and returns a buffer of n cryptographically random
// bytes. It must only be used for ephemeral private key material, never for
// anything observed on the wire.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, "htxcrypto", "csprng read failed", err)
	}
	return buf, nil
}

// Zeroize overwrites buf with zeros in place. Session keys, frame epoch
// keys and the handshake key chain call it from their Zero/Close methods;
// the handshake wipes its ephemeral private scalars with it directly.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
