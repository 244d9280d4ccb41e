package htxcrypto

import (
	"crypto/sha256"
	"hash"
)

func newSHA256() hash.Hash { return sha256.New() }

// SHA256 returns the SHA-256 digest of data, used for template_id
// computation over canonically-encoded Templates.
func SHA256(data []byte) [32]byte { return sha256.Sum256(data) }
