package handshake

import "crypto/sha256"

// Transcript is a running hash of every handshake message exchanged so
// far. It is created at handshake start, mutated only by the handshake
// state machine, finalized once both sides reach Transport, and discarded
// immediately after — it never outlives the handshake itself.
type Transcript struct {
	hash [32]byte
}

// NewTranscript seeds a transcript with a fixed, public initial value so
// both sides start from identical state.
func NewTranscript(label string) *Transcript {
	t := &Transcript{hash: sha256.Sum256([]byte("htx transcript v1: " + label))}
	return t
}

// Mix folds data into the running hash.
func (t *Transcript) Mix(data []byte) {
	h := sha256.New()
	h.Write(t.hash[:])
	h.Write(data)
	h.Sum(t.hash[:0])
}

// Sum returns the current transcript hash without mutating it.
func (t *Transcript) Sum() [32]byte { return t.hash }

// Clear zeroes the transcript hash. Neither RunInner calls it: each keeps
// its transcript in a local variable that is dropped when RunInner returns.
func (t *Transcript) Clear() { t.hash = [32]byte{} }
