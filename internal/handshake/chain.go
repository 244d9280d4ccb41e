package handshake

import "github.com/veilproto/htx/internal/htxcrypto"

// chain accumulates Diffie-Hellman outputs across the inner handshake the
// same way the noise-protocol key schedules this design is modeled on
// chain a mix key forward: each new DH result is appended to the input
// keying material, never replacing what came before, so every derived key
// depends on the full history of secrets established so far.
type chain struct {
	ikm []byte
}

func newChain() *chain { return &chain{} }

func (c *chain) mix(dh [32]byte) {
	c.ikm = append(c.ikm, dh[:]...)
}

// derive produces a fresh key bound to the current chain, a transcript
// position and a purpose label, so keys used for different messages or
// roles never collide even when the underlying DH secrets repeat.
func (c *chain) derive(transcript [32]byte, info string) ([32]byte, error) {
	out, err := htxcrypto.HKDFExpand(c.ikm, transcript[:], []byte(info), 32)
	var key [32]byte
	if err != nil {
		return key, err
	}
	copy(key[:], out)
	return key, nil
}

func (c *chain) zero() { htxcrypto.Zeroize(c.ikm) }

// deriveSessionKeys produces the two directional transport keys from the
// fully-mixed chain and the final transcript hash, the last step of both
// roles' handshake.
func deriveSessionKeys(c *chain, transcript [32]byte) (*SessionKeys, error) {
	c2s, err := c.derive(transcript, "htx session c2s")
	if err != nil {
		return nil, err
	}
	s2c, err := c.derive(transcript, "htx session s2c")
	if err != nil {
		return nil, err
	}
	return &SessionKeys{ClientToServer: c2s, ServerToClient: s2c}, nil
}
