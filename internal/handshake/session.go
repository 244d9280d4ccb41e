// Package handshake implements the HTX inner handshake: a three-message,
// mutually-authenticated key agreement carried over stream 0 of an
// already-established outer TLS connection, bound to that connection's
// fingerprint via a TLS exporter keyed by template_id.
package handshake

import "github.com/veilproto/htx/internal/htxcrypto"

// State enumerates the inner handshake's progress. Transitions are strictly
// forward except into one of the three terminal failure states.
type State uint8

const (
	Idle State = iota
	OuterHandshaking
	InnerMsg1Sent
	InnerMsg2Received
	InnerMsg3Sent
	Transport
	OuterFailed
	InnerAuthFailed
	TranscriptMismatch
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case OuterHandshaking:
		return "OuterHandshaking"
	case InnerMsg1Sent:
		return "InnerMsg1Sent"
	case InnerMsg2Received:
		return "InnerMsg2Received"
	case InnerMsg3Sent:
		return "InnerMsg3Sent"
	case Transport:
		return "Transport"
	case OuterFailed:
		return "OuterFailed"
	case InnerAuthFailed:
		return "InnerAuthFailed"
	case TranscriptMismatch:
		return "TranscriptMismatch"
	default:
		return "Unknown"
	}
}

func (s State) Terminal() bool {
	switch s {
	case Transport, OuterFailed, InnerAuthFailed, TranscriptMismatch:
		return true
	default:
		return false
	}
}

// StaticIdentity is a persistent X25519 keypair identifying one side of the
// inner handshake across many connections.
type StaticIdentity struct {
	Pub  [32]byte
	Priv [32]byte
}

// GenerateStaticIdentity produces a fresh persistent identity keypair, for
// first-run provisioning of the helper's inner identity.
func GenerateStaticIdentity() (StaticIdentity, error) {
	pub, priv, err := htxcrypto.GenerateStatic()
	if err != nil {
		return StaticIdentity{}, err
	}
	return StaticIdentity{Pub: pub, Priv: priv}, nil
}

// Zero overwrites the private half of id.
func (id *StaticIdentity) Zero() { htxcrypto.Zeroize(id.Priv[:]) }

// SessionKeys is the pair of directional AEAD keys the inner handshake
// hands off to the frame codec once it reaches Transport.
type SessionKeys struct {
	ClientToServer [32]byte
	ServerToClient [32]byte
}

// Zero overwrites both directional keys.
func (k *SessionKeys) Zero() {
	htxcrypto.Zeroize(k.ClientToServer[:])
	htxcrypto.Zeroize(k.ServerToClient[:])
}

// Result is the successful outcome of a completed inner handshake.
type Result struct {
	Keys         SessionKeys
	RemoteStatic [32]byte
}
