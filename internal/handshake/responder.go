package handshake

import (
	"context"
	"io"

	"github.com/veilproto/htx/internal/frame"
	"github.com/veilproto/htx/internal/htxcrypto"
	"github.com/veilproto/htx/internal/xerrors"
)

// Responder drives the edge-terminator side of the inner handshake: the
// role that accepts a mirrored outer connection and speaks second on the
// inner channel.
type Responder struct {
	Identity StaticIdentity
	// AllowStatic, if non-nil, is consulted with the initiator's revealed
	// static public key once message 3 is decrypted; returning false fails
	// the handshake with InnerAuthFailed even though the cryptographic
	// exchange itself succeeded. A nil AllowStatic accepts any initiator
	// identity, leaving authorization to a higher layer.
	AllowStatic func(pub [32]byte) bool
}

// RunInner is the responder-side mirror of Initiator.RunInner.
func (re *Responder) RunInner(ctx context.Context, conn io.ReadWriter, bootstrapKey [32]byte) (*Result, State, error) {
	send := frame.NewSendState(frame.ServerToClient, bootstrapKey)
	recv := frame.NewRecvState(frame.ClientToServer, bootstrapKey)
	defer send.Close()
	defer recv.Close()

	tr := NewTranscript("inner handshake")
	c := newChain()
	defer c.zero()

	msg1, err := readFrame(conn, recv)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	if len(msg1) != 32 {
		return nil, InnerAuthFailed, xerrors.New(xerrors.KindInvalidFrame, "handshake", "malformed message 1")
	}
	var eIPub [32]byte
	copy(eIPub[:], msg1)
	tr.Mix(msg1)
	t1 := tr.Sum()

	eRPub, eRPriv, err := htxcrypto.GenerateX25519Keypair()
	if err != nil {
		return nil, OuterFailed, err
	}
	defer htxcrypto.Zeroize(eRPriv[:])

	ss1, err := htxcrypto.DH(eRPriv, eIPub)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	ss2, err := htxcrypto.DH(re.Identity.Priv, eIPub)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	c.mix(ss1)
	c.mix(ss2)

	k2, err := c.derive(t1, "htx msg2 static")
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	cipherStaticR, err := htxcrypto.Seal(nil, k2[:], zeroNonce[:], nil, re.Identity.Pub[:])
	htxcrypto.Zeroize(k2[:])
	if err != nil {
		return nil, InnerAuthFailed, err
	}

	msg2 := append(append([]byte{}, eRPub[:]...), cipherStaticR...)
	if err := writeFrame(conn, send, msg2); err != nil {
		return nil, OuterFailed, err
	}
	tr.Mix(msg2)
	t2 := tr.Sum()

	msg3, err := readFrame(conn, recv)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	wantLen := (32 + htxcrypto.TagSize) + (32 + htxcrypto.TagSize)
	if len(msg3) != wantLen {
		return nil, InnerAuthFailed, xerrors.New(xerrors.KindInvalidFrame, "handshake", "malformed message 3")
	}
	cipherStaticI := msg3[:32+htxcrypto.TagSize]
	cipherConfirm := msg3[32+htxcrypto.TagSize:]

	k3a, err := c.derive(t2, "htx msg3 static")
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	revealedStaticI, err := htxcrypto.Open(nil, k3a[:], zeroNonce[:], nil, cipherStaticI)
	htxcrypto.Zeroize(k3a[:])
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	var staticIPub [32]byte
	copy(staticIPub[:], revealedStaticI)

	if re.AllowStatic != nil && !re.AllowStatic(staticIPub) {
		return nil, InnerAuthFailed, xerrors.New(xerrors.KindAuthFailed, "handshake", "initiator static key not authorized")
	}

	tr.Mix(cipherStaticI)
	t3 := tr.Sum()

	ss3, err := htxcrypto.DH(re.Identity.Priv, staticIPub)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	c.mix(ss3)

	k3b, err := c.derive(t3, "htx msg3 confirm")
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	confirmPlain, err := htxcrypto.Open(nil, k3b[:], zeroNonce[:], nil, cipherConfirm)
	htxcrypto.Zeroize(k3b[:])
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	if [32]byte(confirmPlain) != t3 {
		return nil, TranscriptMismatch, xerrors.New(xerrors.KindAuthFailed, "handshake", "transcript confirm mismatch")
	}

	tr.Mix(msg3)
	t4 := tr.Sum()

	keys, err := deriveSessionKeys(c, t4)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	return &Result{Keys: *keys, RemoteStatic: staticIPub}, Transport, nil
}
