package handshake

import (
	"context"
	"io"

	"github.com/veilproto/htx/internal/frame"
	"github.com/veilproto/htx/internal/htxcrypto"
	"github.com/veilproto/htx/internal/xerrors"
)

var zeroNonce [htxcrypto.NonceSize]byte

// Initiator drives the client side of the inner handshake: the role that
// dials out, mirrors a decoy's fingerprint on the outer connection, and
// speaks first on the inner channel.
type Initiator struct {
	Identity     StaticIdentity
	RemoteStatic [32]byte // pinned edge identity, known in advance
}

// RunInner executes the three-message inner exchange over conn, which must
// already be the live outer TLS connection (or, in tests, any
// io.ReadWriter standing in for one) carrying stream 0 traffic sealed
// under bootstrapKey. On success it returns the derived transport session
// keys; conn is left positioned immediately after the third message.
func (in *Initiator) RunInner(ctx context.Context, conn io.ReadWriter, bootstrapKey [32]byte) (*Result, State, error) {
	send := frame.NewSendState(frame.ClientToServer, bootstrapKey)
	recv := frame.NewRecvState(frame.ServerToClient, bootstrapKey)
	defer send.Close()
	defer recv.Close()

	tr := NewTranscript("inner handshake")
	c := newChain()
	defer c.zero()

	ePub, ePriv, err := htxcrypto.GenerateX25519Keypair()
	if err != nil {
		return nil, OuterFailed, err
	}
	defer htxcrypto.Zeroize(ePriv[:])

	msg1 := ePub[:]
	if err := writeFrame(conn, send, msg1); err != nil {
		return nil, OuterFailed, err
	}
	tr.Mix(msg1)
	t1 := tr.Sum()

	msg2, err := readFrame(conn, recv)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	if len(msg2) != 32+32+htxcrypto.TagSize {
		return nil, InnerAuthFailed, xerrors.New(xerrors.KindInvalidFrame, "handshake", "malformed message 2")
	}
	var eRPub [32]byte
	copy(eRPub[:], msg2[:32])
	cipherStaticR := msg2[32:]

	ss1, err := htxcrypto.DH(ePriv, eRPub)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	ss2, err := htxcrypto.DH(ePriv, in.RemoteStatic)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	c.mix(ss1)
	c.mix(ss2)

	k2, err := c.derive(t1, "htx msg2 static")
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	revealedStaticR, err := htxcrypto.Open(nil, k2[:], zeroNonce[:], nil, cipherStaticR)
	htxcrypto.Zeroize(k2[:])
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	if [32]byte(revealedStaticR) != in.RemoteStatic {
		return nil, InnerAuthFailed, xerrors.New(xerrors.KindAuthFailed, "handshake", "responder static key mismatch")
	}

	tr.Mix(msg2)
	t2 := tr.Sum()

	ss3, err := htxcrypto.DH(in.Identity.Priv, in.RemoteStatic)
	if err != nil {
		return nil, InnerAuthFailed, err
	}

	k3a, err := c.derive(t2, "htx msg3 static")
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	cipherStaticI, err := htxcrypto.Seal(nil, k3a[:], zeroNonce[:], nil, in.Identity.Pub[:])
	htxcrypto.Zeroize(k3a[:])
	if err != nil {
		return nil, InnerAuthFailed, err
	}

	tr.Mix(cipherStaticI)
	t3 := tr.Sum()
	c.mix(ss3)

	k3b, err := c.derive(t3, "htx msg3 confirm")
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	cipherConfirm, err := htxcrypto.Seal(nil, k3b[:], zeroNonce[:], nil, t3[:])
	htxcrypto.Zeroize(k3b[:])
	if err != nil {
		return nil, InnerAuthFailed, err
	}

	msg3 := append(append([]byte{}, cipherStaticI...), cipherConfirm...)
	if err := writeFrame(conn, send, msg3); err != nil {
		return nil, OuterFailed, err
	}
	tr.Mix(msg3)
	t4 := tr.Sum()

	keys, err := deriveSessionKeys(c, t4)
	if err != nil {
		return nil, InnerAuthFailed, err
	}
	return &Result{Keys: *keys, RemoteStatic: in.RemoteStatic}, Transport, nil
}
