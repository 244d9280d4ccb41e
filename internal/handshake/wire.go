package handshake

import (
	"io"

	"github.com/veilproto/htx/internal/frame"
	"github.com/veilproto/htx/internal/xerrors"
)

// bootstrapStreamID is the well-known stream the three inner handshake
// messages travel on, before the multiplexer exists to hand out real
// stream ids.
const bootstrapStreamID = 0

// writeFrame seals payload with ss and writes the length-prefixed wire
// frame to w in a single call, matching the on-wire layout frame.Decode
// expects on the read side.
func writeFrame(w io.Writer, ss *frame.SendState, payload []byte) error {
	encoded, _, err := ss.Encode(nil, frame.TypeData, bootstrapStreamID, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(encoded)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, "handshake", "write frame failed", err)
	}
	return nil
}

// readFrame reads one length-prefixed wire frame from r and opens it with
// rs, returning the handshake message plaintext.
func readFrame(r io.Reader, rs *frame.RecvState) ([]byte, error) {
	var lenBuf [frame.LengthFieldSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, "handshake", "read length prefix failed", err)
	}
	n := frame.ParseLength(lenBuf)
	if n < frame.HeaderSize+frame.TagSize || n > frame.MaxFrameLen {
		return nil, xerrors.New(xerrors.KindInvalidFrame, "handshake", "invalid bootstrap frame length")
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, "handshake", "read frame body failed", err)
	}

	f, err := rs.Decode(raw)
	if err != nil {
		return nil, err
	}
	return f.Payload, nil
}
