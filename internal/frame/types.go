// Package frame implements the HTX wire frame: a length-prefixed, typed,
// AEAD-sealed unit with monotonic per-epoch nonces and a three-frame
// KEY_UPDATE overlap window. The codec here produces and consumes frames
// only — it has no notion of streams, flow control or connection state;
// that lives in the multiplexer.
package frame

import "github.com/veilproto/htx/internal/xerrors"

// Type is the 8-bit frame type tag.
type Type uint8

const (
	TypeData Type = iota
	TypeWindowUpdate
	TypeStreamOpen
	TypeStreamClose
	TypeKeyUpdate
	TypePing
	TypePong
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeWindowUpdate:
		return "WINDOW_UPDATE"
	case TypeStreamOpen:
		return "STREAM_OPEN"
	case TypeStreamClose:
		return "STREAM_CLOSE"
	case TypeKeyUpdate:
		return "KEY_UPDATE"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

const (
	// LengthFieldSize is the size in bytes of the big-endian frame length
	// prefix. It is a 24-bit field, so MaxFrameLen is its largest value.
	LengthFieldSize = 3
	// MaxFrameLen is the largest value the 24-bit length field can hold
	// (2^24 - 1). A frame whose length would need 2^24 is rejected at
	// encode time with OversizedFrame; it is never put on the wire.
	MaxFrameLen = 1<<24 - 1
	// HeaderSize is the fixed-size header following the length prefix:
	// 1-byte type + 4-byte stream id.
	HeaderSize = 1 + 4
	// TagSize is the AEAD authentication tag length.
	TagSize = 16
	// NonceSize is the AEAD nonce length: a 4-byte direction prefix plus
	// an 8-byte big-endian counter.
	NonceSize = 12

	// RekeyThreshold is the send counter value at which a KEY_UPDATE must
	// be initiated, per the frame codec's counter-exhaustion rule.
	RekeyThreshold = 1 << 31

	// KeyUpdateOverlapFrames is the number of frames (inclusive of the
	// KEY_UPDATE frame itself) during which the receiver accepts both the
	// old and the new epoch's keys.
	KeyUpdateOverlapFrames = 3
	// KeyUpdateOldKeyGraceFrames is how many additional frames after the
	// KEY_UPDATE frame the sender may still emit under the old key, to
	// drain already-queued frames.
	KeyUpdateOldKeyGraceFrames = 2
)

// Frame is the decoded, plaintext representation of one HTX wire unit.
type Frame struct {
	Type     Type
	StreamID uint32
	Payload  []byte
}

// Direction distinguishes the two independently-keyed traffic flows of a
// single HTX connection.
type Direction uint8

const (
	ClientToServer Direction = iota
	ServerToClient
)

func errShortFrame(detail string) error {
	return xerrors.New(xerrors.KindShortFrame, "frame", detail)
}

func errOversizedFrame(detail string) error {
	return xerrors.New(xerrors.KindOversizedFrame, "frame", detail)
}

func errInvalidFrame(detail string) error {
	return xerrors.New(xerrors.KindInvalidFrame, "frame", detail)
}
