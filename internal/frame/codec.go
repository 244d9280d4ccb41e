package frame

import (
	"encoding/binary"

	"github.com/veilproto/htx/internal/htxcrypto"
	"github.com/veilproto/htx/internal/xerrors"
)

// directionPrefix values are public domain-separation constants, not
// secrets: they only ensure the two directions of one connection never
// reuse a (key, nonce) pair even when both sides briefly share an epoch
// number during a race-free KEY_UPDATE.
var (
	dirPrefixC2S = [4]byte{0x00, 0x00, 0x00, 0x01}
	dirPrefixS2C = [4]byte{0x00, 0x00, 0x00, 0x02}
)

func directionPrefix(d Direction) [4]byte {
	if d == ClientToServer {
		return dirPrefixC2S
	}
	return dirPrefixS2C
}

// EpochKeys is one directional AEAD key together with the epoch number it
// belongs to.
type EpochKeys struct {
	Key   [32]byte
	Epoch uint64
}

// Zero overwrites the key material in place.
func (k *EpochKeys) Zero() { htxcrypto.Zeroize(k.Key[:]) }

func aad(typ Type, streamID uint32, epoch, counter uint64) []byte {
	out := make([]byte, 0, 1+4+8+8)
	out = append(out, byte(typ))
	var sid [4]byte
	binary.BigEndian.PutUint32(sid[:], streamID)
	out = append(out, sid[:]...)
	var e [8]byte
	binary.BigEndian.PutUint64(e[:], epoch)
	out = append(out, e[:]...)
	var c [8]byte
	binary.BigEndian.PutUint64(c[:], counter)
	out = append(out, c[:]...)
	return out
}

func nonceFor(prefix [4]byte, counter uint64) []byte {
	n := make([]byte, NonceSize)
	copy(n[:4], prefix[:])
	binary.BigEndian.PutUint64(n[4:], counter)
	return n
}

// SendState is the exclusive owner of one direction's outbound AEAD key,
// epoch and monotonic send counter. It is never shared across HTX
// connections and never accessed outside its owning codec task.
type SendState struct {
	dir               Direction
	keys              EpochKeys
	counter           uint64
	pendingNew        *EpochKeys
	oldFramesRemaining int
}

// NewSendState constructs the send half of one direction, seeded with the
// epoch-0 key derived at the end of the HTX handshake.
func NewSendState(dir Direction, key [32]byte) *SendState {
	return &SendState{dir: dir, keys: EpochKeys{Key: key, Epoch: 0}}
}

// BeginKeyUpdate derives a new send key from the current key via HKDF over a
// fresh random nonce, and returns that nonce for inclusion in the
// KEY_UPDATE frame's payload so the receiver can derive the identical key.
// The KEY_UPDATE frame itself, and the two frames following it, are still
// sent under the old key; Encode handles that transition internally.
func (s *SendState) BeginKeyUpdate() ([]byte, error) {
	nonce, err := htxcrypto.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	newKey, err := htxcrypto.HKDFExpand(s.keys.Key[:], nonce, []byte("htx key-update"), 32)
	if err != nil {
		return nil, err
	}
	var ek EpochKeys
	copy(ek.Key[:], newKey)
	ek.Epoch = s.keys.Epoch + 1
	s.pendingNew = &ek
	s.oldFramesRemaining = KeyUpdateOverlapFrames
	return nonce, nil
}

// Encode seals payload into one HTX wire frame. dst, if non-nil and of
// sufficient capacity, is reused as the output buffer; the nonce, the
// associated data and the ciphertext are still allocated afresh for every
// frame. It returns the encoded bytes and
// whether the send counter has now reached the rekey threshold, in which
// case the caller (the multiplexer) must call BeginKeyUpdate before the
// next Encode.
func (s *SendState) Encode(dst []byte, typ Type, streamID uint32, payload []byte) ([]byte, bool, error) {
	usingOld := s.pendingNew != nil && s.oldFramesRemaining > 0

	key := s.keys.Key
	epoch := s.keys.Epoch
	counter := s.counter
	s.counter++

	ciphertext, err := htxcrypto.Seal(nil, key[:], nonceFor(directionPrefix(s.dir), counter), aad(typ, streamID, epoch, counter), payload)
	if err != nil {
		return nil, false, err
	}

	total := HeaderSize + len(ciphertext)
	if total > MaxFrameLen {
		return nil, false, errOversizedFrame("sealed frame exceeds 2^24-1 bytes")
	}

	out := dst[:0]
	if cap(out) < LengthFieldSize+total {
		out = make([]byte, 0, LengthFieldSize+total)
	}
	out = append(out, byte(total>>16), byte(total>>8), byte(total))
	out = append(out, byte(typ))
	var sid [4]byte
	binary.BigEndian.PutUint32(sid[:], streamID)
	out = append(out, sid[:]...)
	out = append(out, ciphertext...)

	if usingOld {
		s.oldFramesRemaining--
		if s.oldFramesRemaining == 0 {
			old := s.keys
			s.keys = *s.pendingNew
			s.pendingNew = nil
			s.counter = 0
			old.Zero()
		}
	}

	needsRekey := s.pendingNew == nil && s.counter >= RekeyThreshold
	return out, needsRekey, nil
}

// Close zeroes all key material held by the send state.
func (s *SendState) Close() {
	s.keys.Zero()
	if s.pendingNew != nil {
		s.pendingNew.Zero()
		s.pendingNew = nil
	}
}

type epochCounter struct {
	keys        EpochKeys
	nextCounter uint64
}

// RecvState is the exclusive owner of one direction's inbound AEAD
// key(s), accepting frames under the current epoch and, for a short
// overlap window after a KEY_UPDATE, the previous epoch too.
type RecvState struct {
	dir              Direction
	current          *epochCounter
	previous         *epochCounter
	overlapRemaining int
}

// NewRecvState constructs the receive half of one direction, seeded with
// the epoch-0 key derived at the end of the HTX handshake.
func NewRecvState(dir Direction, key [32]byte) *RecvState {
	return &RecvState{dir: dir, current: &epochCounter{keys: EpochKeys{Key: key, Epoch: 0}}}
}

// Decode parses and opens one wire frame whose length prefix has already
// been consumed by the caller; raw is the remaining type+streamid+ciphertext
// region. It returns a ShortFrame error if raw is truncated and AuthFailed if
// neither the current nor (within the overlap window) the previous epoch's
// key authenticates the frame.
func (r *RecvState) Decode(raw []byte) (Frame, error) {
	if len(raw) < HeaderSize+TagSize {
		return Frame{}, errShortFrame("frame shorter than header+tag")
	}

	typ := Type(raw[0])
	streamID := binary.BigEndian.Uint32(raw[1:5])
	ciphertext := raw[HeaderSize:]

	if pt, ok := r.tryOpen(r.current, typ, streamID, ciphertext); ok {
		r.consumeOverlap()
		return Frame{Type: typ, StreamID: streamID, Payload: pt}, nil
	}

	if r.previous != nil {
		if pt, ok := r.tryOpen(r.previous, typ, streamID, ciphertext); ok {
			r.consumeOverlap()
			return Frame{Type: typ, StreamID: streamID, Payload: pt}, nil
		}
	}

	return Frame{}, xerrors.New(xerrors.KindAuthFailed, "frame", "no epoch key authenticated frame")
}

func (r *RecvState) tryOpen(ec *epochCounter, typ Type, streamID uint32, ciphertext []byte) ([]byte, bool) {
	nonce := nonceFor(directionPrefix(r.dir), ec.nextCounter)
	a := aad(typ, streamID, ec.keys.Epoch, ec.nextCounter)
	pt, err := htxcrypto.Open(nil, ec.keys.Key[:], nonce, a, ciphertext)
	if err != nil {
		return nil, false
	}
	ec.nextCounter++
	return pt, true
}

func (r *RecvState) consumeOverlap() {
	if r.previous == nil {
		return
	}
	r.overlapRemaining--
	if r.overlapRemaining <= 0 {
		r.previous.keys.Zero()
		r.previous = nil
	}
}

// Rekey installs a new current epoch derived from a received KEY_UPDATE
// frame's nonce, demoting the previous current epoch to the overlap slot
// for the remainder of the three-frame window (the KEY_UPDATE frame itself
// counts as the first of the three).
func (r *RecvState) Rekey(nonce []byte) error {
	newKey, err := htxcrypto.HKDFExpand(r.current.keys.Key[:], nonce, []byte("htx key-update"), 32)
	if err != nil {
		return err
	}
	var ek EpochKeys
	copy(ek.Key[:], newKey)
	ek.Epoch = r.current.keys.Epoch + 1

	if r.previous != nil {
		r.previous.keys.Zero()
	}
	r.previous = r.current
	r.current = &epochCounter{keys: ek}
	r.overlapRemaining = KeyUpdateOverlapFrames - 1
	return nil
}

// Close zeroes all key material held by the receive state.
func (r *RecvState) Close() {
	r.current.keys.Zero()
	if r.previous != nil {
		r.previous.keys.Zero()
		r.previous = nil
	}
}

// ParseLength reads the 3-byte big-endian length prefix and reports the
// number of bytes (type+streamid+ciphertext+tag) that follow it.
func ParseLength(b [LengthFieldSize]byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}
