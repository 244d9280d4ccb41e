// Package canon implements the deterministic canonical encoding used for
// template_id computation, catalog signature input and handshake transcript
// binding. Two semantically equal values must produce bit-identical output
// regardless of platform, map insertion order or struct field order: the
// encoder is a pure function of its input, never a function of history.
//
// Rules: integers are written in shortest unsigned-varint form; maps are
// sorted by key byte-lexicographic order before encoding; strings are
// length-prefixed UTF-8; there are no floating-point values and no
// semantically optional tags — every field in a canonically-encoded struct
// is always present in a fixed order.
package canon

import (
	"encoding/binary"
	"sort"
)

// Encoder accumulates canonical bytes for one structured value. The zero
// value is ready to use.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity preallocated, avoiding
// reallocation for the common Template/Catalog sizes.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated canonical encoding.
func (e *Encoder) Bytes() []byte { return e.buf }

// Uint writes v as a shortest-form unsigned varint.
func (e *Encoder) Uint(v uint64) *Encoder {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	e.buf = append(e.buf, tmp[:n]...)
	return e
}

// Int writes v zigzag-encoded then as a shortest-form varint, so negative
// values stay compact and the encoding stays a pure function of v.
func (e *Encoder) Int(v int64) *Encoder {
	zz := uint64(v<<1) ^ uint64(v>>63)
	return e.Uint(zz)
}

// BytesField writes a length-prefixed (varint) byte string.
func (e *Encoder) BytesField(b []byte) *Encoder {
	e.Uint(uint64(len(b)))
	e.buf = append(e.buf, b...)
	return e
}

// String writes a length-prefixed UTF-8 string.
func (e *Encoder) String(s string) *Encoder { return e.BytesField([]byte(s)) }

// Bool writes a single canonical byte for a boolean.
func (e *Encoder) Bool(b bool) *Encoder {
	if b {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

// StringList writes a length-prefixed, order-preserving list of strings.
// Order here is semantic (e.g. a cipher-suite list) so the caller's order
// is preserved verbatim, unlike Map which is always key-sorted.
func (e *Encoder) StringList(list []string) *Encoder {
	e.Uint(uint64(len(list)))
	for _, s := range list {
		e.String(s)
	}
	return e
}

// UintList writes a length-prefixed, order-preserving list of uint16s,
// used for cipher suites, named groups and similar ordered TLS fields.
func (e *Encoder) UintList(list []uint16) *Encoder {
	e.Uint(uint64(len(list)))
	for _, v := range list {
		e.Uint(uint64(v))
	}
	return e
}

// MapStringString writes m as a sequence of (key, value) string pairs
// ordered by byte-lexicographic key, independent of the map's iteration
// order in memory. This is the canonical representation of any unordered
// key/value structure in the data model (e.g. ALPN hint maps).
func (e *Encoder) MapStringString(m map[string]string) *Encoder {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.Uint(uint64(len(keys)))
	for _, k := range keys {
		e.String(k)
		e.String(m[k])
	}
	return e
}

// Sub writes the canonical encoding of a nested value as a length-prefixed
// blob, so nested structures compose without ambiguity about where one
// field ends and the next begins.
func (e *Encoder) Sub(sub *Encoder) *Encoder { return e.BytesField(sub.Bytes()) }
