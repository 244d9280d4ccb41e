package frame

import (
	"bytes"
	"testing"
)

func pairedKeys(t *testing.T) [32]byte {
	t.Helper()
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := pairedKeys(t)
	send := NewSendState(ClientToServer, key)
	recv := NewRecvState(ClientToServer, key)

	payload := []byte("hello htx")
	out, rekey, err := send.Encode(nil, TypeData, 1, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if rekey {
		t.Fatalf("unexpected rekey signal")
	}

	length := ParseLength([LengthFieldSize]byte{out[0], out[1], out[2]})
	raw := out[LengthFieldSize : LengthFieldSize+length]

	got, err := recv.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.StreamID != 1 || got.Type != TypeData || !bytes.Equal(got.Payload, payload) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	key := pairedKeys(t)
	send := NewSendState(ClientToServer, key)

	huge := make([]byte, MaxFrameLen)
	if _, _, err := send.Encode(nil, TypeData, 1, huge); err == nil {
		t.Fatalf("expected OversizedFrame error")
	}
}

func TestKeyUpdateOverlapWindow(t *testing.T) {
	key := pairedKeys(t)
	send := NewSendState(ClientToServer, key)
	recv := NewRecvState(ClientToServer, key)

	sendAndDecode := func(payload []byte) Frame {
		t.Helper()
		out, _, err := send.Encode(nil, TypeData, 1, payload)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		length := ParseLength([LengthFieldSize]byte{out[0], out[1], out[2]})
		raw := out[LengthFieldSize : LengthFieldSize+length]
		f, err := recv.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return f
	}

	for i := 0; i < 5; i++ {
		sendAndDecode([]byte{byte(i)})
	}

	nonce, err := send.BeginKeyUpdate()
	if err != nil {
		t.Fatalf("begin key update: %v", err)
	}

	out, _, err := send.Encode(nil, TypeKeyUpdate, 0, nonce)
	if err != nil {
		t.Fatalf("encode key update: %v", err)
	}
	length := ParseLength([LengthFieldSize]byte{out[0], out[1], out[2]})
	raw := out[LengthFieldSize : LengthFieldSize+length]
	f, err := recv.Decode(raw)
	if err != nil {
		t.Fatalf("decode key update: %v", err)
	}
	if err := recv.Rekey(f.Payload); err != nil {
		t.Fatalf("rekey: %v", err)
	}

	// Two more old-epoch frames should still be accepted (overlap window).
	sendAndDecode([]byte("old-1"))
	sendAndDecode([]byte("old-2"))

	// From here the sender has switched to the new key, and it should be
	// accepted by the receiver as the current epoch.
	sendAndDecode([]byte("new-1"))

	if recv.previous != nil {
		t.Fatalf("expected overlap window to be closed after 3 frames")
	}
}
