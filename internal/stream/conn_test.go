package stream

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func pairedKeys() (c2s, s2c [32]byte) {
	for i := range c2s {
		c2s[i] = byte(i + 1)
	}
	for i := range s2c {
		s2c[i] = byte(255 - i)
	}
	return
}

func TestStreamOpenWriteReadClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientRW, serverRW := net.Pipe()
	c2s, s2c := pairedKeys()

	client := NewConn(ctx, clientRW, c2s, s2c, true)
	server := NewConn(ctx, serverRW, c2s, s2c, false)
	defer client.Close()
	defer server.Close()

	cs, err := client.OpenStream(ctx)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if cs.ID() != 1 {
		t.Fatalf("expected first client stream id 1, got %d", cs.ID())
	}

	ss, err := server.AcceptStream(ctx)
	if err != nil {
		t.Fatalf("accept stream: %v", err)
	}
	if ss.ID() != cs.ID() {
		t.Fatalf("stream id mismatch: client=%d server=%d", cs.ID(), ss.ID())
	}

	payload := []byte("hello over htx")
	if _, err := cs.Write(ctx, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ss.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %q want %q", got, payload)
	}

	if err := cs.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := ss.Read(ctx); err == nil {
		t.Fatalf("expected error reading from a peer-closed stream")
	}
}

func TestSecondClientStreamGetsNextOddID(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientRW, serverRW := net.Pipe()
	c2s, s2c := pairedKeys()
	client := NewConn(ctx, clientRW, c2s, s2c, true)
	server := NewConn(ctx, serverRW, c2s, s2c, false)
	defer client.Close()
	defer server.Close()

	go func() {
		for i := 0; i < 2; i++ {
			if _, err := server.AcceptStream(ctx); err != nil {
				return
			}
		}
	}()

	first, err := client.OpenStream(ctx)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	second, err := client.OpenStream(ctx)
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if first.ID() != 1 || second.ID() != 3 {
		t.Fatalf("expected ids 1,3, got %d,%d", first.ID(), second.ID())
	}
}
