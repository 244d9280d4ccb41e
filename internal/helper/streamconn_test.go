package helper

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/veilproto/htx/internal/stream"
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

func TestStreamNetConnReadWrite(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientRW, serverRW := net.Pipe()
	c2s, s2c := pairedKeys()

	clientConn := stream.NewConn(ctx, clientRW, c2s, s2c, true)
	serverConn := stream.NewConn(ctx, serverRW, c2s, s2c, false)
	defer clientConn.Close()
	defer serverConn.Close()

	cs, err := clientConn.OpenStream(ctx)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	ss, err := serverConn.AcceptStream(ctx)
	if err != nil {
		t.Fatalf("accept stream: %v", err)
	}

	nc := newStreamNetConn(ctx, cs, clientConn, "decoy.example.net:443")

	if _, err := nc.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ss.Read(ctx)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("payload mismatch: got %q", got)
	}

	if _, err := ss.Write(ctx, []byte("world")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := nc.Read(buf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("world")) {
		t.Fatalf("read mismatch: got %q", buf[:n])
	}

	if nc.RemoteAddr().String() != "decoy.example.net:443" {
		t.Fatalf("unexpected remote addr: %v", nc.RemoteAddr())
	}
}

func TestStreamNetConnSeedIsReadFirst(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientRW, serverRW := net.Pipe()
	c2s, s2c := pairedKeys()

	clientConn := stream.NewConn(ctx, clientRW, c2s, s2c, true)
	serverConn := stream.NewConn(ctx, serverRW, c2s, s2c, false)
	defer clientConn.Close()
	defer serverConn.Close()

	cs, err := clientConn.OpenStream(ctx)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if _, err := serverConn.AcceptStream(ctx); err != nil {
		t.Fatalf("accept stream: %v", err)
	}

	nc := newStreamNetConn(ctx, cs, clientConn, "decoy.example.net:443")
	nc.seed([]byte("buffered"))

	buf := make([]byte, 16)
	n, err := nc.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("buffered")) {
		t.Fatalf("expected seeded bytes first, got %q", buf[:n])
	}
}

func TestStreamNetConnCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientRW, serverRW := net.Pipe()
	c2s, s2c := pairedKeys()

	clientConn := stream.NewConn(ctx, clientRW, c2s, s2c, true)
	serverConn := stream.NewConn(ctx, serverRW, c2s, s2c, false)
	defer serverConn.Close()

	cs, err := clientConn.OpenStream(ctx)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	closeCalls := 0
	nc := newStreamNetConn(ctx, cs, clientConn, "decoy.example.net:443")
	nc.onClose = func() { closeCalls++ }

	if err := nc.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := nc.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closeCalls != 1 {
		t.Fatalf("expected onClose to run exactly once, ran %d times", closeCalls)
	}
}
