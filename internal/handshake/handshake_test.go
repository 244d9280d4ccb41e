package handshake

import (
	"context"
	"net"
	"testing"
)

func TestInnerHandshakeRoundTrip(t *testing.T) {
	clientIdentity, err := GenerateStaticIdentity()
	if err != nil {
		t.Fatalf("generate client identity: %v", err)
	}
	serverIdentity, err := GenerateStaticIdentity()
	if err != nil {
		t.Fatalf("generate server identity: %v", err)
	}

	var bootstrapKey [32]byte
	for i := range bootstrapKey {
		bootstrapKey[i] = byte(i + 1)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	init := &Initiator{Identity: clientIdentity, RemoteStatic: serverIdentity.Pub}
	resp := &Responder{Identity: serverIdentity}

	type outcome struct {
		result *Result
		state  State
		err    error
	}
	clientCh := make(chan outcome, 1)
	serverCh := make(chan outcome, 1)

	go func() {
		r, s, e := init.RunInner(context.Background(), clientConn, bootstrapKey)
		clientCh <- outcome{r, s, e}
	}()
	go func() {
		r, s, e := resp.RunInner(context.Background(), serverConn, bootstrapKey)
		serverCh <- outcome{r, s, e}
	}()

	co := <-clientCh
	so := <-serverCh

	if co.err != nil {
		t.Fatalf("initiator failed: %v (state %s)", co.err, co.state)
	}
	if so.err != nil {
		t.Fatalf("responder failed: %v (state %s)", so.err, so.state)
	}
	if co.state != Transport || so.state != Transport {
		t.Fatalf("expected both sides in Transport, got client=%s server=%s", co.state, so.state)
	}

	if co.result.Keys.ClientToServer != so.result.Keys.ClientToServer {
		t.Fatalf("client-to-server keys diverge")
	}
	if co.result.Keys.ServerToClient != so.result.Keys.ServerToClient {
		t.Fatalf("server-to-client keys diverge")
	}
	if co.result.Keys.ClientToServer == co.result.Keys.ServerToClient {
		t.Fatalf("directional keys must differ")
	}
	if so.result.RemoteStatic != clientIdentity.Pub {
		t.Fatalf("responder did not learn the initiator's static identity")
	}
}

func TestInnerHandshakeRejectsWrongPinnedStatic(t *testing.T) {
	clientIdentity, _ := GenerateStaticIdentity()
	serverIdentity, _ := GenerateStaticIdentity()
	wrongIdentity, _ := GenerateStaticIdentity()

	var bootstrapKey [32]byte
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	init := &Initiator{Identity: clientIdentity, RemoteStatic: wrongIdentity.Pub}
	resp := &Responder{Identity: serverIdentity}

	errCh := make(chan error, 1)
	go func() {
		_, _, e := resp.RunInner(context.Background(), serverConn, bootstrapKey)
		errCh <- e
	}()

	_, state, err := init.RunInner(context.Background(), clientConn, bootstrapKey)
	// The responder is still waiting for message 3; closing the client end
	// unblocks it so its result can be collected.
	_ = clientConn.Close()
	<-errCh

	if err == nil {
		t.Fatalf("expected initiator to reject mismatched pinned static key")
	}
	if state != InnerAuthFailed {
		t.Fatalf("expected InnerAuthFailed, got %s", state)
	}
}

func TestInnerHandshakeRejectsUnauthorizedInitiator(t *testing.T) {
	clientIdentity, _ := GenerateStaticIdentity()
	serverIdentity, _ := GenerateStaticIdentity()

	var bootstrapKey [32]byte
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	init := &Initiator{Identity: clientIdentity, RemoteStatic: serverIdentity.Pub}
	resp := &Responder{
		Identity:    serverIdentity,
		AllowStatic: func(pub [32]byte) bool { return false },
	}

	serverErrCh := make(chan error, 1)
	go func() {
		_, _, e := resp.RunInner(context.Background(), serverConn, bootstrapKey)
		serverErrCh <- e
	}()

	init.RunInner(context.Background(), clientConn, bootstrapKey)
	if err := <-serverErrCh; err == nil {
		t.Fatalf("expected responder to reject unauthorized static key")
	}
}
