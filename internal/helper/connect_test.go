package helper

import (
	"bufio"
	"io"
	"net"
	"testing"
)

func TestSendConnectPreludeAcceptsOKAndReturnsLeftover(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		br := bufio.NewReader(server)
		line, _ := br.ReadString('\n')
		if line != "CONNECT example.org:443 HTTP/1.1\r\n" {
			t.Errorf("unexpected request line: %q", line)
		}
		for {
			l, err := br.ReadString('\n')
			if err != nil || l == "\r\n" {
				break
			}
		}
		_, _ = io.WriteString(server, "HTTP/1.1 200 Connection Established\r\n\r\nHELLO")
	}()

	leftover, err := sendConnectPrelude(client, "example.org:443")
	if err != nil {
		t.Fatalf("sendConnectPrelude: %v", err)
	}
	if string(leftover) != "HELLO" {
		t.Fatalf("expected leftover %q, got %q", "HELLO", leftover)
	}
}

func TestSendConnectPreludeRejectsNonOK(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		br := bufio.NewReader(server)
		for {
			l, err := br.ReadString('\n')
			if err != nil || l == "\r\n" {
				break
			}
		}
		_, _ = io.WriteString(server, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
	}()

	if _, err := sendConnectPrelude(client, "example.org:443"); err == nil {
		t.Fatalf("expected non-200 CONNECT response to fail")
	}
}
