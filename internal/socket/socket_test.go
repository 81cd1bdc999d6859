package socket

import (
	"context"
	"net"
	"testing"
)

func TestListenAndTune(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0", DefaultConfig())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()
	done := make(chan error, 1)
	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			done <- acceptErr
			return
		}
		defer conn.Close()
		done <- Tune(conn, DefaultConfig())
	}()

	client, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := <-done; err != nil {
		t.Fatalf("tune: %v", err)
	}
}

func TestTuneNonTCPConnIsNoop(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	if err := Tune(serverConn, DefaultConfig()); err != nil {
		t.Fatalf("expected no-op for non-TCP conn, got %v", err)
	}
}
