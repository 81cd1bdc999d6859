package driver

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/watt-toolkit/ingress/pkg/ingress/request"
	"github.com/watt-toolkit/ingress/pkg/ingress/router"
)

func newTestDriver(t *testing.T) (*Driver, *router.Router) {
	t.Helper()
	r := router.New()
	return &Driver{Router: r, BufferSize: 4096}, r
}

func TestServeConnSimpleGET(t *testing.T) {
	d, r := newTestDriver(t)
	r.Add("/hello", router.Route{
		Handler: Handler(func(req *request.Request) (HandlerResult, error) {
			return HandlerResult{Status: 200, Body: []byte("world")}, nil
		}),
	})
	r.Freeze()

	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- d.ServeConn(serverConn) }()

	clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := clientConn.Write([]byte("GET /hello HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	resp, err := io.ReadAll(bufio.NewReader(clientConn))
	if err != nil && err != io.EOF {
		t.Fatalf("read error: %v", err)
	}
	out := string(resp)
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line missing: %q", out)
	}
	if !strings.HasSuffix(out, "world") {
		t.Errorf("body missing: %q", out)
	}

	clientConn.Close()
	<-done
}

func TestServeConnNotFound(t *testing.T) {
	d, r := newTestDriver(t)
	r.Freeze()

	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- d.ServeConn(serverConn) }()

	clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	clientConn.Write([]byte("GET /nope HTTP/1.1\r\nConnection: close\r\n\r\n"))

	resp, _ := io.ReadAll(bufio.NewReader(clientConn))
	if !strings.HasPrefix(string(resp), "HTTP/1.1 404 Not Found\r\n") {
		t.Fatalf("expected 404, got %q", resp)
	}

	clientConn.Close()
	<-done
}

func TestServeConnHandlerPanicRecovered(t *testing.T) {
	d, r := newTestDriver(t)
	r.Add("/boom", router.Route{
		Handler: Handler(func(req *request.Request) (HandlerResult, error) {
			panic("kaboom")
		}),
	})
	r.Freeze()

	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- d.ServeConn(serverConn) }()

	clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	clientConn.Write([]byte("GET /boom HTTP/1.1\r\nConnection: close\r\n\r\n"))

	resp, _ := io.ReadAll(bufio.NewReader(clientConn))
	if !strings.HasPrefix(string(resp), "HTTP/1.1 500 Internal Server Error\r\n") {
		t.Fatalf("expected 500, got %q", resp)
	}

	clientConn.Close()
	<-done
}

func TestServeConnMethodNotAllowed(t *testing.T) {
	d, r := newTestDriver(t)
	r.Freeze()

	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- d.ServeConn(serverConn) }()

	clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	clientConn.Write([]byte("PUT /x HTTP/1.1\r\n\r\n"))

	resp, _ := io.ReadAll(bufio.NewReader(clientConn))
	if !strings.HasPrefix(string(resp), "HTTP/1.1 405 Method Not Allowed\r\n") {
		t.Fatalf("expected 405, got %q", resp)
	}

	clientConn.Close()
	<-done
}
