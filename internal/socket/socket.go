// Package socket provides listener and connection socket tuning:
// SO_REUSEPORT for multi-process scaling, TCP_NODELAY to disable Nagle's
// algorithm, and receive buffer sizing for high-connection-count
// workloads.
package socket

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Config is the set of socket tuning options applied to a listener and
// to the connections it accepts. Zero values mean "use the system
// default" for everything except NoDelay, which defaults to true for
// an HTTP/1.x server's short-request workload.
type Config struct {
	// Reuseport sets SO_REUSEPORT on the listening socket, letting
	// multiple processes (one per core) bind the same address.
	Reuseport bool

	// NoDelay disables Nagle's algorithm on every accepted connection.
	NoDelay bool

	// RecvBuffer sets SO_RCVBUF in bytes; 0 leaves the system default.
	RecvBuffer int
}

// DefaultConfig returns the tuning this server applies when none is
// configured: NoDelay on, everything else left to the kernel.
func DefaultConfig() Config {
	return Config{NoDelay: true}
}

// Listen opens a TCP listener on addr with cfg applied via
// net.ListenConfig.Control, so SO_REUSEPORT is set before bind(2) runs.
func Listen(ctx context.Context, addr string, cfg Config) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if cfg.Reuseport {
					ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				}
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}

// Tune applies NoDelay and RecvBuffer to an accepted connection. Called
// once per connection, immediately after Accept. A non-TCP connection
// (e.g. the net.Pipe() used in tests) is left untouched.
func Tune(conn net.Conn, cfg Config) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if cfg.NoDelay {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	if cfg.RecvBuffer > 0 {
		if err := tcpConn.SetReadBuffer(cfg.RecvBuffer); err != nil {
			return err
		}
	}
	return nil
}
