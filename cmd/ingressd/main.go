// Command ingressd runs the request-ingestion core as a standalone
// process: load config, tune the listening socket, build the route
// table and authorizer, then accept connections until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/watt-toolkit/ingress/internal/config"
	"github.com/watt-toolkit/ingress/internal/logging"
	"github.com/watt-toolkit/ingress/internal/socket"
	"github.com/watt-toolkit/ingress/pkg/ingress/auth"
	"github.com/watt-toolkit/ingress/pkg/ingress/driver"
	"github.com/watt-toolkit/ingress/pkg/ingress/router"
)

func main() {
	configPath := flag.String("config", "", "path to ingress.yaml (defaults built in if empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "ingressd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := logging.Default()

	cfg := config.Default()
	var watcher *config.Watcher
	if configPath != "" {
		w, err := config.NewWatcher(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		watcher = w
		defer watcher.Close()
		cfg = watcher.Current()
	}

	d := buildDriver(cfg, logger)
	if watcher != nil {
		watcher.OnReload(func(newCfg config.Config) {
			*d = *buildDriver(newCfg, logger)
		})
	}

	socketCfg := socket.Config{Reuseport: cfg.Reuseport, NoDelay: true}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ln, err := socket.Listen(ctx, cfg.Listen, socketCfg)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	return serve(ctx, ln, d, socketCfg)
}

// buildDriver constructs a fresh Driver from cfg. Returned as a pointer
// so a config reload can atomically replace the fields a running
// Driver's in-flight ServeConn goroutines read from.
func buildDriver(cfg config.Config, logger *logging.Logger) *driver.Driver {
	r := router.New()
	r.Freeze() // no routes registered by this process entry point, so
	// every request gets 404; an embedding program builds its own Router.

	var authorizer auth.Authorizer
	if cfg.PasswordFile != "" || cfg.JWTSecret != "" {
		composite := &auth.Composite{}
		if cfg.PasswordFile != "" {
			basic := auth.NewBasicAuthorizer()
			if data, err := os.ReadFile(cfg.PasswordFile); err == nil {
				if entries, err := auth.ParseHtpasswd(data); err == nil {
					basic.ReloadRealm("default", entries)
				}
			}
			composite.Basic = basic
		}
		if cfg.JWTSecret != "" {
			composite.Bearer = auth.NewJWTAuthorizer([]byte(cfg.JWTSecret))
		}
		authorizer = composite
	}

	return &driver.Driver{
		Router:         r,
		Authorizer:     authorizer,
		BufferSize:     cfg.BufferSize,
		AllowProxyReqs: cfg.AllowProxyReqs,
		Logger:         logger,
	}
}

// serve runs the accept loop: one goroutine per connection, all tracked
// by an errgroup so shutdown can wait for in-flight connections to
// finish instead of severing them mid-response.
func serve(ctx context.Context, ln net.Listener, d *driver.Driver, socketCfg socket.Config) error {
	var activeConns atomic.Int64
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	group.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}

			if err := socket.Tune(conn, socketCfg); err != nil {
				conn.Close()
				continue
			}

			activeConns.Add(1)
			group.Go(func() error {
				defer activeConns.Add(-1)
				defer conn.Close()
				d.ServeConn(conn) // per-connection errors don't bring down the listener
				return nil
			})
		}
	})

	err := group.Wait()
	waitForDrain(&activeConns, 10*time.Second)
	return err
}

func waitForDrain(activeConns *atomic.Int64, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for activeConns.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}
