package main

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/watt-toolkit/ingress/internal/config"
	"github.com/watt-toolkit/ingress/internal/logging"
)

func TestBuildDriverAppliesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BufferSize = 8192
	cfg.AllowProxyReqs = true

	d := buildDriver(cfg, logging.Default())
	if d.BufferSize != 8192 {
		t.Errorf("BufferSize = %d, want 8192", d.BufferSize)
	}
	if !d.AllowProxyReqs {
		t.Error("AllowProxyReqs = false, want true")
	}
	if d.Authorizer != nil {
		t.Error("expected nil Authorizer when no password file or JWT secret configured")
	}
}

func TestBuildDriverWithJWTSecret(t *testing.T) {
	cfg := config.Default()
	cfg.JWTSecret = "shared-secret"

	d := buildDriver(cfg, logging.Default())
	if d.Authorizer == nil {
		t.Fatal("expected non-nil Authorizer when JWTSecret is set")
	}
}

func TestWaitForDrainReturnsOnceEmpty(t *testing.T) {
	var active atomic.Int64
	active.Store(1)

	done := make(chan struct{})
	go func() {
		waitForDrain(&active, time.Second)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	active.Store(0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitForDrain did not return after count reached zero")
	}
}
