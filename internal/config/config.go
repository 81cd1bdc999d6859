// Package config loads the ingestion core's YAML configuration and
// watches the file for changes, publishing each successfully parsed
// revision to subscribers. Socket tuning, buffer sizing, the packet and
// rewrite budgets, and the htpasswd file location all live here rather
// than as process flags. Only the config file itself is watched; it holds
// no route table.
package config

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
)

// Config is the ingestion core's static tuning surface.
type Config struct {
	// Listen is the address the listener binds, e.g. ":8080".
	Listen string `yaml:"listen"`

	// Reuseport sets SO_REUSEPORT on the listening socket.
	Reuseport bool `yaml:"reuseport"`

	// BufferSize is the per-connection read buffer in bytes.
	BufferSize int `yaml:"buffer_size"`

	// MaxPacketReads is loaded but not applied: the read loop always
	// uses its fixed budget, readloop.MaxPacketReads.
	MaxPacketReads int `yaml:"max_packet_reads"`

	// MaxRewrites is loaded but not applied: the driver always uses
	// the fixed bound request.MaxRewrites.
	MaxRewrites int `yaml:"max_rewrites"`

	// AllowProxyReqs enables PROXY protocol (v1 and v2) decoding on accepted
	// connections. Only set this for listeners behind a trusted load
	// balancer.
	AllowProxyReqs bool `yaml:"allow_proxy_reqs"`

	// PasswordFile is the htpasswd-style bcrypt credential file used by
	// the Basic-auth realm. Empty disables Basic auth.
	PasswordFile string `yaml:"password_file"`

	// JWTSecret authenticates bearer tokens. Empty disables JWT auth.
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Listen:         ":8080",
		BufferSize:     16 << 10,
		MaxPacketReads: 16,
		MaxRewrites:    4,
	}
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher holds the current Config and reloads it whenever the backing
// file is written, notifying subscribers registered with OnReload.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	current atomic.Value // Config

	mu        sync.Mutex
	listeners []func(Config)
}

// NewWatcher loads path once and starts watching it for writes. Call
// Close when done to stop the underlying fsnotify watcher.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{path: path, fsw: fsw}
	w.current.Store(cfg)

	go w.run()
	return w, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() Config {
	return w.current.Load().(Config)
}

// OnReload registers fn to run (in the watcher goroutine) after every
// successful reload. fn is not called for the initial load.
func (w *Watcher) OnReload(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Close stops the file watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				// A reload that fails to parse keeps the last good
				// Config in place; the editor may still be mid-write.
				continue
			}
			w.current.Store(cfg)

			w.mu.Lock()
			listeners := append([]func(Config){}, w.listeners...)
			w.mu.Unlock()
			for _, fn := range listeners {
				fn(cfg)
			}

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}
