package config

import (
	"os"
	"sync"
	"time"
)

// Provider hands out the current configuration, transparently reloading the
// backing file when its modification time changes. Monitor loops call Get on
// every cycle so edits take effect without a restart.
type Provider struct {
	path string

	mu       sync.Mutex
	cfg      Config
	loadedAt time.Time
}

// NewProvider loads path once and returns a provider bound to it.
func NewProvider(path string) (*Provider, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	p := &Provider{path: path, cfg: cfg}
	if info, err := os.Stat(path); err == nil {
		p.loadedAt = info.ModTime()
	}
	return p, nil
}

// Get returns the current configuration, reloading when the file changed. A
// reload that fails to read or parse keeps serving the last good config.
func (p *Provider) Get() Config {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err != nil {
		return p.cfg
	}
	if info.ModTime().Equal(p.loadedAt) {
		return p.cfg
	}

	cfg, err := Load(p.path)
	if err != nil {
		return p.cfg
	}
	p.cfg = cfg
	p.loadedAt = info.ModTime()
	return p.cfg
}

// Static wraps a fixed configuration in the Provider interface contract for
// tests and the one-shot checkup command.
func Static(cfg Config) *Provider {
	return &Provider{cfg: cfg, loadedAt: time.Now()}
}
