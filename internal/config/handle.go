package config

import "sync"

// Handle shares one GlobalConfig between a long-running loop and the code
// that edits it. Reads return a copy.
type Handle struct {
	mu     sync.Mutex
	layout Layout
	cfg    GlobalConfig
}

func NewHandle(l Layout, cfg GlobalConfig) *Handle {
	return &Handle{layout: l, cfg: cfg}
}

func (h *Handle) Get() GlobalConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

func (h *Handle) Set(cfg GlobalConfig) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

// Reload re-reads the file. On a parse failure the defaults returned by
// Load are installed and the error is passed back for logging.
func (h *Handle) Reload() error {
	cfg, err := Load(h.layout)
	h.Set(cfg)
	return err
}

func (h *Handle) Layout() Layout { return h.layout }
