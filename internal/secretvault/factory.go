package secretvault

import (
	"path/filepath"
	"sync"
)

// Factory hands out one Vault per workspace path, amortizing master-key
// load across callers within a process. This is an explicit,
// passed-around singleton rather than an implicit package-level global.
type Factory struct {
	mu     sync.Mutex
	vaults map[string]*Vault
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{vaults: make(map[string]*Vault)}
}

// Get returns the Vault for workspaceDir, opening it on first request.
func (f *Factory) Get(workspaceDir string) (*Vault, error) {
	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		abs = workspaceDir
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vaults[abs]; ok {
		return v, nil
	}
	v, err := Open(abs)
	if err != nil {
		return nil, err
	}
	f.vaults[abs] = v
	return v, nil
}
