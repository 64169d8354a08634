package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager discovers skills from the workspace and configured extra
// directories and maintains the eligible subset: enabled, matching the
// current platform, and with their required binaries and environment
// present.
type Manager struct {
	cfg          *SkillsConfig
	dirs         []string
	configValues map[string]any
	logger       *slog.Logger

	mu       sync.RWMutex
	eligible map[string]*SkillEntry
	rejected map[string]string

	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup
}

// NewManager builds a manager scanning <workspacePath>/skills plus
// cfg.Dirs and runs an initial discovery. configValues satisfy a skill's
// Env requirements the same way real environment variables do, so a
// deployment can grant a skill its key through config instead of the
// process environment.
func NewManager(cfg *SkillsConfig, workspacePath string, configValues map[string]any) (*Manager, error) {
	if cfg == nil {
		cfg = &SkillsConfig{}
	}
	dirs := []string{filepath.Join(workspacePath, "skills")}
	dirs = append(dirs, cfg.Dirs...)

	m := &Manager{
		cfg:          cfg,
		dirs:         dirs,
		configValues: configValues,
		logger:       slog.Default().With("component", "skills"),
		eligible:     make(map[string]*SkillEntry),
		rejected:     make(map[string]string),
	}
	if err := m.Discover(); err != nil {
		return nil, err
	}
	return m, nil
}

// Discover rescans every skill directory and rebuilds the eligible set.
// Directories that don't exist are skipped, not errors — a workspace
// without skills is a normal deployment.
func (m *Manager) Discover() error {
	eligible := make(map[string]*SkillEntry)
	rejected := make(map[string]string)

	for _, dir := range m.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("scan skill dir %s: %w", dir, err)
		}
		for _, ent := range entries {
			if !ent.IsDir() {
				continue
			}
			skillFile := filepath.Join(dir, ent.Name(), SkillFilename)
			if _, err := os.Stat(skillFile); err != nil {
				continue
			}
			skill, err := ParseSkillFile(skillFile)
			if err != nil {
				m.logger.Warn("skipping unparsable skill", "path", skillFile, "error", err)
				continue
			}
			if reason, ok := m.gate(skill); !ok {
				rejected[skill.Name] = reason
				continue
			}
			// Later directories win on name collisions, so a
			// cfg.Dirs entry can override a workspace skill.
			eligible[skill.Name] = skill
		}
	}

	m.mu.Lock()
	m.eligible = eligible
	m.rejected = rejected
	m.mu.Unlock()

	m.logger.Info("discovered skills", "eligible", len(eligible), "rejected", len(rejected))
	return nil
}

// gate applies the eligibility checks, returning the first failure reason.
func (m *Manager) gate(skill *SkillEntry) (reason string, ok bool) {
	if !skill.IsEnabled(m.cfg.Entries) {
		return "disabled by config", false
	}
	meta := skill.Metadata
	if meta == nil {
		return "", true
	}
	if len(meta.OS) > 0 {
		matched := false
		for _, goos := range meta.OS {
			if goos == runtime.GOOS {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Sprintf("requires os %v", meta.OS), false
		}
	}
	for _, bin := range meta.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Sprintf("missing binary %q", bin), false
		}
	}
	for _, key := range meta.Env {
		if os.Getenv(key) != "" {
			continue
		}
		if _, found := m.configValues[key]; found {
			continue
		}
		return fmt.Sprintf("missing env %q", key), false
	}
	return "", true
}

// ListEligible returns the eligible skills, name-ordered.
func (m *Manager) ListEligible() []*SkillEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SkillEntry, 0, len(m.eligible))
	for _, s := range m.eligible {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetEligible returns one eligible skill by name.
func (m *Manager) GetEligible(name string) (*SkillEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.eligible[name]
	return s, ok
}

// RejectedReasons reports why discovered skills were held back, keyed by
// skill name, for status output.
func (m *Manager) RejectedReasons() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.rejected))
	for k, v := range m.rejected {
		out[k] = v
	}
	return out
}

// StartWatching re-runs discovery when any skill directory changes,
// debounced so an editor save burst triggers one rescan.
func (m *Manager) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("skill watcher: %w", err)
	}
	watched := 0
	for _, dir := range m.dirs {
		if err := watcher.Add(dir); err == nil {
			watched++
		}
	}
	if watched == 0 {
		_ = watcher.Close()
		return nil
	}
	m.watcher = watcher

	debounce := 250 * time.Millisecond
	if m.cfg.WatchDebounceMs > 0 {
		debounce = time.Duration(m.cfg.WatchDebounceMs) * time.Millisecond
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchWg.Add(1)
	go func() {
		defer m.watchWg.Done()
		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					timer.Reset(debounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("skill watcher error", "error", err)
			case <-timerC:
				if err := m.Discover(); err != nil {
					m.logger.Warn("skill rediscovery failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// Close stops the watcher, if one is running.
func (m *Manager) Close() error {
	if m.watchCancel != nil {
		m.watchCancel()
	}
	var err error
	if m.watcher != nil {
		err = m.watcher.Close()
	}
	m.watchWg.Wait()
	return err
}
