package opsruntime

import (
	"context"
	"sync"
	"time"

	"github.com/relaygrid/orchestrator/internal/cronsched"
)

// MemoryDedupeStore is a minimal DecisionDedupeStore: a timestamped key set
// whose prune runs on the opsruntime tick instead of inline on every mark
// (for callers — e.g. a cross-channel webhook-retry guard — that want a
// dedupe shape
// without the approval package's request-specific key format).
type MemoryDedupeStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryDedupeStore returns an empty store.
func NewMemoryDedupeStore() *MemoryDedupeStore {
	return &MemoryDedupeStore{seen: make(map[string]time.Time)}
}

// Mark records key as seen now, returning true if it was already present
// (and not yet evicted).
func (s *MemoryDedupeStore) Mark(key string) (alreadySeen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	s.seen[key] = time.Now()
	return ok
}

// EvictOlderThan implements DecisionDedupeStore.
func (s *MemoryDedupeStore) EvictOlderThan(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	evicted := 0
	for k, at := range s.seen {
		if now.Sub(at) > ttl {
			delete(s.seen, k)
			evicted++
		}
	}
	return evicted
}

// runDecisionDedupeTick evicts stale entries from r.Dedupe — the store
// that tracks recently-seen approval decisions and reactions so a user
// double-clicking a Slack approval button (or a webhook retry) doesn't
// trigger the tool twice. The dedupe window itself is owned
// by whatever implements DecisionDedupeStore; this tick just keeps it from
// growing without bound.
func (r *Runtime) runDecisionDedupeTick(ctx context.Context, job *cronsched.Job) error {
	if r.Dedupe == nil {
		return nil
	}
	evicted := r.Dedupe.EvictOlderThan(DecisionDedupeInterval)
	if evicted > 0 && r.Metrics != nil {
		r.Metrics.DecisionsEvicted.Add(float64(evicted))
	}
	return nil
}
