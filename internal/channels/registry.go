package channels

import (
	"context"
	"errors"
	"sync"

	"github.com/relaygrid/orchestrator/pkg/models"
)

// Registry holds the configured channel adapters and merges their inbound
// streams. Adapters are registered before StartAll; the registry does not
// support adding adapters while running.
type Registry struct {
	mu       sync.Mutex
	adapters map[models.ChannelType]Adapter
	started  []Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.ChannelType]Adapter)}
}

// Register adds an adapter, replacing any previous one for the same
// platform.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// GetOutbound returns the adapter for t, for sending replies.
func (r *Registry) GetOutbound(t models.ChannelType) (Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.adapters[t]
	return a, ok
}

// StartAll starts every registered adapter. Adapters that fail to start are
// skipped; their errors are joined into the returned error while the rest
// keep running.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, a := range r.adapters {
		if err := a.Start(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		r.started = append(r.started, a)
	}
	return errors.Join(errs...)
}

// StopAll stops every adapter that started.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.started = nil
	r.mu.Unlock()

	var errs []error
	for _, a := range started {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AggregateMessages merges every started adapter's inbound stream into one
// channel. The merged channel closes when all adapter streams have closed
// or ctx is cancelled.
func (r *Registry) AggregateMessages(ctx context.Context) <-chan *models.Message {
	r.mu.Lock()
	started := append([]Adapter(nil), r.started...)
	r.mu.Unlock()

	out := make(chan *models.Message, 64)
	var wg sync.WaitGroup
	for _, a := range started {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-a.Messages():
					if !ok {
						return
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}(a)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// AggregateReactions merges reaction streams from every started adapter
// that produces them.
func (r *Registry) AggregateReactions(ctx context.Context) <-chan Reaction {
	r.mu.Lock()
	started := append([]Adapter(nil), r.started...)
	r.mu.Unlock()

	out := make(chan Reaction, 16)
	var wg sync.WaitGroup
	for _, a := range started {
		src, ok := a.(ReactionSource)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(src ReactionSource) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case re, ok := <-src.Reactions():
					if !ok {
						return
					}
					select {
					case out <- re:
					case <-ctx.Done():
						return
					}
				}
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
