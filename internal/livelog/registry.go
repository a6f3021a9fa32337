package livelog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is reported once the registry has shut down.
var ErrClosed = errors.New("live log registry is shut down")

// Registry tracks the tails of mounted log views so shutdown can close them.
type Registry struct {
	mu     sync.RWMutex
	tails  map[string]*Tail
	closed bool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tails:  make(map[string]*Tail),
		logger: logger,
	}
}

// Add registers t and returns a function that stops and removes it.
func (r *Registry) Add(t *Tail) func() {
	r.mu.Lock()
	r.tails[t.ID] = t
	r.mu.Unlock()
	r.logger.Debug("tail added", "tail_id", t.ID, "topic", t.Topic())

	return func() {
		r.mu.Lock()
		_, ok := r.tails[t.ID]
		delete(r.tails, t.ID)
		r.mu.Unlock()
		if ok {
			t.Stop()
			r.logger.Debug("tail removed", "tail_id", t.ID)
		}
	}
}

// Count returns the number of registered tails.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tails)
}

// Check reports ErrClosed after Shutdown; new log views are refused then.
func (r *Registry) Check(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

// Name identifies the registry as a shutdown component.
func (r *Registry) Name() string {
	return "live-log-tails"
}

// Shutdown stops every registered tail.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	tails := make([]*Tail, 0, len(r.tails))
	for id, t := range r.tails {
		tails = append(tails, t)
		delete(r.tails, id)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, t := range tails {
			t.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
