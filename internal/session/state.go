// Package session holds the per-browser console state: the orchestrator API
// key and the current route. Handlers read and write it through the request
// context instead of reaching for cookies directly.
package session

import (
	"context"
	"sync"

	"github.com/narvanalabs/pipeline-console/internal/route"
)

type contextKey struct{}

// State is the mutable session state of one request.
type State struct {
	mu      sync.RWMutex
	apiKey  string
	route   route.Route
	changed bool
}

// NewState creates a state holding apiKey.
func NewState(apiKey string) *State {
	return &State{apiKey: apiKey, route: route.Runs}
}

// APIKey returns the stored API key, "" when none is set.
func (s *State) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

// SetAPIKey replaces the stored API key.
func (s *State) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apiKey != key {
		s.apiKey = key
		s.changed = true
	}
}

// Route returns the current route.
func (s *State) Route() route.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.route
}

// SetRoute records the current route.
func (s *State) SetRoute(r route.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = r
}

// Changed reports whether the API key was modified since the state was loaded.
func (s *State) Changed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// WithState returns a copy of ctx carrying s.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session state of ctx. A context without one gets
// an empty, detached state so callers never need a nil check.
func FromContext(ctx context.Context) *State {
	if s, ok := ctx.Value(contextKey{}).(*State); ok && s != nil {
		return s
	}
	return NewState("")
}
