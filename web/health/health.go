// Package health provides health check functionality for the console server.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is operational but with issues.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// Version is the console version, set at build time using ldflags.
var Version = "dev"

// CheckFunc checks one dependency.
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// Checker aggregates dependency checks.
type Checker struct {
	checks    []check
	startTime time.Time
	version   string
	timeout   time.Duration
	mu        sync.RWMutex
}

// NewChecker creates a health checker. The orchestrator check is critical:
// its failure makes the console unhealthy.
func NewChecker(orchestrator CheckFunc, version string) *Checker {
	c := &Checker{
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
	c.checks = append(c.checks, check{name: "orchestrator", fn: orchestrator, critical: true})
	return c
}

// AddCheck registers a non-critical check; its failure only degrades health.
func (c *Checker) AddCheck(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{name: name, fn: fn})
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check runs every check and returns the aggregated response.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := make(map[string]ComponentStatus, len(checks))
	overall := StatusHealthy

	sort.SliceStable(checks, func(i, j int) bool { return checks[i].name < checks[j].name })
	for _, ch := range checks {
		status := run(checkCtx, ch)
		components[ch.name] = status
		switch {
		case status.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case status.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return &Response{
		Status:     overall,
		Components: components,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}
}

func run(ctx context.Context, ch check) ComponentStatus {
	failed := StatusDegraded
	if ch.critical {
		failed = StatusUnhealthy
	}

	if ch.fn == nil {
		return ComponentStatus{Status: failed, Message: "check not configured"}
	}
	if err := ch.fn(ctx); err != nil {
		return ComponentStatus{Status: failed, Message: "check failed: " + err.Error()}
	}
	return ComponentStatus{Status: StatusHealthy, Message: "ok"}
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(response)
	}
}
