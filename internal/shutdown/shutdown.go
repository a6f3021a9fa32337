// Package shutdown coordinates graceful shutdown of the console: on SIGTERM or
// SIGINT it stops the HTTP server, closes open live-log streams and reports
// whether everything finished within the timeout.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout is the default graceful shutdown timeout.
const DefaultTimeout = 30 * time.Second

// Component is something that can be shut down gracefully.
type Component interface {
	// Name returns the component name for logging.
	Name() string
	// Shutdown should return within the context deadline.
	Shutdown(ctx context.Context) error
}

// Coordinator shuts down registered components on signal.
type Coordinator struct {
	components []Component
	timeout    time.Duration
	logger     *slog.Logger
	mu         sync.Mutex

	// signalCh replaces OS signal delivery in tests.
	signalCh chan os.Signal

	shutdownOnce sync.Once
	shutdownDone chan struct{}
	exitCode     int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the shutdown timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithSignalChannel sets a custom signal channel (for testing).
func WithSignalChannel(ch chan os.Signal) Option {
	return func(c *Coordinator) {
		c.signalCh = ch
	}
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
		shutdownDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a component. Components registered later are asked first.
func (c *Coordinator) Register(component Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, component)
	c.logger.Debug("registered shutdown component", "name", component.Name())
}

// WaitForSignal blocks until SIGTERM or SIGINT, then shuts down.
func (c *Coordinator) WaitForSignal() {
	sigCh := c.signalCh
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	sig := <-sigCh
	c.logger.Info("received shutdown signal", "signal", sig)
	c.Shutdown()
}

// Shutdown stops every component concurrently, waiting at most the timeout.
// Only the first call has any effect.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Info("initiating graceful shutdown", "timeout", c.timeout)

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.mu.Lock()
		components := make([]Component, len(c.components))
		copy(components, c.components)
		c.mu.Unlock()

		var wg sync.WaitGroup
		for i := len(components) - 1; i >= 0; i-- {
			wg.Add(1)
			go func(comp Component) {
				defer wg.Done()
				if err := comp.Shutdown(ctx); err != nil {
					c.logger.Error("component shutdown error", "name", comp.Name(), "error", err)
					return
				}
				c.logger.Info("component shutdown complete", "name", comp.Name())
			}(components[i])
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			c.logger.Info("all components shut down")
			c.exitCode = 0
		case <-ctx.Done():
			c.logger.Warn("shutdown timeout exceeded, forcing termination")
			c.exitCode = 1
		}

		close(c.shutdownDone)
	})
}

// Wait blocks until shutdown is complete.
func (c *Coordinator) Wait() {
	<-c.shutdownDone
}

// ExitCode is 0 after a clean shutdown and 1 after a forced one.
func (c *Coordinator) ExitCode() int {
	return c.exitCode
}
