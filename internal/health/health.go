// Package health runs readiness checks for the gateway's upstream dependencies.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortium-partners/logo-wall/pkg/tokenstore"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// CheckFunc is a function that checks a dependency's health.
type CheckFunc func(ctx context.Context) Status

// Checker manages health checks for all dependencies.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  zerolog.Logger
}

// NewChecker creates a new health checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RunAll executes all health checks concurrently.
func (c *Checker) RunAll(ctx context.Context) map[string]Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			s := f(checkCtx)
			if s != StatusOK {
				c.logger.Debug().Str("check", n).Str("status", string(s)).Msg("health check not ok")
			}
			mu.Lock()
			results[n] = s
			mu.Unlock()
		}(name, fn)
	}

	wg.Wait()
	return results
}

// Report runs all checks and tells whether none of them is down.
func (c *Checker) Report(ctx context.Context) (bool, map[string]Status) {
	results := c.RunAll(ctx)
	for _, s := range results {
		if s == StatusDown {
			return false, results
		}
	}
	return true, results
}

// ConfiguredCheck reports degraded when a required upstream setting is missing.
// Missing settings never make the gateway unready; dependent calls fail lazily.
func ConfiguredCheck(set bool) CheckFunc {
	return func(context.Context) Status {
		if set {
			return StatusOK
		}
		return StatusDegraded
	}
}

// TokenCheck maps the cached token state to a status without triggering a fetch.
func TokenCheck(state func() tokenstore.State) CheckFunc {
	return func(context.Context) Status {
		if state() == tokenstore.StateValid {
			return StatusOK
		}
		return StatusDegraded
	}
}
