// Package health tracks the reachability of the chat service and the state of
// the local session, and serves it as JSON.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ai-agent-character-demo/characterai-client/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component is the last observed state of one check
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check reports the state of one component
type Check func(ctx context.Context) (Status, string, error)

// Pinger is anything with a liveness probe, such as the redis lookup cache
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker runs registered checks and keeps their latest results
type Checker struct {
	checks      map[string]Check
	components  map[string]*Component
	critical    map[string]bool
	checkPeriod time.Duration
	timeout     time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger
	now         func() time.Time
}

// NewChecker creates a checker that reruns its checks every checkPeriod
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	if log == nil {
		log = logger.Nop()
	}
	checker := &Checker{
		checks:      make(map[string]Check),
		components:  make(map[string]*Component),
		critical:    make(map[string]bool),
		checkPeriod: checkPeriod,
		timeout:     10 * time.Second,
		log:         log,
		now:         time.Now,
	}

	checker.RegisterCheck("self", func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a new health check
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
	}
}

// MarkCritical makes the system unhealthy whenever name is down
func (c *Checker) MarkCritical(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.critical[name] = true
}

// RunChecks executes all registered checks. Each check gets its own timeout.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mutex.RUnlock()

	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, description, err := check(checkCtx)
		cancel()

		c.mutex.Lock()
		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = c.now()
		if err != nil {
			component.Error = err.Error()
		} else {
			component.Error = ""
		}
		c.mutex.Unlock()

		if err != nil {
			c.log.Error("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			c.log.Debug("Health check completed",
				"component", name,
				"status", string(status),
			)
		}
	}
}

// Start runs the checks now and then every period until ctx is done
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns a copy of the current component states
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if no critical component is down
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Status == StatusDown && c.critical[component.Name] {
			return false
		}
	}

	return true
}

// HTTPHandler returns an HTTP handler for health checks
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.GetStatus()
		healthy := c.IsSystemHealthy()

		w.Header().Set("Content-Type", "application/json")
		overall := "ok"
		if !healthy {
			overall = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		response := map[string]interface{}{
			"status":     overall,
			"timestamp":  c.now(),
			"components": status,
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			c.log.Error("Failed to encode health check response", "error", err.Error())
		}
	}
}

// RegisterRemoteCheck registers a critical probe of the chat service
func (c *Checker) RegisterRemoteCheck(name string, probe func(ctx context.Context) error) {
	check := fmt.Sprintf("remote-%s", name)
	c.RegisterCheck(check, func(ctx context.Context) (Status, string, error) {
		start := c.now()
		if err := probe(ctx); err != nil {
			return StatusDown, "Chat service request failed", err
		}
		return StatusUp, fmt.Sprintf("Chat service is responding (latency: %s)", c.now().Sub(start)), nil
	})
	c.MarkCritical(check)
}

// RegisterSessionCheck reports degraded while no session key is held
func (c *Checker) RegisterSessionCheck(authenticated func() bool) {
	c.RegisterCheck("session", func(context.Context) (Status, string, error) {
		if !authenticated() {
			return StatusDegraded, "No session key, only public lookups are available", nil
		}
		return StatusUp, "Session key is held", nil
	})
}

// RegisterCacheCheck reports degraded when the lookup cache cannot be reached.
// Lookups still work without it.
func (c *Checker) RegisterCacheCheck(p Pinger) {
	c.RegisterCheck("cache", func(ctx context.Context) (Status, string, error) {
		if err := p.Ping(ctx); err != nil {
			return StatusDegraded, "Lookup cache is unreachable", err
		}
		return StatusUp, "Lookup cache is reachable", nil
	})
}
