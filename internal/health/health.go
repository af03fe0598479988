package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/pkg/logger"
)

// checkTimeout bounds each dependency check
const checkTimeout = 2 * time.Second

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// Checker serves liveness and readiness probes
type Checker struct {
	mu        sync.RWMutex
	names     []string
	checks    map[string]Check
	ready     bool
	startTime time.Time
}

// HealthStatus represents system health
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

// ReadinessStatus represents system readiness
type ReadinessStatus struct {
	Ready     bool              `json:"ready"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// NewChecker creates new health checker
func NewChecker() *Checker {
	return &Checker{
		checks:    make(map[string]Check),
		startTime: time.Now(),
	}
}

// Add registers a named dependency check used by the readiness probe
func (c *Checker) Add(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.checks[name]; !ok {
		c.names = append(c.names, name)
	}
	c.checks[name] = check
}

// SetReady marks the service as ready
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()

	if ready {
		logger.Info("service marked as READY")
	} else {
		logger.Warn("service marked as NOT READY")
	}
}

// Readiness runs all checks
func (c *Checker) Readiness(ctx context.Context) ReadinessStatus {
	c.mu.RLock()
	ready := c.ready
	names := append([]string(nil), c.names...)
	checks := make(map[string]Check, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	status := ReadinessStatus{
		Ready:     ready,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(names)),
	}

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checks[name](checkCtx)
		cancel()

		if err != nil {
			status.Checks[name] = "unhealthy: " + err.Error()
			status.Ready = false
			logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		status.Checks[name] = "healthy"
	}

	return status
}

// HandleHealth handles liveness probe - /health
// Returns 200 if process is alive (even if dependencies are down)
func (c *Checker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
	})
}

// HandleReadiness handles readiness probe - /ready
// Returns 200 only if the service is marked ready and every check passes
func (c *Checker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status := c.Readiness(r.Context())

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write health response", zap.Error(err))
	}
}
