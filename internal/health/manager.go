package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Manager runs checks in parallel and tracks whether the process is
// shutting down.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration

	startTime  time.Time
	version    string
	inShutdown atomic.Bool
}

// NewManager creates a manager with a 5 second per-check timeout.
func NewManager(version string) *Manager {
	return &Manager{
		timeout:   5 * time.Second,
		startTime: time.Now(),
		version:   version,
	}
}

// WithTimeout sets a custom timeout for each check.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers a checker.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// CheckNames returns the names of all registered checkers in order.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.checkers))
	for i, checker := range m.checkers {
		names[i] = checker.Name()
	}
	return names
}

// MarkShutdown makes readiness fail from now on.
func (m *Manager) MarkShutdown() {
	m.inShutdown.Store(true)
}

// IsShuttingDown reports whether MarkShutdown was called.
func (m *Manager) IsShuttingDown() bool {
	return m.inShutdown.Load()
}

// Check runs every checker concurrently, each under its own timeout.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	timeout := m.timeout
	m.mu.RUnlock()

	results := make([]*Result, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			result := c.Check(checkCtx)
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*Result, len(checkers))
	for i, c := range checkers {
		out[c.Name()] = results[i]
	}
	return out
}

// OverallStatus returns the worst status in results.
func OverallStatus(results map[string]*Result) Status {
	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// Report is the body of a probe response.
type Report struct {
	Status    Status             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Uptime    string             `json:"uptime,omitempty"`
	Checks    map[string]*Result `json:"checks,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Liveness reports that the process is responsive without running checks.
func (m *Manager) Liveness() *Report {
	status := StatusHealthy
	if m.IsShuttingDown() {
		status = StatusDegraded
	}
	return m.report(status, nil)
}

// Readiness runs every check. It is unhealthy while shutting down.
func (m *Manager) Readiness(ctx context.Context) *Report {
	if m.IsShuttingDown() {
		return m.report(StatusUnhealthy, nil)
	}
	checks := m.Check(ctx)
	return m.report(OverallStatus(checks), checks)
}

func (m *Manager) report(status Status, checks map[string]*Result) *Report {
	return &Report{
		Status:    status,
		Version:   m.version,
		Uptime:    time.Since(m.startTime).Round(time.Second).String(),
		Checks:    checks,
		Timestamp: time.Now(),
	}
}
