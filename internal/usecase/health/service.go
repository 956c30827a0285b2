package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means storage works but an optional provider does not.
	Degraded Status = "degraded"
	// Unhealthy means storage is unavailable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultTimeout bounds each individual check.
const DefaultTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type provider struct {
	name    string
	checker ProviderChecker
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	providers []provider
	timeout   time.Duration
}

// New creates a Service that checks storage.
func New(db DBPinger) *Service {
	return &Service{db: db, timeout: DefaultTimeout}
}

// WithProvider adds a named provider check. nil checkers are ignored.
func (s *Service) WithProvider(name string, c ProviderChecker) *Service {
	if c != nil {
		s.providers = append(s.providers, provider{name: name, checker: c})
		sort.Slice(s.providers, func(i, j int) bool { return s.providers[i].name < s.providers[j].name })
	}
	return s
}

// WithTimeout configures the per-check timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs all checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.providers)+1)
	var mu sync.Mutex
	var wg sync.WaitGroup

	run := func(name string, fn func(context.Context) error) {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		res := CheckOK
		if err := fn(cctx); err != nil {
			res = CheckError
		}
		mu.Lock()
		checks[name] = res
		mu.Unlock()
	}

	wg.Add(1 + len(s.providers))
	go run("database", s.db.Ping)
	for _, p := range s.providers {
		go run(p.name, p.checker.HealthCheck)
	}
	wg.Wait()

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == "database" {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
