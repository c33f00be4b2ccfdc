package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"productservice/src/core/ports"
)

// HealthService aggregates the health of critical dependencies.
type HealthService struct {
	log     *slog.Logger
	deps    []ports.Dependency
	timeout time.Duration
}

// NewHealthService creates a new HealthService.
func NewHealthService(log *slog.Logger, deps ...ports.Dependency) *HealthService {
	return &HealthService{
		log:     log,
		deps:    deps,
		timeout: 5 * time.Second,
	}
}

// HealthStatus represents the health of the application.
type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Check performs a health check of all application components concurrently.
// The overall status is "ok" when every dependency is healthy and
// "degraded" otherwise.
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     "ok",
		Components: make(map[string]ComponentHealth, len(s.deps)),
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, dep := range s.deps {
		wg.Add(1)
		go func(dep ports.Dependency) {
			defer wg.Done()
			ch := ComponentHealth{Status: "healthy"}
			if err := dep.Health(ctx); err != nil {
				ch = ComponentHealth{Status: "unhealthy", Message: err.Error()}
				s.log.Warn("dependency unhealthy", "component", dep.Name(), "error", err)
			}
			mu.Lock()
			status.Components[dep.Name()] = ch
			if ch.Status != "healthy" {
				status.Status = "degraded"
			}
			mu.Unlock()
		}(dep)
	}
	wg.Wait()

	return status
}
