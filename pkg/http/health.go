package http

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"speechcoach/pkg/version"
)

// Health check statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck reports the state of one component
type HealthCheck func(ctx context.Context) CheckResult

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult represents an individual health check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo contains process resource information
type SystemInfo struct {
	GoRoutines int    `json:"goroutines"`
	MemoryMB   uint64 `json:"memory_mb"`
	WSClients  int    `json:"ws_clients"`
}

// HealthHandler runs every registered check. Degraded components keep the
// service healthy; any unhealthy component returns 503.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    make(map[string]CheckResult),
	}

	if s.hub != nil {
		if s.hub.IsRunning() {
			health.Checks["websocket"] = CheckResult{Status: StatusHealthy, Message: "WebSocket hub is running"}
		} else {
			health.Checks["websocket"] = CheckResult{Status: StatusDegraded, Message: "WebSocket hub not running"}
		}
		health.System.WSClients = s.hub.ClientCount()
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		health.Checks[name] = s.checks[name](ctx)
	}

	for _, check := range health.Checks {
		if check.Status == StatusUnhealthy {
			health.Status = StatusUnhealthy
			break
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	health.System.GoRoutines = runtime.NumGoroutine()
	health.System.MemoryMB = mem.Alloc / 1024 / 1024

	status := http.StatusOK
	if health.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// LivenessHandler reports that the process is serving requests
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
