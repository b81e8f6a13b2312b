package api

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports the reachability of every dialed endpoint
type HealthChecker interface {
	Health(ctx context.Context) map[string]error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Uptime    string                    `json:"uptime"`
	Endpoints map[string]EndpointHealth `json:"endpoints,omitempty"`
}

// EndpointHealth is the state of one RPC endpoint
type EndpointHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
	healthDown     = "down"

	healthCheckTimeout = 5 * time.Second
)

// handleHealth probes the endpoints dialed so far. Any unreachable endpoint
// turns the response into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    healthOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		results := s.health.Health(ctx)
		if len(results) > 0 {
			response.Endpoints = make(map[string]EndpointHealth, len(results))
		}
		for url, err := range results {
			if err != nil {
				response.Status = healthDegraded
				response.Endpoints[url] = EndpointHealth{Status: healthDown, Error: err.Error()}
				continue
			}
			response.Endpoints[url] = EndpointHealth{Status: healthOK}
		}
	}

	status := http.StatusOK
	if response.Status != healthOK {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, response)
}
