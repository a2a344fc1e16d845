package handler

import (
	"net/http"
	"time"

	"github.com/angeloszaimis/api-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/api-gateway/internal/httpserver"
	"github.com/angeloszaimis/api-gateway/internal/proxy"
)

type replicaStatus struct {
	URL         string `json:"url"`
	Healthy     bool   `json:"healthy"`
	ActiveCalls int    `json:"active_calls"`
}

type dependencyStatus struct {
	Status   circuitbreaker.State `json:"status"`
	Stats    circuitbreaker.Stats `json:"stats"`
	Replicas []replicaStatus      `json:"replicas"`
}

type Health struct {
	services []*proxy.Service
	started  time.Time
}

func NewHealth(services ...*proxy.Service) *Health {
	return &Health{
		services: services,
		started:  time.Now(),
	}
}

// Health reports breaker state, breaker statistics and replica reachability
// per dependency. It never probes dependencies or touches breaker state.
func (h *Health) Health(w http.ResponseWriter, r *http.Request) {
	circuits := make(map[string]dependencyStatus, len(h.services))

	for _, svc := range h.services {
		stats := svc.Breaker().Stats()
		replicas := svc.Balancer().Replicas()

		status := dependencyStatus{
			Status:   stats.State,
			Stats:    stats,
			Replicas: make([]replicaStatus, 0, len(replicas)),
		}
		for _, replica := range replicas {
			status.Replicas = append(status.Replicas, replicaStatus{
				URL:         replica.URL().String(),
				Healthy:     replica.IsHealthy(),
				ActiveCalls: replica.ActiveCalls(),
			})
		}

		circuits[svc.Name()] = status
	}

	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "API Gateway is running",
		"circuits": circuits,
	})
}

func (h *Health) Status(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "API Gateway is running",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}
