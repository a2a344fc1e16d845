// Package loadbalancer picks the replica of a dependency that serves the next
// call, skipping replicas the health prober marked unreachable.
package loadbalancer

import (
	"errors"

	"github.com/angeloszaimis/api-gateway/internal/backend"
	"github.com/angeloszaimis/api-gateway/internal/strategy"
)

// ErrNoHealthyReplica is returned when every replica is marked unreachable.
var ErrNoHealthyReplica = errors.New("no healthy replicas")

type LoadBalancer struct {
	strategy strategy.Strategy
	replicas []*backend.Replica
}

func NewLoadBalancer(strategy strategy.Strategy, replicas []*backend.Replica) *LoadBalancer {
	return &LoadBalancer{
		strategy: strategy,
		replicas: replicas,
	}
}

// Reserve selects a healthy replica and marks a call in flight on it. The
// caller must Release the replica when the call finishes.
func (lb *LoadBalancer) Reserve() (*backend.Replica, error) {
	healthy := lb.filterHealthyReplicas()
	if len(healthy) == 0 {
		return nil, ErrNoHealthyReplica
	}

	chosen := lb.strategy.SelectReplica(healthy)
	if chosen == nil {
		return nil, errors.New("strategy returned nil replica")
	}

	chosen.Acquire()
	return chosen, nil
}

// Replicas returns every replica regardless of health.
func (lb *LoadBalancer) Replicas() []*backend.Replica {
	return lb.replicas
}

func (lb *LoadBalancer) filterHealthyReplicas() []*backend.Replica {
	healthy := make([]*backend.Replica, 0, len(lb.replicas))

	for _, r := range lb.replicas {
		if r.IsHealthy() {
			healthy = append(healthy, r)
		}
	}

	return healthy
}
