package strategy

import (
	"github.com/angeloszaimis/api-gateway/internal/backend"
)

const (
	RoundRobin = "round-robin"
	Random     = "random"
	LeastCalls = "least-calls"
)

// Strategy picks one replica out of a non-empty candidate list.
type Strategy interface {
	SelectReplica(replicas []*backend.Replica) *backend.Replica
}

// New returns the strategy registered under name, and false for unknown names.
func New(name string) (Strategy, bool) {
	switch name {
	case RoundRobin:
		return NewRoundRobinStrategy(), true
	case Random:
		return NewRandomStrategy(), true
	case LeastCalls:
		return NewLeastCallsStrategy(), true
	default:
		return nil, false
	}
}
