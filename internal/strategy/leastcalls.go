package strategy

import (
	"math"

	"github.com/angeloszaimis/api-gateway/internal/backend"
)

type leastCallsStrategy struct{}

// SelectReplica returns the replica with the fewest calls in flight, the
// first one on ties.
func (l *leastCallsStrategy) SelectReplica(replicas []*backend.Replica) *backend.Replica {
	var best *backend.Replica
	bestCalls := math.MaxInt

	for _, r := range replicas {
		if calls := r.ActiveCalls(); calls < bestCalls {
			bestCalls = calls
			best = r
		}
	}

	return best
}

func NewLeastCallsStrategy() Strategy {
	return &leastCallsStrategy{}
}
