package strategy

import (
	"sync"

	"github.com/angeloszaimis/api-gateway/internal/backend"
)

type roundRobinStrategy struct {
	mutex  sync.Mutex
	last   *backend.Replica
	cursor int
}

// SelectReplica returns the replica after the previous pick. When the previous
// pick is no longer a candidate, its successor has taken its position and is
// returned.
func (rr *roundRobinStrategy) SelectReplica(replicas []*backend.Replica) *backend.Replica {
	if len(replicas) == 0 {
		return nil
	}

	rr.mutex.Lock()
	defer rr.mutex.Unlock()

	next := rr.cursor
	for i, r := range replicas {
		if r == rr.last {
			next = i + 1
			break
		}
	}
	next %= len(replicas)

	rr.last = replicas[next]
	rr.cursor = next

	return rr.last
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
