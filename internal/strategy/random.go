package strategy

import (
	"math/rand/v2"

	"github.com/angeloszaimis/api-gateway/internal/backend"
)

type randomStrategy struct{}

// SelectReplica samples two distinct replicas at random and keeps the one with
// fewer calls in flight, the first sampled on ties.
func (r *randomStrategy) SelectReplica(replicas []*backend.Replica) *backend.Replica {
	switch len(replicas) {
	case 0:
		return nil
	case 1:
		return replicas[0]
	}

	i := rand.IntN(len(replicas))
	j := rand.IntN(len(replicas) - 1)
	if j >= i {
		j++
	}

	a, b := replicas[i], replicas[j]
	if b.ActiveCalls() < a.ActiveCalls() {
		return b
	}
	return a
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
