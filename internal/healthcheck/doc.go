// Package healthcheck periodically probes each replica of a dependency at its
// health path and marks the replica reachable or unreachable. The load
// balancer only routes to reachable replicas.
package healthcheck
