// Package strategy chooses which replica of a dependency serves a call:
//
//   - Round Robin: sequential distribution across replicas
//   - Random: uniform random choice
//   - Least Calls: the replica with the fewest calls in flight
//
// Strategies never look at health; callers pass only the candidates they
// consider reachable.
package strategy
