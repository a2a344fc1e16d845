// Package backend models the replicas of a downstream dependency: a base URL,
// a reachability flag maintained by the health prober, and in-flight call
// tracking.
package backend
