package backend

import (
	"net/url"
	"sync"
)

// Replica is one instance of a dependency reachable at a base URL.
type Replica struct {
	url         *url.URL
	mutex       sync.Mutex
	isHealthy   bool
	activeCalls int
}

// New creates a Replica for the given base URL.
// The replica starts healthy so traffic flows before the first probe.
func New(url *url.URL) *Replica {
	return &Replica{
		url:       url,
		isHealthy: true,
	}
}

// URL returns the replica base URL.
func (r *Replica) URL() *url.URL {
	return r.url
}

// Resolve joins a request path and query onto the replica base URL.
func (r *Replica) Resolve(path, rawQuery string) *url.URL {
	target := *r.url
	target.Path = singleJoiningSlash(r.url.Path, path)
	target.RawPath = ""
	target.RawQuery = rawQuery
	return &target
}

// IsHealthy returns true if the last probe reached the replica.
func (r *Replica) IsHealthy() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.isHealthy
}

// SetHealthy updates the replica's health status.
// Returns true if the status changed, false if it was already in that state.
func (r *Replica) SetHealthy(healthy bool) (changed bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.isHealthy == healthy {
		return false
	}

	r.isHealthy = healthy
	return true
}

// Acquire marks a call in flight on the replica.
func (r *Replica) Acquire() {
	r.mutex.Lock()
	r.activeCalls++
	r.mutex.Unlock()
}

// Release marks an in-flight call as finished.
func (r *Replica) Release() {
	r.mutex.Lock()
	if r.activeCalls > 0 {
		r.activeCalls--
	}
	r.mutex.Unlock()
}

// ActiveCalls returns the number of calls in flight.
func (r *Replica) ActiveCalls() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.activeCalls
}

func singleJoiningSlash(a, b string) string {
	aslash := len(a) > 0 && a[len(a)-1] == '/'
	bslash := len(b) > 0 && b[0] == '/'
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash && b != "":
		return a + "/" + b
	}
	return a + b
}
